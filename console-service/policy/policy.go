// Package policy holds the plan catalog and the access rules built on it:
// which plans exist, how much memory each one grants, which capability (role)
// a plan requires, and how many consoles a single owner may hold at once. The
// catalog is loaded once at process start and never mutated afterwards, so it
// is safe to share a single *Catalog between goroutines.
package policy // import "github.com/shellboxhq/shellbox/console-service/policy"

import (
	"sort"
	"strings"

	"github.com/shellboxhq/shellbox/constants"
	"github.com/shellboxhq/shellbox/types"
	"github.com/shellboxhq/shellbox/utils"
)

// A Plan is a named tier mapping to a memory allocation and an optional
// required capability.
type Plan struct {
	// Name is the unique catalog key for this plan.
	Name types.PlanName `yaml:"name"`

	// MemoryGB is the memory allocation, in gigabytes, granted to consoles
	// deployed under this plan.
	MemoryGB int `yaml:"memory_gb"`

	// RequiredCapability is the role tag a user must hold to deploy this
	// plan. The empty string means the plan is open to everyone.
	RequiredCapability types.Capability `yaml:"requires"`
}

// A Catalog is the full set of plans plus the per-owner console ceiling.
type Catalog struct {
	plans   map[types.PlanName]Plan
	ceiling int
}

// NewCatalog builds a catalog from the given plans and ceiling. A
// non-positive ceiling falls back to the default.
func NewCatalog(plans []Plan, ceiling int) *Catalog {
	if ceiling <= 0 {
		ceiling = constants.MaxConsolesPerOwner
	}

	m := make(map[types.PlanName]Plan, len(plans))
	for _, p := range plans {
		m[normalizePlanName(string(p.Name))] = p
	}

	return &Catalog{plans: m, ceiling: ceiling}
}

// DefaultCatalog returns the built-in plan catalog, used whenever no plans
// file is configured.
func DefaultCatalog() *Catalog {
	return NewCatalog(defaultPlans(), constants.MaxConsolesPerOwner)
}

func defaultPlans() []Plan {
	return []Plan{
		{Name: "basic", MemoryGB: 1},
		{Name: "second", MemoryGB: 2, RequiredCapability: "Basic"},
		{Name: "tritium", MemoryGB: 3, RequiredCapability: "Basic"},
		{Name: "loudclass", MemoryGB: 4, RequiredCapability: "Basic"},
		{Name: "growsof", MemoryGB: 5, RequiredCapability: "Basic"},
		{Name: "akama", MemoryGB: 6, RequiredCapability: "Basic"},
		{Name: "curious", MemoryGB: 7, RequiredCapability: "Basic"},
		{Name: "prembasic", MemoryGB: 8, RequiredCapability: "Premium"},
		{Name: "premsecond", MemoryGB: 9, RequiredCapability: "Premium"},
		{Name: "premtritium", MemoryGB: 10, RequiredCapability: "Premium"},
		{Name: "kaze", MemoryGB: 11, RequiredCapability: "Premium"},
		{Name: "null", MemoryGB: 12, RequiredCapability: "Premium"},
	}
}

// normalizePlanName lowercases the name and strips all spaces, matching how
// users tend to type plan names in chat.
func normalizePlanName(name string) types.PlanName {
	return types.PlanName(strings.ReplaceAll(strings.ToLower(name), " ", ""))
}

// ResolvePlan finds the plan with the given name. Matching is
// case-insensitive and whitespace-stripped. An unknown name returns an
// UnknownPlanError carrying the sorted list of valid names so the caller can
// render a helpful message.
func (c *Catalog) ResolvePlan(name string) (Plan, error) {
	plan, ok := c.plans[normalizePlanName(name)]
	if !ok {
		return Plan{}, &UnknownPlanError{Name: name, ValidPlans: c.PlanNames()}
	}
	return plan, nil
}

// CheckCapability verifies that a user holding the given capability tags may
// deploy the given plan. Access is granted when the plan requires nothing, or
// when the tag set contains a case-insensitive match for the requirement.
func (c *Catalog) CheckCapability(plan Plan, capabilities []string) error {
	if plan.RequiredCapability == "" {
		return nil
	}

	for _, capability := range capabilities {
		if strings.EqualFold(capability, string(plan.RequiredCapability)) {
			return nil
		}
	}

	return &PermissionDeniedError{Plan: plan.Name, Required: plan.RequiredCapability}
}

// CheckQuota verifies that an owner currently holding `count` consoles may
// create another one.
func (c *Catalog) CheckQuota(count int) error {
	if count >= c.ceiling {
		return &QuotaExceededError{Ceiling: c.ceiling}
	}
	return nil
}

// Ceiling returns the per-owner console ceiling.
func (c *Catalog) Ceiling() int {
	return c.ceiling
}

// Plans returns all plans sorted by memory size, then name. The slice is
// freshly allocated on each call so callers may not corrupt the catalog.
func (c *Catalog) Plans() []Plan {
	plans := make([]Plan, 0, len(c.plans))
	for _, p := range c.plans {
		plans = append(plans, p)
	}
	sort.Slice(plans, func(i, j int) bool {
		if plans[i].MemoryGB != plans[j].MemoryGB {
			return plans[i].MemoryGB < plans[j].MemoryGB
		}
		return plans[i].Name < plans[j].Name
	})
	return plans
}

// PlanNames returns the sorted names of all plans in the catalog.
func (c *Catalog) PlanNames() []string {
	names := make([]string, 0, len(c.plans))
	for name := range c.plans {
		names = append(names, string(name))
	}
	sort.Strings(names)
	return names
}

// Error types for the access checks. These are matched with errors.As at the
// command boundary and rendered as user-visible messages.

// An UnknownPlanError reports a plan name that isn't in the catalog.
type UnknownPlanError struct {
	Name       string
	ValidPlans []string
}

func (e *UnknownPlanError) Error() string {
	return utils.Sprintf("unknown plan %q (valid plans: %s)", e.Name, strings.Join(e.ValidPlans, ", "))
}

// A PermissionDeniedError reports that the user lacks the capability a plan
// requires.
type PermissionDeniedError struct {
	Plan     types.PlanName
	Required types.Capability
}

func (e *PermissionDeniedError) Error() string {
	return utils.Sprintf("plan %q requires capability %q", e.Plan, e.Required)
}

// A QuotaExceededError reports that the owner already holds the maximum
// number of consoles.
type QuotaExceededError struct {
	Ceiling int
}

func (e *QuotaExceededError) Error() string {
	return utils.Sprintf("console limit reached (maximum %d per owner)", e.Ceiling)
}
