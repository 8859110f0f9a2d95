package main

import (
	"sort"
	"time"

	"github.com/shellboxhq/shellbox/console-service/config"
	"github.com/shellboxhq/shellbox/console-service/policy"
	"github.com/shellboxhq/shellbox/console-service/registry"
	"github.com/shellboxhq/shellbox/console-service/runtime"
	"github.com/shellboxhq/shellbox/console-service/tunnel"
	"github.com/shellboxhq/shellbox/gateway"
	"github.com/shellboxhq/shellbox/types"
	"github.com/shellboxhq/shellbox/utils"
)

// A consoleImage is one of the base images a console can be deployed from.
type consoleImage struct {
	// Image is the Docker image reference.
	Image string

	// Label is the human-readable name shown in help and plan output.
	Label string
}

// consoleImages maps the deploy image keys to their images. The first key in
// sorted order ("debian" < "ubuntu") is NOT the default; defaultImageKey is.
var consoleImages = map[types.ImageKey]consoleImage{
	"ubuntu": {Image: "ubuntu-tmate:22.04", Label: "Ubuntu 22.04"},
	"debian": {Image: "debian-tmate:12", Label: "Debian"},
}

const defaultImageKey types.ImageKey = "ubuntu"

// resolveImage maps a deploy image key to its Docker image. The empty key
// selects the default. Matching is exact: image keys are short fixed tokens,
// not user free text.
func resolveImage(key string) (consoleImage, error) {
	if key == "" {
		key = string(defaultImageKey)
	}
	img, ok := consoleImages[types.ImageKey(key)]
	if !ok {
		return consoleImage{}, &UnknownImageError{Key: key, ValidKeys: imageKeys()}
	}
	return img, nil
}

func imageKeys() []string {
	keys := make([]string, 0, len(consoleImages))
	for key := range consoleImages {
		keys = append(keys, string(key))
	}
	sort.Strings(keys)
	return keys
}

// service bundles the collaborators every operation needs. One instance is
// built in main() and shared by the event loop's handler goroutines; all
// fields are set once at startup and never mutated afterwards.
type service struct {
	cfg      *config.Config
	catalog  *policy.Catalog
	store    *registry.Registry
	runtime  runtime.Runtime
	sender   gateway.Sender
	tunnels  *tunnel.Forwarder
	publicIP string

	// startedAt feeds the ping command's uptime report.
	startedAt time.Time

	ownerLocks   *keyedLocks
	consoleLocks *keyedLocks
}

func newService(cfg *config.Config, catalog *policy.Catalog, store *registry.Registry, rt runtime.Runtime, sender gateway.Sender, publicIP string) *service {
	return &service{
		cfg:          cfg,
		catalog:      catalog,
		store:        store,
		runtime:      rt,
		sender:       sender,
		tunnels:      tunnel.New(rt, cfg.TunnelHost),
		publicIP:     publicIP,
		startedAt:    time.Now(),
		ownerLocks:   newKeyedLocks(),
		consoleLocks: newKeyedLocks(),
	}
}

// An UnknownImageError means the deploy named an image key outside the
// catalog.
type UnknownImageError struct {
	Key       string
	ValidKeys []string
}

func (e *UnknownImageError) Error() string {
	return utils.Sprintf("unknown image %q (valid images: %s)", e.Key, utils.PrintSlice(e.ValidKeys, len(e.ValidKeys)))
}

// A ProvisionFailedError means the container never came up. Nothing was
// persisted.
type ProvisionFailedError struct {
	Detail error
}

func (e *ProvisionFailedError) Error() string {
	return utils.Sprintf("couldn't provision console: %s", e.Detail)
}

func (e *ProvisionFailedError) Unwrap() error {
	return e.Detail
}

// A CaptureFailedError means the console is (or was) running but never
// printed a connection string within the capture window.
type CaptureFailedError struct {
	ConsoleID types.ConsoleID
	Window    time.Duration
}

func (e *CaptureFailedError) Error() string {
	return utils.Sprintf("console %s produced no connection string within %s", e.ConsoleID, e.Window)
}
