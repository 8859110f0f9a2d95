package main

import (
	"context"
	"time"

	dockerunits "github.com/docker/go-units"

	"github.com/shellboxhq/shellbox/console-service/metrics"
	"github.com/shellboxhq/shellbox/gateway"
	"github.com/shellboxhq/shellbox/httputils"
	logger "github.com/shellboxhq/shellbox/shellboxlogger"
	"github.com/shellboxhq/shellbox/utils"
)

// listConsoles renders the caller's consoles (or everyone's, for an admin
// asking for all) in the house table style.
func (s *service) listConsoles(req *httputils.ListRequest) (*httputils.ListRequestResult, error) {
	records := s.store.ListByOwner(req.Owner)
	if req.All && req.Admin {
		records = s.store.List()
	}

	if len(records) == 0 {
		return &httputils.ListRequestResult{
			Count: 0,
			Text:  gateway.ConsoleBlock([]string{"You have no consoles. Use deploy to create one."}),
		}, nil
	}

	lines := make([]string, 0, len(records))
	for _, record := range records {
		age := dockerunits.HumanDuration(time.Since(time.Unix(record.CreatedAt, 0)))
		line := utils.Sprintf("%s | SSH: %s | Created: %s ago", record.ConsoleID, record.ConnectionString, age)
		if req.All && req.Admin {
			line = utils.Sprintf("%s | %s", record.Owner, line)
		}
		lines = append(lines, line)
	}

	return &httputils.ListRequestResult{
		Count: len(records),
		Text:  gateway.ConsoleBlock(lines),
	}, nil
}

// listPlans renders the plan catalog.
func (s *service) listPlans() (*httputils.PlansRequestResult, error) {
	plans := s.catalog.Plans()
	lines := make([]string, 0, len(plans))
	for _, plan := range plans {
		suffix := "(open)"
		if plan.RequiredCapability != "" {
			suffix = utils.Sprintf("(requires role: %s)", plan.RequiredCapability)
		}
		lines = append(lines, utils.Sprintf("%s | %dGB %s", plan.Name, plan.MemoryGB, suffix))
	}

	return &httputils.PlansRequestResult{Text: gateway.ConsoleBlock(lines)}, nil
}

// helpText is the static command reference served by the help endpoint.
var helpText = []string{
	"deploy <plan> [image]  - provision a console (images: ubuntu, debian)",
	"list                   - show your consoles",
	"plans                  - show the plan catalog",
	"start <id>             - start a stopped console and capture a fresh connection",
	"stop <id>              - stop a console (record is kept)",
	"restart <id>           - restart a console and capture a fresh connection",
	"regenerate <id>        - capture a fresh connection string without a restart",
	"remove <id>            - destroy a console and its record",
	"port-add <id> <port>   - expose a console TCP port on a public address",
	"port-http <id> <port>  - expose a console HTTP server under a public URL",
	"ping                   - service liveness and host stats",
	"<id> can be the console ID or any substring of its connection string.",
}

func (s *service) help() (*httputils.HelpRequestResult, error) {
	return &httputils.HelpRequestResult{Text: gateway.ConsoleBlock(helpText)}, nil
}

// ping reports liveness, request latency, service uptime and a host metrics
// snapshot.
func (s *service) ping(req *httputils.PingRequest) (*httputils.PingRequestResult, error) {
	latency := time.Now().UnixMilli() - req.ReceivedAt
	uptime := time.Since(s.startedAt).Round(time.Second)

	stats, errs := metrics.GetLatest()
	for _, err := range errs {
		logger.Warningf("Stale or partial metrics in ping: %s", err)
	}

	message := utils.Sprintf("pong | up %s | cpu %.1f%% | mem free %dMB | disk used %.1f%%",
		uptime, stats.CPUUtilizationPercent, stats.AvailableMemoryKB/1024, stats.DiskUsedPercent)

	return &httputils.PingRequestResult{Message: message, LatencyMS: latency}, nil
}

// portForward exposes a console-local TCP port on the public relay.
func (s *service) portForward(ctx context.Context, req *httputils.PortForwardRequest) (*httputils.PortForwardRequestResult, error) {
	record, err := s.resolveConsole(req.Owner, req.Identifier, req.Admin)
	if err != nil {
		return nil, err
	}

	publicPort, err := s.tunnels.AddPort(ctx, record.ConsoleID, req.Port)
	if err != nil {
		return nil, err
	}

	endpoint := utils.Sprintf("%s:%d", s.hostIP(ctx), publicPort)
	s.sender.Audit([]string{
		utils.Sprintf("port-add: owner=%s console=%s %s -> :%d", record.Owner, record.ConsoleID, endpoint, req.Port),
	})
	return &httputils.PortForwardRequestResult{Endpoint: endpoint}, nil
}

// httpForward exposes a console-local HTTP server under a relay URL.
func (s *service) httpForward(ctx context.Context, req *httputils.HTTPForwardRequest) (*httputils.HTTPForwardRequestResult, error) {
	record, err := s.resolveConsole(req.Owner, req.Identifier, req.Admin)
	if err != nil {
		return nil, err
	}

	url, err := s.tunnels.HTTPForward(ctx, record.ConsoleID, req.Port, s.cfg.ControlCaptureTimeout)
	if err != nil {
		return nil, err
	}

	s.sender.Audit([]string{
		utils.Sprintf("port-http: owner=%s console=%s %s -> :%d", record.Owner, record.ConsoleID, url, req.Port),
	})
	return &httputils.HTTPForwardRequestResult{URL: url}, nil
}

// role relays a role management operation to the chat gateway. Role storage
// lives on the platform side; we only gate on the admin claim and pass the
// call through.
func (s *service) role(ctx context.Context, req *httputils.RoleRequest) (*httputils.RoleRequestResult, error) {
	if !req.Admin {
		return nil, utils.MakeError("role management requires an admin token")
	}

	var op string
	switch req.Op {
	case httputils.RoleAdd:
		op = "add"
	case httputils.RoleRemove:
		op = "remove"
	case httputils.RoleList:
		op = "list"
	default:
		return nil, utils.MakeError("unknown role operation %q", req.Op)
	}

	lines, err := s.sender.Role(ctx, op, req.User, req.Role)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		lines = []string{"done"}
	}

	return &httputils.RoleRequestResult{Text: gateway.ConsoleBlock(lines)}, nil
}
