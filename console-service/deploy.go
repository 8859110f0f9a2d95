package main

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shellboxhq/shellbox/console-service/capture"
	"github.com/shellboxhq/shellbox/console-service/registry"
	"github.com/shellboxhq/shellbox/console-service/runtime"
	"github.com/shellboxhq/shellbox/gateway"
	"github.com/shellboxhq/shellbox/httputils"
	"github.com/shellboxhq/shellbox/metadata/publicip"
	logger "github.com/shellboxhq/shellbox/shellboxlogger"
	"github.com/shellboxhq/shellbox/types"
	"github.com/shellboxhq/shellbox/utils"
)

// tmateCommand is what we exec inside a fresh console to host its remote
// terminal session. -F keeps tmate in the foreground printing its status
// lines, which is how we scrape the connection string.
var tmateCommand = []string{"tmate", "-F"}

// deploy provisions a new console: policy checks, container creation,
// connection capture, record persistence, and owner notification. Either the
// whole chain commits, or nothing is left behind: a container without a
// captured connection string is destroyed, and no record is ever written for
// it.
func (s *service) deploy(ctx context.Context, req *httputils.DeployRequest, capabilities []string) (*httputils.DeployRequestResult, error) {
	img, err := resolveImage(req.Image)
	if err != nil {
		return nil, err
	}

	plan, err := s.catalog.ResolvePlan(req.PlanName)
	if err != nil {
		return nil, err
	}

	if err := s.catalog.CheckCapability(plan, capabilities); err != nil {
		return nil, err
	}

	// Everything from the quota check through the record commit runs under
	// the owner's lock, so two concurrent deploys can't both pass the check
	// and overshoot the ceiling.
	ownerLock := s.ownerLocks.get(string(req.Owner))
	ownerLock.Lock()
	defer ownerLock.Unlock()

	if err := s.catalog.CheckQuota(s.store.CountForOwner(req.Owner)); err != nil {
		return nil, err
	}

	// Create and start the container, resolving the host IP for the
	// notification in parallel.
	provisionGroup, gctx := errgroup.WithContext(ctx)

	var consoleID types.ConsoleID
	provisionGroup.Go(func() error {
		id, err := s.runtime.Create(gctx, img.Image, req.Owner, plan.MemoryGB)
		consoleID = id
		if err != nil {
			return &ProvisionFailedError{Detail: err}
		}
		return nil
	})

	var hostIP string
	provisionGroup.Go(func() error {
		hostIP = s.hostIP(gctx)
		return nil
	})

	groupErr := provisionGroup.Wait()

	// From the moment the container exists, every exit path that doesn't
	// commit the deploy must destroy it. Create returns the ID even when the
	// subsequent start failed, so this also covers the half-provisioned case.
	deployCommitted := false
	if consoleID != "" {
		defer func() {
			if deployCommitted {
				return
			}
			if err := s.runtime.Destroy(context.Background(), consoleID); err != nil && !runtime.IsNotFound(err) {
				logger.Warningf("Couldn't roll back console %s after failed deploy: %s", consoleID, err)
			} else {
				logger.Infof("Rolled back console %s after failed deploy.", consoleID)
			}
		}()
	}

	if groupErr != nil {
		return nil, groupErr
	}

	lines, err := s.runtime.ExecLineStream(ctx, consoleID, tmateCommand)
	if err != nil {
		return nil, &ProvisionFailedError{Detail: err}
	}

	connection, err := capture.FirstMatch(ctx, lines, capture.IsConnectionDescriptor, s.cfg.DeployCaptureTimeout)
	if err != nil {
		logger.Warningf("Console %s produced no connection string within %s, waiting another %s.",
			consoleID, s.cfg.DeployCaptureTimeout, s.cfg.RetryCaptureTimeout)
		connection, err = capture.FirstMatch(ctx, lines, capture.IsConnectionDescriptor, s.cfg.RetryCaptureTimeout)
	}
	if err != nil {
		return nil, &CaptureFailedError{
			ConsoleID: consoleID,
			Window:    s.cfg.DeployCaptureTimeout + s.cfg.RetryCaptureTimeout,
		}
	}

	stored := utils.Sprintf("%s | plan=%s", connection, plan.Name)
	record := registry.Record{
		Owner:            req.Owner,
		ConsoleID:        consoleID,
		ConnectionString: stored,
		CreatedAt:        time.Now().Unix(),
	}
	if err := s.store.Add(record); err != nil {
		return nil, utils.MakeError("couldn't persist record for console %s: %s", consoleID, err)
	}
	deployCommitted = true

	logger.Infof("Deployed console %s for %s: plan %s, image %s.", consoleID, req.Owner, plan.Name, img.Image)

	gateway.NotifyOwner(ctx, s.sender, req.Owner, []string{
		"Console deployed.",
		utils.Sprintf("ID: %s", consoleID),
		connection,
		utils.Sprintf("Plan: %s (%dGB, %s)", plan.Name, plan.MemoryGB, img.Label),
		utils.Sprintf("Host IP: %s", hostIP),
	})
	s.sender.Audit([]string{
		utils.Sprintf("deploy: owner=%s console=%s plan=%s image=%s host=%s", req.Owner, consoleID, plan.Name, img.Image, hostIP),
	})

	return &httputils.DeployRequestResult{
		ConsoleID:        consoleID,
		ConnectionString: stored,
		PlanName:         string(plan.Name),
		MemoryGB:         plan.MemoryGB,
	}, nil
}

// hostIP returns the best known public IP of this host for user-facing
// messages. The value discovered at startup is preferred; a probe happens
// here only if startup discovery failed.
func (s *service) hostIP(ctx context.Context) string {
	if s.publicIP != "" {
		return s.publicIP
	}

	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	ip, err := publicip.Get(probeCtx)
	if err != nil {
		logger.Warningf("Couldn't discover the host public IP: %s", err)
		return "unknown"
	}
	return ip.String()
}
