package main

import (
	"context"
	"strings"

	"github.com/shellboxhq/shellbox/console-service/capture"
	"github.com/shellboxhq/shellbox/console-service/registry"
	"github.com/shellboxhq/shellbox/console-service/runtime"
	"github.com/shellboxhq/shellbox/gateway"
	"github.com/shellboxhq/shellbox/httputils"
	logger "github.com/shellboxhq/shellbox/shellboxlogger"
	"github.com/shellboxhq/shellbox/types"
	"github.com/shellboxhq/shellbox/utils"
)

// resolveConsole turns a user-supplied identifier (exact console ID or a
// substring of the stored connection string) into a record. Non-admin callers
// only ever see their own records. Admin tokens resolve against their own
// records first, then everyone's.
func (s *service) resolveConsole(owner types.Owner, identifier string, admin bool) (registry.Record, error) {
	record, err := s.store.FindForOwner(owner, identifier)
	if err == nil || !admin {
		return record, err
	}

	for _, record := range s.store.List() {
		if string(record.ConsoleID) == identifier || strings.Contains(record.ConnectionString, identifier) {
			return record, nil
		}
	}
	return registry.Record{}, registry.ErrConsoleNotFound
}

// recapture execs a fresh tmate inside the console and scrapes its output for
// a new connection string, bounded by the control capture window.
func (s *service) recapture(ctx context.Context, id types.ConsoleID) (string, error) {
	lines, err := s.runtime.ExecLineStream(ctx, id, tmateCommand)
	if err != nil {
		return "", err
	}
	return capture.FirstMatch(ctx, lines, capture.IsConnectionDescriptor, s.cfg.ControlCaptureTimeout)
}

// control dispatches one lifecycle operation on an existing console. The
// whole operation, including the idempotency re-check inside remove, runs
// under the console's lock so it can't interleave with another controller
// call or the sweeper tearing the same console down.
func (s *service) control(ctx context.Context, req *httputils.ControlRequest) (*httputils.ControlRequestResult, error) {
	record, err := s.resolveConsole(req.Owner, req.Identifier, req.Admin)
	if err != nil {
		return nil, err
	}

	consoleLock := s.consoleLocks.get(string(record.ConsoleID))
	consoleLock.Lock()
	defer consoleLock.Unlock()

	switch req.Op {
	case httputils.ControlStart:
		return s.startConsole(ctx, record, false)
	case httputils.ControlStop:
		return s.stopConsole(ctx, record)
	case httputils.ControlRestart:
		return s.startConsole(ctx, record, true)
	case httputils.ControlRegenerate:
		return s.regenerateConnection(ctx, record)
	case httputils.ControlRemove:
		return s.removeConsole(ctx, record)
	default:
		return nil, utils.MakeError("unknown control operation %q", req.Op)
	}
}

// startConsole powers the console on (or restarts it) and tries to capture a
// fresh connection string. A failed capture is not an error: the container is
// running, the stale record is left untouched, and the user is told to
// regenerate.
func (s *service) startConsole(ctx context.Context, record registry.Record, restart bool) (*httputils.ControlRequestResult, error) {
	op := "started"
	var err error
	if restart {
		op = "restarted"
		err = s.runtime.Restart(ctx, record.ConsoleID)
	} else {
		err = s.runtime.Start(ctx, record.ConsoleID)
	}
	if err != nil {
		return nil, err
	}

	connection, err := s.recapture(ctx, record.ConsoleID)
	if err != nil {
		logger.Warningf("Console %s %s but produced no connection string within %s.",
			record.ConsoleID, op, s.cfg.ControlCaptureTimeout)
		return &httputils.ControlRequestResult{
			ConsoleID:  record.ConsoleID,
			Status:     utils.Sprintf("%s, but no connection string appeared; try regenerate", op),
			Recaptured: false,
		}, nil
	}

	if _, err := s.store.UpdateConnectionString(record.ConsoleID, connection); err != nil {
		return nil, utils.MakeError("couldn't update record for console %s: %s", record.ConsoleID, err)
	}

	logger.Infof("Console %s %s with a fresh connection string.", record.ConsoleID, op)
	gateway.NotifyOwner(ctx, s.sender, record.Owner, []string{
		utils.Sprintf("Console %s %s.", record.ConsoleID, op),
		connection,
	})

	return &httputils.ControlRequestResult{
		ConsoleID:        record.ConsoleID,
		Status:           op,
		ConnectionString: connection,
		Recaptured:       true,
	}, nil
}

func (s *service) stopConsole(ctx context.Context, record registry.Record) (*httputils.ControlRequestResult, error) {
	if err := s.runtime.Stop(ctx, record.ConsoleID); err != nil {
		return nil, err
	}

	// The record keeps its now-stale connection string; a later start or
	// regenerate refreshes it.
	logger.Infof("Stopped console %s.", record.ConsoleID)
	return &httputils.ControlRequestResult{ConsoleID: record.ConsoleID, Status: "stopped"}, nil
}

// regenerateConnection captures a fresh connection string from the
// assumed-running console without touching its power state.
func (s *service) regenerateConnection(ctx context.Context, record registry.Record) (*httputils.ControlRequestResult, error) {
	connection, err := s.recapture(ctx, record.ConsoleID)
	if err != nil {
		return nil, &CaptureFailedError{ConsoleID: record.ConsoleID, Window: s.cfg.ControlCaptureTimeout}
	}

	if _, err := s.store.UpdateConnectionString(record.ConsoleID, connection); err != nil {
		return nil, utils.MakeError("couldn't update record for console %s: %s", record.ConsoleID, err)
	}

	logger.Infof("Regenerated connection string for console %s.", record.ConsoleID)
	gateway.NotifyOwner(ctx, s.sender, record.Owner, []string{
		utils.Sprintf("New connection string for console %s:", record.ConsoleID),
		connection,
	})

	return &httputils.ControlRequestResult{
		ConsoleID:        record.ConsoleID,
		Status:           "regenerated",
		ConnectionString: connection,
		Recaptured:       true,
	}, nil
}

// removeConsole tears the console down and deletes its record. Removal is
// idempotent: the record is re-fetched under the console lock, and "already
// gone" is success. Runtime failures during teardown are logged and
// swallowed; the record is deleted regardless so a wedged daemon can't pin a
// console in the store forever.
func (s *service) removeConsole(ctx context.Context, record registry.Record) (*httputils.ControlRequestResult, error) {
	current, ok := s.store.Lookup(record.ConsoleID)
	if !ok {
		return &httputils.ControlRequestResult{ConsoleID: record.ConsoleID, Status: "already removed"}, nil
	}

	if err := s.runtime.Stop(ctx, current.ConsoleID); err != nil && !runtime.IsNotFound(err) {
		logger.Warningf("Couldn't stop console %s during removal: %s", current.ConsoleID, err)
	}
	if err := s.runtime.Destroy(ctx, current.ConsoleID); err != nil && !runtime.IsNotFound(err) {
		logger.Warningf("Couldn't destroy console %s during removal: %s", current.ConsoleID, err)
	}

	if _, err := s.store.RemoveByConsoleID(current.ConsoleID); err != nil {
		return nil, utils.MakeError("couldn't delete record for console %s: %s", current.ConsoleID, err)
	}

	logger.Infof("Removed console %s owned by %s.", current.ConsoleID, current.Owner)
	gateway.NotifyOwner(ctx, s.sender, current.Owner, []string{
		utils.Sprintf("Console %s removed.", current.ConsoleID),
	})
	s.sender.Audit([]string{
		utils.Sprintf("remove: owner=%s console=%s", current.Owner, current.ConsoleID),
	})

	return &httputils.ControlRequestResult{ConsoleID: current.ConsoleID, Status: "removed"}, nil
}
