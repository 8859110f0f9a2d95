package main

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/shellboxhq/shellbox/console-service/metrics"
	"github.com/shellboxhq/shellbox/console-service/registry"
	"github.com/shellboxhq/shellbox/console-service/runtime"
	"github.com/shellboxhq/shellbox/gateway"
	logger "github.com/shellboxhq/shellbox/shellboxlogger"
	"github.com/shellboxhq/shellbox/types"
	"github.com/shellboxhq/shellbox/utils"
)

// A sweepEvent tells the main event loop to run an expiry sweep.
type sweepEvent struct{}

// startSweepScheduler pushes a sweepEvent onto the channel every period, with
// one event right away so a freshly restarted service doesn't sit on a
// backlog of long-expired consoles for hours.
func startSweepScheduler(period time.Duration, scheduledEvents chan<- sweepEvent) *gocron.Scheduler {
	scheduler := gocron.NewScheduler(time.UTC)

	scheduler.Every(period).StartImmediately().Do(func() {
		scheduledEvents <- sweepEvent{}
	})

	scheduler.StartAsync()
	return scheduler
}

// sweepExpired reaps every record whose age has reached the TTL (inclusive):
// best-effort container teardown per record, one batch record removal, one
// compressed archive frame, then per-owner notifications and audit events.
// Trouble with one record never aborts the rest, and the outer guard keeps a
// panic from killing the scheduler's event stream.
func (s *service) sweepExpired(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Recovered from a panic during the expiry sweep: %v", r)
		}
	}()

	now := time.Now().Unix()
	ttl := int64(s.cfg.ConsoleTTL.Seconds())

	snapshot := s.store.List()
	var reaped []registry.Record
	for _, record := range snapshot {
		if now-record.CreatedAt < ttl {
			continue
		}
		if s.reapConsole(ctx, record.ConsoleID) {
			reaped = append(reaped, record)
		}
	}

	if len(reaped) > 0 {
		ids := make([]types.ConsoleID, 0, len(reaped))
		for _, record := range reaped {
			ids = append(ids, record.ConsoleID)
		}

		if _, err := s.store.RemoveBatch(ids); err != nil {
			// The containers are already gone but their records survived.
			// The next sweep picks the records up again and reapConsole
			// treats the missing containers as already reaped, so this
			// converges without archiving or notifying twice.
			logger.Errorf("Couldn't remove %d reaped records from the store: %s", len(ids), err)
			return
		}
		if err := registry.ArchiveReaped(s.cfg.ArchiveFile, reaped); err != nil {
			logger.Errorf("Couldn't archive %d reaped records: %s", len(reaped), err)
		}

		for _, record := range reaped {
			gateway.NotifyOwner(ctx, s.sender, record.Owner, []string{
				utils.Sprintf("Console %s expired after %s and was removed.", record.ConsoleID, s.cfg.ConsoleTTL),
			})
			s.sender.Audit([]string{
				utils.Sprintf("expire: owner=%s console=%s created=%d", record.Owner, record.ConsoleID, record.CreatedAt),
			})
		}
	}

	stats, _ := metrics.GetLatest()
	logger.Infof("Expiry sweep finished: reaped %d of %d records. Host: cpu %.1f%%, free mem %dMB, load %.2f, disk used %.1f%%.",
		len(reaped), len(snapshot), stats.CPUUtilizationPercent, stats.AvailableMemoryKB/1024,
		stats.LoadAverage1Min, stats.DiskUsedPercent)
}

// reapConsole tears one expired console down under its lock. It reports
// whether the record should be removed from the store; a record that a
// concurrent remove already deleted is skipped. Runtime errors don't block
// the reap, and a panic is contained to this record.
func (s *service) reapConsole(ctx context.Context, id types.ConsoleID) (shouldRemove bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Recovered from a panic while reaping console %s: %v", id, r)
			shouldRemove = false
		}
	}()

	consoleLock := s.consoleLocks.get(string(id))
	consoleLock.Lock()
	defer consoleLock.Unlock()

	if _, ok := s.store.Lookup(id); !ok {
		return false
	}

	if err := s.runtime.Stop(ctx, id); err != nil && !runtime.IsNotFound(err) {
		logger.Warningf("Couldn't stop expired console %s: %s", id, err)
	}
	if err := s.runtime.Destroy(ctx, id); err != nil && !runtime.IsNotFound(err) {
		logger.Warningf("Couldn't destroy expired console %s: %s", id, err)
	}
	return true
}
