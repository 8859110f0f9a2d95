// Package capture scrapes line-oriented helper output for a usable connection
// descriptor. The predicate and the generic read-until-match scraper are kept
// separate so the acceptance heuristic can be tightened later without
// touching the four lifecycle call sites (deploy, start, restart, regenerate)
// or the HTTP tunnel capture.
package capture // import "github.com/shellboxhq/shellbox/console-service/capture"

import (
	"context"
	"strings"
	"time"

	"github.com/shellboxhq/shellbox/utils"
)

// ErrNoMatch is returned when the capture window closes without any line
// matching the predicate. Callers treat it as a soft failure: the user is
// told to retry (regenerate), nothing panics.
var ErrNoMatch = utils.MakeError("no matching line before the capture window closed")

// IsConnectionDescriptor reports whether a line of helper output looks like a
// usable connection descriptor. The check is heuristic: tmate announces its
// session with "ssh session: ...", other tooling prints an ssh invocation
// with a user@host or a -p port flag, and the serveo relay prints a
// "Forwarding ..." or http URL line.
func IsConnectionDescriptor(line string) bool {
	low := strings.ToLower(line)
	if strings.Contains(low, "ssh session") {
		return true
	}
	if strings.Contains(low, "ssh") && (strings.Contains(line, "@") || strings.Contains(line, "-p")) {
		return true
	}
	return strings.Contains(low, "forwarding") || strings.Contains(low, "http")
}

// FirstMatch reads lines until one satisfies the predicate or the timeout
// elapses, whichever comes first. Empty lines are skipped. The first matching
// line wins; no further lines are consumed after it. A closed lines channel,
// an expired timeout, and a cancelled context all produce ErrNoMatch.
func FirstMatch(ctx context.Context, lines <-chan string, predicate func(string) bool, timeout time.Duration) (string, error) {
	timer := time.NewTimer(timeout)
	defer utils.StopAndDrainTimer(timer)

	for {
		select {
		case <-ctx.Done():
			return "", ErrNoMatch
		case <-timer.C:
			return "", ErrNoMatch
		case line, ok := <-lines:
			if !ok {
				return "", ErrNoMatch
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if predicate(line) {
				return line, nil
			}
		}
	}
}
