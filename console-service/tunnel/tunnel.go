// Package tunnel opens outbound SSH tunnels from inside a console to a
// public relay, exposing a console-local port on the internet. TCP forwards
// get a randomly chosen public port; HTTP forwards get a relay-assigned URL
// captured from the tunnel command's output.
package tunnel // import "github.com/shellboxhq/shellbox/console-service/tunnel"

import (
	"context"
	"math/rand"
	"time"

	"github.com/shellboxhq/shellbox/console-service/capture"
	"github.com/shellboxhq/shellbox/console-service/runtime"
	"github.com/shellboxhq/shellbox/constants"
	logger "github.com/shellboxhq/shellbox/shellboxlogger"
	"github.com/shellboxhq/shellbox/types"
	"github.com/shellboxhq/shellbox/utils"
)

// A Forwarder opens tunnels by running ssh inside consoles.
type Forwarder struct {
	runtime runtime.Runtime

	// host is the public relay, e.g. "serveo.net".
	host string
}

// New returns a Forwarder that tunnels through the given relay host.
func New(rt runtime.Runtime, host string) *Forwarder {
	if host == "" {
		host = constants.DefaultTunnelHost
	}
	return &Forwarder{runtime: rt, host: host}
}

// randomPublicPort picks a port in the relay's usable range. Collisions on
// the relay side surface as tunnel output, not as errors here.
func randomPublicPort() uint16 {
	span := constants.TunnelPortRangeEnd - constants.TunnelPortRangeStart + 1
	return uint16(constants.TunnelPortRangeStart + rand.Intn(span))
}

// AddPort exposes innerPort of the console on a random public port of the
// relay and returns that port. The tunnel process stays resident inside the
// console (ssh -f), so the forward outlives this call.
func (f *Forwarder) AddPort(ctx context.Context, id types.ConsoleID, innerPort uint16) (uint16, error) {
	publicPort := randomPublicPort()

	cmd := []string{
		"ssh", "-o", "StrictHostKeyChecking=no",
		"-R", utils.Sprintf("%d:localhost:%d", publicPort, innerPort),
		f.host, "-N", "-f",
	}
	lines, err := f.runtime.ExecLineStream(ctx, id, cmd)
	if err != nil {
		return 0, utils.MakeError("couldn't open tunnel in console %s: %s", id, err)
	}

	// ssh -f detaches once the forward is up, so the stream just closes on
	// success. Drain it in the background so any relay-side complaints still
	// reach the logs.
	go func() {
		for line := range lines {
			logger.Infof("Tunnel output from console %s: %s", id, line)
		}
	}()

	logger.Infof("Opened TCP tunnel %s:%d -> console %s port %d.", f.host, publicPort, id, innerPort)
	return publicPort, nil
}

// HTTPForward exposes an HTTP server listening on innerPort of the console
// under a relay-assigned public URL, captured from the first matching line of
// the tunnel command's output.
func (f *Forwarder) HTTPForward(ctx context.Context, id types.ConsoleID, innerPort uint16, captureTimeout time.Duration) (string, error) {
	cmd := []string{
		"ssh", "-o", "StrictHostKeyChecking=no",
		"-R", utils.Sprintf("80:localhost:%d", innerPort),
		f.host,
	}
	lines, err := f.runtime.ExecLineStream(ctx, id, cmd)
	if err != nil {
		return "", utils.MakeError("couldn't open HTTP tunnel in console %s: %s", id, err)
	}

	line, err := capture.FirstMatch(ctx, lines, capture.IsConnectionDescriptor, captureTimeout)
	if err != nil {
		return "", utils.MakeError("no tunnel URL appeared for console %s within %s: %s", id, captureTimeout, err)
	}

	logger.Infof("Opened HTTP tunnel for console %s port %d: %s", id, innerPort, line)
	return line, nil
}
