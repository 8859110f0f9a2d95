package shellboxlogger // import "github.com/shellboxhq/shellbox/shellboxlogger"

import (
	"github.com/logzio/logzio-go"
)

// We use a pointer of this type so we can check if it is nil in our logging
// functions, and therefore always call them safely.
var logzioTransport *logzioSender

// We define a custom type so the flushing helpers below read naturally,
// converting back to *logzio.LogzioSender only where the client is called.
type logzioSender logzio.LogzioSender

// FlushLogzio flushes events in the Logzio queue but does not stop new ones
// from being recorded.
func FlushLogzio() {
	if logzioTransport != nil {
		if err := (*logzio.LogzioSender)(logzioTransport).Sync(); err != nil {
			Errorf("Unable to flush logzio: %s", err)
			return
		}

		(*logzio.LogzioSender)(logzioTransport).Drain()
	}
}

// stopAndDrainLogzio flushes events in the Logzio queue and stops new ones
// from being recorded.
func stopAndDrainLogzio() {
	if logzioTransport != nil {
		(*logzio.LogzioSender)(logzioTransport).Stop()
	}
}
