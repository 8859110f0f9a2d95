package shellboxlogger // import "github.com/shellboxhq/shellbox/shellboxlogger"

import (
	"log"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/shellboxhq/shellbox/metadata"
	"github.com/shellboxhq/shellbox/utils"
)

// initializeSentry initializes the global Sentry hub for use. It requires a
// configuration function `f` as an argument where the Sentry tags should be
// set. The hub's scope is what the sentryCore attaches to every event it
// captures.
func initializeSentry(f func(scope *sentry.Scope)) error {
	if usingProdLogging() {
		log.Print("Setting up Sentry.")
	} else {
		log.Print("Not setting up Sentry.")
		return nil
	}

	sentryDsn := os.Getenv("SENTRY_DSN")

	err := sentry.Init(sentry.ClientOptions{
		Dsn:         sentryDsn,
		Release:     metadata.GetGitCommit(),
		Environment: string(metadata.GetAppEnvironment()),
	})
	if err != nil {
		return utils.MakeError("Error calling Sentry.init: %v", err)
	}

	// Configure Sentry's scope with some instance-specific information
	sentry.ConfigureScope(f)

	return nil
}

// FlushSentry flushes events in the Sentry queue
func FlushSentry() {
	sentry.Flush(5 * time.Second)
}
