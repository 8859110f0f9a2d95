/*
The Shellbox console service provisions and manages consoles (isolated Docker
containers hosting shareable tmate terminal sessions) on behalf of chat
users. It gates plans by role membership, enforces per-owner quotas, reclaims
consoles after a TTL, and notifies users through the chat gateway.

If you are just interested in seeing what endpoints the console service
exposes, check out the file `httpserver.go`.

The main package contains the main logic and the most comments to explain the
design decisions of the service. It also contains an HTTPS server that
exposes the necessary endpoints and sets up the necessary infrastructure for
concurrent handlers, etc.
*/
package main

import (
	// NOTE: The "fmt" or "log" packages should never be imported!!! This is
	// so that we never forget to send a message via Sentry. Instead, use the
	// shellboxlogger package imported below as `logger`.

	"context"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/shellboxhq/shellbox/console-service/config"
	"github.com/shellboxhq/shellbox/console-service/metrics"
	"github.com/shellboxhq/shellbox/console-service/registry"
	"github.com/shellboxhq/shellbox/console-service/runtime"
	"github.com/shellboxhq/shellbox/gateway"
	"github.com/shellboxhq/shellbox/httputils"
	"github.com/shellboxhq/shellbox/metadata"
	"github.com/shellboxhq/shellbox/metadata/publicip"
	logger "github.com/shellboxhq/shellbox/shellboxlogger"
	"github.com/shellboxhq/shellbox/utils"
)

// Where we wait for the local Docker daemon's socket to appear when no
// remote daemon is configured.
const (
	dockerSocketDir  = "/var/run"
	dockerSocketName = "docker.sock"
)

func init() {
	// Initialize random number generator for all subpackages
	rand.Seed(time.Now().UnixNano())

	// Consoles are privileged containers, and the service owns directories
	// under /var/lib, so it needs to run as root.
	if os.Geteuid() != 0 {
		// We can do a "real" panic here because it's in an init function, so
		// we haven't even entered main() yet.
		logger.Panicf(nil, "This service needs to run as root!")
	}
}

// initializeFilesystem creates the directories the service writes to: the
// record store and archive live under the shellbox dir, the TLS material
// under the private dir.
func initializeFilesystem(globalCancel context.CancelFunc) {
	for _, dir := range []string{utils.ShellboxDir, utils.TempDir, utils.ShellboxPrivateDir} {
		if err := os.MkdirAll(dir, 0750); err != nil {
			logger.Panicf(globalCancel, "Couldn't create directory %s: %s", dir, err)
		}
	}
}

// uninitializeFilesystem removes the private dir so TLS keys never outlive
// the process. The shellbox dir stays: the record store must survive
// restarts.
func uninitializeFilesystem() {
	if err := os.RemoveAll(utils.ShellboxPrivateDir); err != nil {
		logger.Errorf("Failed to delete directory %s: %s", utils.ShellboxPrivateDir, err)
	} else {
		logger.Infof("Successfully deleted directory %s", utils.ShellboxPrivateDir)
	}
}

func main() {
	// We create a global context (i.e. for the entire service) that can be
	// cancelled if the entire program needs to terminate. We also create a
	// WaitGroup for all goroutines to tell us when they've stopped (if the
	// context gets cancelled). Finally, we defer a function which cancels the
	// global context if necessary, logs any panic we might be recovering
	// from, and cleans up after the entire service. The creation of this
	// context and WaitGroup, and the following defer, must be the first
	// statements in main().
	globalCtx, globalCancel := context.WithCancel(context.Background())
	goroutineTracker := sync.WaitGroup{}

	// These are assigned during startup below and referenced by the shutdown
	// closure; they're declared here so the defer can see them.
	var (
		sender         gateway.Sender = gateway.NopSender{}
		sweepScheduler *gocron.Scheduler
	)

	defer func() {
		// This function cleanly shuts down the console service. Note that
		// besides the host machine itself being forcefully shut down, this
		// deferred function from main() should be the _only_ way that the
		// service exits. In particular, it should be as a result of a panic()
		// in main, the global context being cancelled, or a Ctrl+C interrupt.

		// Catch any panics that might have originated in main() or one of
		// its direct children.
		r := recover()
		if r != nil {
			logger.Infof("Shutting down console service after caught panic in main(): %v", r)
		} else {
			logger.Infof("Beginning console service shutdown procedure...")
		}

		// Cancel the global context, if it hasn't already been cancelled.
		globalCancel()

		// Wait for all goroutines to stop, so we can run the rest of the
		// cleanup process.
		utils.WaitWithDebugPrints(&goroutineTracker, 2*time.Minute, 2)

		// Stop processing new events
		close(eventLoopKeepalive)

		if sweepScheduler != nil {
			sweepScheduler.Stop()
		}
		sender.Close()

		uninitializeFilesystem()

		// Close out our metrics collection.
		metrics.Close()

		// Drain to our remote logging providers, but don't yet stop recording
		// new events, in case the shutdown fails.
		logger.FlushLogzio()
		logger.FlushSentry()

		logger.Info("Finished console service shutdown procedure. Finally exiting...")

		// Shut down the logging infrastructure (including re-draining the
		// queues).
		logger.Close()

		os.Exit(0)
	}()

	// Log the Git commit of the running executable
	logger.Infof("Console Service Version: %s", metadata.GetGitCommit())

	cfg, err := config.Load()
	if err != nil {
		logger.Panic(globalCancel, err)
	}
	catalog, err := cfg.LoadCatalog()
	if err != nil {
		logger.Panic(globalCancel, err)
	}
	logger.Infof("Loaded plan catalog with %d plans, per-owner ceiling %d.", len(catalog.Plans()), catalog.Ceiling())

	// Identify the cloud we're on (if any) and tag all logging with the
	// instance identity.
	tags := map[string]string{
		"environment": metadata.GetAppEnvironmentLowercase(),
	}
	if err := metadata.GenerateCloudMetadataRetriever(); err != nil {
		logger.Warningf("Couldn't detect a cloud provider, proceeding without instance metadata: %s", err)
	} else if populated, err := metadata.CloudMetadata.PopulateMetadata(); err != nil {
		logger.Warningf("Couldn't populate cloud metadata: %s", err)
	} else {
		for k, v := range populated {
			tags[k] = v
		}
	}
	logger.InitConsoleLogging("console-service", tags)

	initializeFilesystem(globalCancel)

	if err := metrics.StartCollection(30 * time.Second); err != nil {
		// Degraded but not fatal: ping and sweep logs lose their stats.
		logger.Errorf("Couldn't start metrics collection: %s", err)
	}

	// With no remote daemon configured, wait for the local socket so a boot
	// race with dockerd doesn't kill us.
	if cfg.DockerHost == "" {
		if err := utils.WaitForFileCreation(dockerSocketDir, dockerSocketName, time.Minute, nil); err != nil {
			logger.Panicf(globalCancel, "Docker socket never appeared: %s", err)
		}
	}

	rt, err := runtime.New(globalCtx, runtime.Options{Host: cfg.DockerHost, CertPath: cfg.DockerCertPath})
	if err != nil {
		logger.Panic(globalCancel, err)
	}

	store, err := registry.New(cfg.RegistryFile)
	if err != nil {
		logger.Panic(globalCancel, err)
	}
	logger.Infof("Loaded %d console records from %s.", len(store.List()), cfg.RegistryFile)

	if cfg.GatewayURL != "" {
		client, err := gateway.New(cfg.GatewayURL, cfg.DMAckTimeout)
		if err != nil {
			logger.Errorf("Couldn't connect to the chat gateway, running without notifications: %s", err)
		} else {
			sender = client
		}
	} else {
		logger.Warningf("No gateway URL configured, notifications are disabled.")
	}

	// Discover the host public IP once; deploy and tunnel responses embed it.
	var publicIP string
	ipCtx, ipCancel := context.WithTimeout(globalCtx, 5*time.Second)
	if ip, err := publicip.Get(ipCtx); err != nil {
		logger.Warningf("Couldn't discover the host public IP at startup: %s", err)
	} else {
		publicIP = ip.String()
		logger.Infof("Host public IP: %s", publicIP)
	}
	ipCancel()

	svc := newService(cfg, catalog, store, rt, sender, publicIP)

	// Now we start all the goroutines that actually do work.

	// Start the HTTP server and listen for events
	httpServerEvents, err := StartHTTPServer(globalCtx, globalCancel, &goroutineTracker, cfg)
	if err != nil {
		logger.Panic(globalCancel, err)
	}

	// Schedule the expiry sweeps.
	scheduledSweeps := make(chan sweepEvent, 2)
	sweepScheduler = startSweepScheduler(cfg.SweepPeriod, scheduledSweeps)

	// Start main event loop. Note that we don't track this goroutine, but
	// instead control its lifetime with `eventLoopKeepalive`. This is because
	// it needs to stay alive until the tracked handler goroutines are done.
	go eventLoopGoroutine(globalCtx, globalCancel, &goroutineTracker, svc, httpServerEvents, scheduledSweeps)

	// Register a signal handler for Ctrl-C so that we cleanup if Ctrl-C is
	// pressed.
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	// Wait for either the global context to get cancelled by a worker
	// goroutine, or for us to receive an interrupt. This needs to be the end
	// of main().
	select {
	case <-sigChan:
		logger.Infof("Got an interrupt or SIGTERM")
	case <-globalCtx.Done():
		logger.Infof("Global context cancelled!")
	}
}

// As long as this channel is blocking, we continue processing events.
var eventLoopKeepalive = make(chan interface{}, 1)

func eventLoopGoroutine(globalCtx context.Context, globalCancel context.CancelFunc,
	goroutineTracker *sync.WaitGroup, svc *service,
	httpServerEvents <-chan httputils.ServerRequest, scheduledSweeps <-chan sweepEvent) {

	// dispatch runs one handler in a tracked goroutine with a panic guard,
	// so a bug in one request can't take the whole loop down.
	dispatch := func(f func()) {
		goroutineTracker.Add(1)
		go func() {
			defer goroutineTracker.Done()
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("Recovered from a panic in a request handler: %v", r)
					logger.PrintStackTrace()
				}
			}()
			f()
		}()
	}

	logger.Info("Entering event loop...")

	for {
		select {
		case <-eventLoopKeepalive:
			logger.Infof("Leaving main event loop...")
			return

		case serverevent := <-httpServerEvents:
			switch serverevent := serverevent.(type) {
			case *httputils.DeployRequest:
				dispatch(func() {
					result, err := svc.deploy(globalCtx, serverevent, serverevent.Capabilities)
					serverevent.ReturnResult(result, err)
				})

			case *httputils.ControlRequest:
				dispatch(func() {
					result, err := svc.control(globalCtx, serverevent)
					serverevent.ReturnResult(result, err)
				})

			case *httputils.ListRequest:
				dispatch(func() {
					result, err := svc.listConsoles(serverevent)
					serverevent.ReturnResult(result, err)
				})

			case *httputils.PlansRequest:
				dispatch(func() {
					result, err := svc.listPlans()
					serverevent.ReturnResult(result, err)
				})

			case *httputils.HelpRequest:
				dispatch(func() {
					result, err := svc.help()
					serverevent.ReturnResult(result, err)
				})

			case *httputils.PingRequest:
				dispatch(func() {
					result, err := svc.ping(serverevent)
					serverevent.ReturnResult(result, err)
				})

			case *httputils.PortForwardRequest:
				dispatch(func() {
					result, err := svc.portForward(globalCtx, serverevent)
					serverevent.ReturnResult(result, err)
				})

			case *httputils.HTTPForwardRequest:
				dispatch(func() {
					result, err := svc.httpForward(globalCtx, serverevent)
					serverevent.ReturnResult(result, err)
				})

			case *httputils.RoleRequest:
				dispatch(func() {
					result, err := svc.role(globalCtx, serverevent)
					serverevent.ReturnResult(result, err)
				})

			default:
				if serverevent != nil {
					err := utils.MakeError("unimplemented handling of server event [type: %T]: %v", serverevent, serverevent)
					logger.Error(err)
					serverevent.ReturnResult("", err)
				}
			}

		case <-scheduledSweeps:
			dispatch(func() {
				svc.sweepExpired(globalCtx)
			})
		}
	}
}
