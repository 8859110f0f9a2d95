package main

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/shellboxhq/shellbox/console-service/auth"
	"github.com/shellboxhq/shellbox/console-service/config"
	"github.com/shellboxhq/shellbox/httputils"
	logger "github.com/shellboxhq/shellbox/shellboxlogger"
	"github.com/shellboxhq/shellbox/types"
	"github.com/shellboxhq/shellbox/utils"
)

// Constants for use in setting up the HTTPS server
var (
	certPath       string = utils.ShellboxPrivateDir + "cert.pem"
	privatekeyPath string = utils.ShellboxPrivateDir + "key.pem"
)

// localOwner is the owner handle used when authentication is disabled in
// local environments.
const localOwner types.Owner = "local"

// applyClaims copies the identity bits every request needs out of the parsed
// token. A nil claims value means we're in a local environment with
// authentication disabled.
func applyClaims(claims *auth.ShellboxClaims) (owner types.Owner, admin bool, capabilities []string) {
	if claims == nil {
		return localOwner, true, nil
	}
	return types.Owner(claims.Subject), claims.Admin, []string(claims.Capabilities)
}

// enqueueAndRespond sends the parsed request to the main event loop, then
// blocks until the handler goroutine returns a result to write back.
func enqueueAndRespond(w http.ResponseWriter, s httputils.ServerRequest, resultChan chan httputils.RequestResult, queue chan<- httputils.ServerRequest) {
	queue <- s
	res := <-resultChan
	res.Send(w)
}

func processDeployRequest(w http.ResponseWriter, r *http.Request, queue chan<- httputils.ServerRequest) {
	if httputils.VerifyRequestType(w, r, http.MethodPut) != nil {
		return
	}

	var reqdata httputils.DeployRequest
	claims, err := httputils.AuthenticateRequest(w, r, &reqdata)
	if err != nil {
		logger.Errorf("Error authenticating and parsing %T: %s", reqdata, err)
		return
	}
	reqdata.Owner, _, reqdata.Capabilities = applyClaims(claims)

	enqueueAndRespond(w, &reqdata, reqdata.ResultChan, queue)
}

// processControlRequest builds the handler for one of the lifecycle
// endpoints; the op is what distinguishes /start from /stop and friends.
func processControlRequest(op httputils.ControlOp) func(http.ResponseWriter, *http.Request, chan<- httputils.ServerRequest) {
	return func(w http.ResponseWriter, r *http.Request, queue chan<- httputils.ServerRequest) {
		if httputils.VerifyRequestType(w, r, http.MethodPut) != nil {
			return
		}

		var reqdata httputils.ControlRequest
		claims, err := httputils.AuthenticateRequest(w, r, &reqdata)
		if err != nil {
			logger.Errorf("Error authenticating and parsing %T: %s", reqdata, err)
			return
		}
		reqdata.Op = op
		reqdata.Owner, reqdata.Admin, _ = applyClaims(claims)

		enqueueAndRespond(w, &reqdata, reqdata.ResultChan, queue)
	}
}

func processListRequest(w http.ResponseWriter, r *http.Request, queue chan<- httputils.ServerRequest) {
	if httputils.VerifyRequestType(w, r, http.MethodPut) != nil {
		return
	}

	var reqdata httputils.ListRequest
	claims, err := httputils.AuthenticateRequest(w, r, &reqdata)
	if err != nil {
		logger.Errorf("Error authenticating and parsing %T: %s", reqdata, err)
		return
	}
	reqdata.Owner, reqdata.Admin, _ = applyClaims(claims)

	enqueueAndRespond(w, &reqdata, reqdata.ResultChan, queue)
}

func processPlansRequest(w http.ResponseWriter, r *http.Request, queue chan<- httputils.ServerRequest) {
	if httputils.VerifyRequestType(w, r, http.MethodPut) != nil {
		return
	}

	var reqdata httputils.PlansRequest
	if _, err := httputils.AuthenticateRequest(w, r, &reqdata); err != nil {
		logger.Errorf("Error authenticating and parsing %T: %s", reqdata, err)
		return
	}

	enqueueAndRespond(w, &reqdata, reqdata.ResultChan, queue)
}

func processHelpRequest(w http.ResponseWriter, r *http.Request, queue chan<- httputils.ServerRequest) {
	if httputils.VerifyRequestType(w, r, http.MethodPut) != nil {
		return
	}

	var reqdata httputils.HelpRequest
	if _, err := httputils.AuthenticateRequest(w, r, &reqdata); err != nil {
		logger.Errorf("Error authenticating and parsing %T: %s", reqdata, err)
		return
	}

	enqueueAndRespond(w, &reqdata, reqdata.ResultChan, queue)
}

func processPingRequest(w http.ResponseWriter, r *http.Request, queue chan<- httputils.ServerRequest) {
	if httputils.VerifyRequestType(w, r, http.MethodPut) != nil {
		return
	}

	var reqdata httputils.PingRequest
	if _, err := httputils.AuthenticateRequest(w, r, &reqdata); err != nil {
		logger.Errorf("Error authenticating and parsing %T: %s", reqdata, err)
		return
	}
	reqdata.ReceivedAt = time.Now().UnixMilli()

	enqueueAndRespond(w, &reqdata, reqdata.ResultChan, queue)
}

func processPortForwardRequest(w http.ResponseWriter, r *http.Request, queue chan<- httputils.ServerRequest) {
	if httputils.VerifyRequestType(w, r, http.MethodPut) != nil {
		return
	}

	var reqdata httputils.PortForwardRequest
	claims, err := httputils.AuthenticateRequest(w, r, &reqdata)
	if err != nil {
		logger.Errorf("Error authenticating and parsing %T: %s", reqdata, err)
		return
	}
	reqdata.Owner, reqdata.Admin, _ = applyClaims(claims)

	enqueueAndRespond(w, &reqdata, reqdata.ResultChan, queue)
}

func processHTTPForwardRequest(w http.ResponseWriter, r *http.Request, queue chan<- httputils.ServerRequest) {
	if httputils.VerifyRequestType(w, r, http.MethodPut) != nil {
		return
	}

	var reqdata httputils.HTTPForwardRequest
	claims, err := httputils.AuthenticateRequest(w, r, &reqdata)
	if err != nil {
		logger.Errorf("Error authenticating and parsing %T: %s", reqdata, err)
		return
	}
	reqdata.Owner, reqdata.Admin, _ = applyClaims(claims)

	enqueueAndRespond(w, &reqdata, reqdata.ResultChan, queue)
}

func processRoleRequest(op httputils.RoleOp) func(http.ResponseWriter, *http.Request, chan<- httputils.ServerRequest) {
	return func(w http.ResponseWriter, r *http.Request, queue chan<- httputils.ServerRequest) {
		if httputils.VerifyRequestType(w, r, http.MethodPut) != nil {
			return
		}

		var reqdata httputils.RoleRequest
		claims, err := httputils.AuthenticateRequest(w, r, &reqdata)
		if err != nil {
			logger.Errorf("Error authenticating and parsing %T: %s", reqdata, err)
			return
		}
		reqdata.Op = op
		_, reqdata.Admin, _ = applyClaims(claims)

		enqueueAndRespond(w, &reqdata, reqdata.ResultChan, queue)
	}
}

// throttleMiddleware limits requests on an endpoint using the provided rate
// limiter. It uses a token bucket algorithm, so that every interval of time
// the "bucket" refills and continues to serve tokens up to a maximum defined
// by the burst capacity. In case the limit is exceeded, return a http 429
// error (too many requests).
func throttleMiddleware(limiter *rate.Limiter, f func(http.ResponseWriter, *http.Request)) func(http.ResponseWriter, *http.Request) {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(rw, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}
		f(rw, r)
	}
}

// StartHTTPServer returns a channel of events from the webserver as its first
// return value.
func StartHTTPServer(globalCtx context.Context, globalCancel context.CancelFunc, goroutineTracker *sync.WaitGroup, cfg *config.Config) (<-chan httputils.ServerRequest, error) {
	logger.Info("Setting up HTTP server.")

	err := httputils.InitializeTLS(privatekeyPath, certPath)
	if err != nil {
		return nil, utils.MakeError("error starting HTTP server: %s", err)
	}

	// Buffer up to 100 events so we don't block. This should be mostly
	// unnecessary, but we want to be able to handle a burst without blocking.
	events := make(chan httputils.ServerRequest, 100)

	createHandler := func(f func(http.ResponseWriter, *http.Request, chan<- httputils.ServerRequest)) func(http.ResponseWriter, *http.Request) {
		return func(w http.ResponseWriter, r *http.Request) {
			f(w, r, events)
		}
	}

	// Deploys are the only expensive write path, so they get a token bucket
	// of their own.
	deployLimiter := rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.DeploysPerMinute)), cfg.DeploysPerMinute)

	// Create a custom HTTP Request Multiplexer
	mux := http.NewServeMux()
	mux.Handle("/", http.NotFoundHandler())
	mux.HandleFunc("/deploy", throttleMiddleware(deployLimiter, createHandler(processDeployRequest)))
	mux.HandleFunc("/start", createHandler(processControlRequest(httputils.ControlStart)))
	mux.HandleFunc("/stop", createHandler(processControlRequest(httputils.ControlStop)))
	mux.HandleFunc("/restart", createHandler(processControlRequest(httputils.ControlRestart)))
	mux.HandleFunc("/regenerate", createHandler(processControlRequest(httputils.ControlRegenerate)))
	mux.HandleFunc("/remove", createHandler(processControlRequest(httputils.ControlRemove)))
	mux.HandleFunc("/list", createHandler(processListRequest))
	mux.HandleFunc("/plans", createHandler(processPlansRequest))
	mux.HandleFunc("/help", createHandler(processHelpRequest))
	mux.HandleFunc("/ping", createHandler(processPingRequest))
	mux.HandleFunc("/port_add", createHandler(processPortForwardRequest))
	mux.HandleFunc("/port_http", createHandler(processHTTPForwardRequest))
	mux.HandleFunc("/role_add", createHandler(processRoleRequest(httputils.RoleAdd)))
	mux.HandleFunc("/role_remove", createHandler(processRoleRequest(httputils.RoleRemove)))
	mux.HandleFunc("/role_list", createHandler(processRoleRequest(httputils.RoleList)))

	// Create the server itself
	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}

	// Start goroutine that shuts down `server` if the global context gets
	// cancelled.
	goroutineTracker.Add(1)
	go func() {
		defer goroutineTracker.Done()

		// Start goroutine that actually listens for requests
		goroutineTracker.Add(1)
		go func() {
			defer goroutineTracker.Done()

			if err := server.ListenAndServeTLS(certPath, privatekeyPath); err != nil && err != http.ErrServerClosed {
				close(events)
				logger.Panicf(globalCancel, "Error listening and serving in httpserver: %s", err)
			}
		}()

		// Listen for global context cancellation
		<-globalCtx.Done()

		logger.Infof("Shutting down httpserver...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		err := server.Shutdown(shutdownCtx)
		if err != nil {
			logger.Infof("Shut down httpserver with error %s", err)
		} else {
			logger.Info("Gracefully shut down httpserver.")
		}
	}()

	return events, nil
}
