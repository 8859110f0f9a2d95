package httputils

import (
	consoletypes "github.com/shellboxhq/shellbox/types"
)

// Request types

// A ControlOp names one of the lifecycle operations that share the
// ControlRequest shape. The HTTP handler fills it in from the endpoint the
// request arrived on.
type ControlOp string

// The lifecycle operations accepted by the control endpoints.
const (
	ControlStart      ControlOp = "start"
	ControlStop       ControlOp = "stop"
	ControlRestart    ControlOp = "restart"
	ControlRegenerate ControlOp = "regenerate"
	ControlRemove     ControlOp = "remove"
)

// A RoleOp names one of the role management operations that share the
// RoleRequest shape.
type RoleOp string

// The role operations accepted by the role endpoints.
const (
	RoleAdd    RoleOp = "role_add"
	RoleRemove RoleOp = "role_remove"
	RoleList   RoleOp = "role_list"
)

// DeployRequest defines the `deploy` endpoint, which provisions a new
// console for the requesting owner.
type DeployRequest struct {
	PlanName       string             `json:"plan_name"`        // The plan to deploy, matched case-insensitively against the catalog
	Image          string             `json:"image,omitempty"`  // Optional image key override (e.g. "debian"); empty means the plan default
	JwtAccessToken string             `json:"jwt_access_token"` // User's JWT access token
	Owner          consoletypes.Owner // The owner is obtained from the access token
	Capabilities   []string           // Role tags from the access token claims, checked against the plan
	ResultChan     chan RequestResult `json:"-"`                // Channel to pass the request result between goroutines
}

// DeployRequestResult defines the data returned by the `deploy` endpoint.
type DeployRequestResult struct {
	ConsoleID        consoletypes.ConsoleID `json:"console_id"`
	ConnectionString string                 `json:"connection_string"`
	PlanName         string                 `json:"plan_name"`
	MemoryGB         int                    `json:"memory_gb"`
}

// ReturnResult is called to pass the result of a request back to the HTTP
// request handler.
func (s *DeployRequest) ReturnResult(result interface{}, err error) {
	s.ResultChan <- RequestResult{
		Result: result,
		Err:    err,
	}
}

// CreateResultChan is called to create the Go channel to pass the request
// result back to the HTTP request handler via ReturnResult.
func (s *DeployRequest) CreateResultChan() {
	if s.ResultChan == nil {
		s.ResultChan = make(chan RequestResult)
	}
}

// ControlRequest defines the `start`, `stop`, `restart`, `regenerate` and
// `remove` endpoints, which operate on an existing console.
type ControlRequest struct {
	Identifier     string             `json:"identifier"`       // Console id, or a substring of the stored connection string
	JwtAccessToken string             `json:"jwt_access_token"` // User's JWT access token
	Op             ControlOp          `json:"-"`                // Filled in by the handler from the endpoint
	Owner          consoletypes.Owner // The owner is obtained from the access token
	Admin          bool               // Admin tokens may operate on other owners' consoles
	ResultChan     chan RequestResult `json:"-"`                // Channel to pass the request result between goroutines
}

// ControlRequestResult defines the data returned by the control endpoints.
type ControlRequestResult struct {
	ConsoleID        consoletypes.ConsoleID `json:"console_id"`
	Status           string                 `json:"status"`
	ConnectionString string                 `json:"connection_string,omitempty"`
	Recaptured       bool                   `json:"recaptured,omitempty"`
}

// ReturnResult is called to pass the result of a request back to the HTTP
// request handler.
func (s *ControlRequest) ReturnResult(result interface{}, err error) {
	s.ResultChan <- RequestResult{
		Result: result,
		Err:    err,
	}
}

// CreateResultChan is called to create the Go channel to pass the request
// result back to the HTTP request handler via ReturnResult.
func (s *ControlRequest) CreateResultChan() {
	if s.ResultChan == nil {
		s.ResultChan = make(chan RequestResult)
	}
}

// ListRequest defines the `list` endpoint, which renders the requesting
// owner's consoles.
type ListRequest struct {
	All            bool               `json:"all,omitempty"`    // Admin tokens may list every owner's consoles
	JwtAccessToken string             `json:"jwt_access_token"` // User's JWT access token
	Owner          consoletypes.Owner // The owner is obtained from the access token
	Admin          bool               // Filled in from the access token claims
	ResultChan     chan RequestResult `json:"-"`                // Channel to pass the request result between goroutines
}

// ListRequestResult defines the data returned by the `list` endpoint.
type ListRequestResult struct {
	Count int    `json:"count"`
	Text  string `json:"text"`
}

// ReturnResult is called to pass the result of a request back to the HTTP
// request handler.
func (s *ListRequest) ReturnResult(result interface{}, err error) {
	s.ResultChan <- RequestResult{
		Result: result,
		Err:    err,
	}
}

// CreateResultChan is called to create the Go channel to pass the request
// result back to the HTTP request handler via ReturnResult.
func (s *ListRequest) CreateResultChan() {
	if s.ResultChan == nil {
		s.ResultChan = make(chan RequestResult)
	}
}

// PlansRequest defines the `plans` endpoint, which renders the plan catalog.
type PlansRequest struct {
	JwtAccessToken string             `json:"jwt_access_token"` // User's JWT access token
	ResultChan     chan RequestResult `json:"-"`                // Channel to pass the request result between goroutines
}

// PlansRequestResult defines the data returned by the `plans` endpoint.
type PlansRequestResult struct {
	Text string `json:"text"`
}

// ReturnResult is called to pass the result of a request back to the HTTP
// request handler.
func (s *PlansRequest) ReturnResult(result interface{}, err error) {
	s.ResultChan <- RequestResult{
		Result: result,
		Err:    err,
	}
}

// CreateResultChan is called to create the Go channel to pass the request
// result back to the HTTP request handler via ReturnResult.
func (s *PlansRequest) CreateResultChan() {
	if s.ResultChan == nil {
		s.ResultChan = make(chan RequestResult)
	}
}

// HelpRequest defines the `help` endpoint, which renders the command list.
type HelpRequest struct {
	JwtAccessToken string             `json:"jwt_access_token"` // User's JWT access token
	ResultChan     chan RequestResult `json:"-"`                // Channel to pass the request result between goroutines
}

// HelpRequestResult defines the data returned by the `help` endpoint.
type HelpRequestResult struct {
	Text string `json:"text"`
}

// ReturnResult is called to pass the result of a request back to the HTTP
// request handler.
func (s *HelpRequest) ReturnResult(result interface{}, err error) {
	s.ResultChan <- RequestResult{
		Result: result,
		Err:    err,
	}
}

// CreateResultChan is called to create the Go channel to pass the request
// result back to the HTTP request handler via ReturnResult.
func (s *HelpRequest) CreateResultChan() {
	if s.ResultChan == nil {
		s.ResultChan = make(chan RequestResult)
	}
}

// PingRequest defines the `ping` endpoint, which reports service liveness
// and processing latency.
type PingRequest struct {
	JwtAccessToken string             `json:"jwt_access_token"` // User's JWT access token
	ReceivedAt     int64              `json:"-"`                // UnixMilli receive time, filled in by the handler
	ResultChan     chan RequestResult `json:"-"`                // Channel to pass the request result between goroutines
}

// PingRequestResult defines the data returned by the `ping` endpoint.
type PingRequestResult struct {
	Message   string `json:"message"`
	LatencyMS int64  `json:"latency_ms"`
}

// ReturnResult is called to pass the result of a request back to the HTTP
// request handler.
func (s *PingRequest) ReturnResult(result interface{}, err error) {
	s.ResultChan <- RequestResult{
		Result: result,
		Err:    err,
	}
}

// CreateResultChan is called to create the Go channel to pass the request
// result back to the HTTP request handler via ReturnResult.
func (s *PingRequest) CreateResultChan() {
	if s.ResultChan == nil {
		s.ResultChan = make(chan RequestResult)
	}
}

// PortForwardRequest defines the `port_add` endpoint, which opens a public
// TCP forward to a port inside the console.
type PortForwardRequest struct {
	Identifier     string             `json:"identifier"`       // Console id, or a substring of the stored connection string
	Port           uint16             `json:"port"`             // Port inside the console to expose
	JwtAccessToken string             `json:"jwt_access_token"` // User's JWT access token
	Owner          consoletypes.Owner // The owner is obtained from the access token
	Admin          bool               // Admin tokens may operate on other owners' consoles
	ResultChan     chan RequestResult `json:"-"`                // Channel to pass the request result between goroutines
}

// PortForwardRequestResult defines the data returned by the `port_add`
// endpoint.
type PortForwardRequestResult struct {
	Endpoint string `json:"endpoint"` // "public_ip:public_port"
}

// ReturnResult is called to pass the result of a request back to the HTTP
// request handler.
func (s *PortForwardRequest) ReturnResult(result interface{}, err error) {
	s.ResultChan <- RequestResult{
		Result: result,
		Err:    err,
	}
}

// CreateResultChan is called to create the Go channel to pass the request
// result back to the HTTP request handler via ReturnResult.
func (s *PortForwardRequest) CreateResultChan() {
	if s.ResultChan == nil {
		s.ResultChan = make(chan RequestResult)
	}
}

// HTTPForwardRequest defines the `port_http` endpoint, which exposes an HTTP
// server inside the console under a public URL.
type HTTPForwardRequest struct {
	Identifier     string             `json:"identifier"`       // Console id, or a substring of the stored connection string
	Port           uint16             `json:"port"`             // Port inside the console the HTTP server listens on
	JwtAccessToken string             `json:"jwt_access_token"` // User's JWT access token
	Owner          consoletypes.Owner // The owner is obtained from the access token
	Admin          bool               // Admin tokens may operate on other owners' consoles
	ResultChan     chan RequestResult `json:"-"`                // Channel to pass the request result between goroutines
}

// HTTPForwardRequestResult defines the data returned by the `port_http`
// endpoint.
type HTTPForwardRequestResult struct {
	URL string `json:"url"`
}

// ReturnResult is called to pass the result of a request back to the HTTP
// request handler.
func (s *HTTPForwardRequest) ReturnResult(result interface{}, err error) {
	s.ResultChan <- RequestResult{
		Result: result,
		Err:    err,
	}
}

// CreateResultChan is called to create the Go channel to pass the request
// result back to the HTTP request handler via ReturnResult.
func (s *HTTPForwardRequest) CreateResultChan() {
	if s.ResultChan == nil {
		s.ResultChan = make(chan RequestResult)
	}
}

// RoleRequest defines the `role_add`, `role_remove` and `role_list`
// endpoints, which pass through to the chat platform's role management.
type RoleRequest struct {
	User           string             `json:"user"`             // The chat platform user the operation targets
	Role           string             `json:"role,omitempty"`   // Role name; unused for role_list
	JwtAccessToken string             `json:"jwt_access_token"` // User's JWT access token
	Op             RoleOp             `json:"-"`                // Filled in by the handler from the endpoint
	Admin          bool               // Role management requires an admin token
	ResultChan     chan RequestResult `json:"-"`                // Channel to pass the request result between goroutines
}

// RoleRequestResult defines the data returned by the role endpoints.
type RoleRequestResult struct {
	Text string `json:"text"`
}

// ReturnResult is called to pass the result of a request back to the HTTP
// request handler.
func (s *RoleRequest) ReturnResult(result interface{}, err error) {
	s.ResultChan <- RequestResult{
		Result: result,
		Err:    err,
	}
}

// CreateResultChan is called to create the Go channel to pass the request
// result back to the HTTP request handler via ReturnResult.
func (s *RoleRequest) CreateResultChan() {
	if s.ResultChan == nil {
		s.ResultChan = make(chan RequestResult)
	}
}
