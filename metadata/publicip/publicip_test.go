package publicip

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGet(t *testing.T) {
	var tests = []struct {
		name      string
		responses []string
		want      string
	}{
		{"first endpoint answers", []string{"203.0.113.7"}, "203.0.113.7"},
		{"first endpoint garbage", []string{"not-an-ip", "203.0.113.8\n"}, "203.0.113.8"},
		{"ipv6 answer skipped", []string{"2001:db8::1", "203.0.113.9"}, "203.0.113.9"},
	}

	defer func(endpoints []string) {
		Endpoints = endpoints
	}(Endpoints)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Endpoints = nil
			for _, response := range tt.responses {
				response := response
				srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.Write([]byte(response))
				}))
				defer srv.Close()
				Endpoints = append(Endpoints, srv.URL)
			}

			ip, err := Get(context.Background())
			if err != nil {
				t.Fatalf("did not expect error, got: %s", err)
			}
			if ip.String() != tt.want {
				t.Errorf("got %s, want %s", ip, tt.want)
			}
		})
	}
}

func TestGetFallsBackToResolver(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	// A closed server gives a reliably refused connection for the
	// resolver, so the fallback path fails fast instead of reaching
	// the real OpenDNS service.
	deadSrv := httptest.NewServer(http.NotFoundHandler())
	deadSrv.Close()

	defer func(endpoints []string, resolver string) {
		Endpoints = endpoints
		resolverAddress = resolver
	}(Endpoints, resolverAddress)

	Endpoints = []string{srv.URL}
	resolverAddress = deadSrv.Listener.Addr().String()

	if _, err := Get(context.Background()); err == nil {
		t.Errorf("expected error when no endpoint or resolver answers")
	}
}
