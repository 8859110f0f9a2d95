package gcp

import (
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func TestGetMetadata(t *testing.T) {
	// GCP returns some values as full resource paths. The retriever is
	// expected to shorten them to the last path segment, and to derive
	// the region from the zone.
	var endpointValues = map[string]string{
		"/image":        "projects/123456/global/images/test-image",
		"/id":           "4567890",
		"/name":         "test-instance-name",
		"/machine-type": "projects/123456/machineTypes/test-instance-type",
		"/zone":         "projects/123456/zones/us-central1-a",
		"/network-interfaces/0/access-configs/0/external-ip": "0.0.0.0",
	}

	var validMetadata = map[string]string{
		"gcp.image_id":      "test-image",
		"gcp.instance_id":   "4567890",
		"gcp.instance_name": "test-instance-name",
		"gcp.instance_type": "test-instance-type",
		"gcp.region":        "us-central1",
		"gcp.ip":            "0.0.0.0",
	}

	var tests = []struct {
		name, failingPath string
		expected          map[string]string
	}{
		{"GCP all good", "", validMetadata},
		{"GCP no image", "/image", nil},
		{"GCP no id", "/id", nil},
		{"GCP no name", "/name", nil},
		{"GCP no machine-type", "/machine-type", nil},
		{"GCP no zone", "/zone", nil},
		{"GCP no external-ip", "/network-interfaces/0/access-configs/0/external-ip", nil},
	}

	defer func(endpoint string) {
		EndpointBase = endpoint
	}(EndpointBase)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodGet {
					http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
					return
				}

				// The GCP metadata server rejects requests without
				// this header.
				if r.Header.Get("Metadata-Flavor") != "Google" {
					http.Error(w, "Forbidden", http.StatusForbidden)
					return
				}

				if tt.failingPath != "" && r.URL.Path == tt.failingPath {
					http.Error(w, "Not Found", http.StatusNotFound)
					return
				}

				value, ok := endpointValues[r.URL.Path]
				if !ok {
					http.Error(w, "Not Found", http.StatusNotFound)
					return
				}
				w.Write([]byte(value))
			}))
			defer srv.Close()

			EndpointBase = srv.URL

			retriever := Metadata{}
			metadataMap, err := retriever.PopulateMetadata()
			if tt.expected == nil {
				if err == nil {
					t.Errorf("expected populating metadata to fail, got map %v", metadataMap)
				}
				return
			}
			if err != nil {
				t.Errorf("did not expect error, got: %s", err)
			}

			if ok := reflect.DeepEqual(tt.expected, metadataMap); !ok {
				t.Errorf("failed to get metadata map, expected %v, got %v", tt.expected, metadataMap)
			}
		})
	}
}

func TestMetadataRetriever(t *testing.T) {
	var tests = []struct {
		name, resource   string
		overrideEndpoint string
		err              bool
		expected         string
	}{
		{"Valid resource", "image", "", false, "test_image"},
		{"Empty resource", "", "", true, ""},
		{"Invalid endpoint base", "image", ":", true, ""},
	}

	defer func(endpoint string) {
		EndpointBase = endpoint
	}(EndpointBase)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodGet {
					http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
					return
				}

				if r.Header.Get("Metadata-Flavor") != "Google" {
					http.Error(w, "Forbidden", http.StatusForbidden)
					return
				}

				if r.URL.Path != "/image" {
					http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
					return
				}

				w.Write([]byte("test_image"))
			}))
			defer srv.Close()

			if tt.overrideEndpoint != "" {
				EndpointBase = tt.overrideEndpoint
			} else {
				EndpointBase = srv.URL
			}

			metadata, err := metadataRetriever(tt.resource)
			if tt.err {
				if err == nil {
					t.Errorf("expected error retrieving %q, got value %q", tt.resource, metadata)
				}
				return
			}
			if err != nil {
				t.Errorf("did not expect error, got: %s", err)
			}

			if metadata != tt.expected {
				t.Errorf("failed to get metadata, expected %v, got %v", tt.expected, metadata)
			}
		})
	}
}
