package aws

import (
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/shellboxhq/shellbox/utils"
)

func TestGetMetadata(t *testing.T) {
	var validMetadata = map[string]string{
		"aws.image_id":      "test-ami-id",
		"aws.instance_id":   "test-instance-id",
		"aws.instance_name": "test-instance-name",
		"aws.instance_type": "test-instance-type",
		"aws.region":        "test-region",
		"aws.ip":            "0.0.0.0",
	}

	var tests = []struct {
		name, failingPath string
		nameLookupFails   bool
		expected          map[string]string
	}{
		{"AWS all good", "", false, validMetadata},
		{"AWS no ami-id", "/latest/meta-data/ami-id", false, nil},
		{"AWS no instance-id", "/latest/meta-data/instance-id", false, nil},
		{"AWS no instance-type", "/latest/meta-data/instance-type", false, nil},
		{"AWS no placement/region", "/latest/meta-data/placement/region", false, nil},
		{"AWS no public-ipv4", "/latest/meta-data/public-ipv4", false, nil},
		{"AWS no instance-name", "", true, nil},
	}

	defer func(endpoint string, nameLookup func(string, string) (string, error)) {
		EndpointBase = endpoint
		getInstanceName = nameLookup
	}(EndpointBase, getInstanceName)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodGet {
					http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
					return
				}

				if tt.failingPath != "" && r.URL.Path == tt.failingPath {
					http.Error(w, "Not Found", http.StatusNotFound)
					return
				}

				switch r.URL.Path {
				case "/latest/meta-data/ami-id":
					w.Write([]byte(validMetadata["aws.image_id"]))
				case "/latest/meta-data/instance-id":
					w.Write([]byte(validMetadata["aws.instance_id"]))
				case "/latest/meta-data/instance-type":
					w.Write([]byte(validMetadata["aws.instance_type"]))
				case "/latest/meta-data/placement/region":
					w.Write([]byte(validMetadata["aws.region"]))
				case "/latest/meta-data/public-ipv4":
					w.Write([]byte(validMetadata["aws.ip"]))
				default:
					http.Error(w, "Not Found", http.StatusNotFound)
				}
			}))
			defer srv.Close()

			EndpointBase = srv.URL

			// Use a mock function to avoid using the AWS SDK.
			getInstanceName = func(instanceID, region string) (string, error) {
				if tt.nameLookupFails {
					return "", utils.MakeError(`did not find a "Name" tag for instance %s`, instanceID)
				}
				return validMetadata["aws.instance_name"], nil
			}

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
