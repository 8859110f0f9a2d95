/*
Package gcp abstracts away the collection and caching of important runtime
metadata about the GCP instance the console service is running on.
*/
package gcp

import (
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/shellboxhq/shellbox/types"
	"github.com/shellboxhq/shellbox/utils"
)

// EndpointBase is the URL of the metadata endpoint. It is declared as
// a var for testing convenience.
var EndpointBase = "http://metadata.google.internal/computeMetadata/v1/instance"

// Metadata holds all relevant values that can be extracted from the
// instance's metadata endpoint.
type Metadata struct {
	instanceID   types.InstanceID
	instanceName types.InstanceName
	imageID      types.ImageID
	instanceType types.InstanceType
	region       types.PlacementRegion
	ip           net.IP
}

// GetImageID returns the ID of the image used to launch the instance.
func (gc *Metadata) GetImageID() types.ImageID {
	return gc.imageID
}

// GetInstanceID returns the ID of the instance.
func (gc *Metadata) GetInstanceID() types.InstanceID {
	return gc.instanceID
}

// GetInstanceType returns the type of instance.
func (gc *Metadata) GetInstanceType() types.InstanceType {
	return gc.instanceType
}

// GetInstanceName returns the name of the instance.
func (gc *Metadata) GetInstanceName() types.InstanceName {
	return gc.instanceName
}

// GetPlacementRegion returns the name of the region where the instance is
// located. GCP only exposes the zone, so the region is derived from it.
func (gc *Metadata) GetPlacementRegion() types.PlacementRegion {
	return gc.region
}

// GetPublicIpv4 returns the public ip address assigned to the instance.
func (gc *Metadata) GetPublicIpv4() net.IP {
	return gc.ip
}

// PopulateMetadata should be called before trying to get any of the metadata values.
// This function makes the initial calls to the endpoint and populates the `Metadata`
// struct.
func (gc *Metadata) PopulateMetadata() (map[string]string, error) {
	imageID, err := metadataRetriever("image")
	if err != nil {
		return nil, utils.MakeError("failed to get gcp metadata field image: %s", err)
	}

	instanceID, err := metadataRetriever("id")
	if err != nil {
		return nil, utils.MakeError("failed to get gcp metadata field id: %s", err)
	}

	instanceName, err := metadataRetriever("name")
	if err != nil {
		return nil, utils.MakeError("failed to get gcp metadata field name: %s", err)
	}

	instanceType, err := metadataRetriever("machine-type")
	if err != nil {
		return nil, utils.MakeError("failed to get gcp metadata field machine-type: %s", err)
	}

	zone, err := metadataRetriever("zone")
	if err != nil {
		return nil, utils.MakeError("failed to get gcp metadata field zone: %s", err)
	}

	ip, err := metadataRetriever("network-interfaces/0/access-configs/0/external-ip")
	if err != nil {
		return nil, utils.MakeError("failed to get gcp metadata field external-ip: %s", err)
	}

	// GCP returns image and machine-type as full resource paths like
	// "projects/123456/machineTypes/e2-standard-4", and the zone as
	// "projects/123456/zones/us-central1-a". Only the last segment is
	// interesting here.
	region := regionFromZone(zone)

	metadata := make(map[string]string)
	metadata["gcp.image_id"] = path.Base(imageID)
	metadata["gcp.instance_id"] = instanceID
	metadata["gcp.instance_name"] = instanceName
	metadata["gcp.instance_type"] = path.Base(instanceType)
	metadata["gcp.region"] = region
	metadata["gcp.ip"] = ip

	gc.imageID = types.ImageID(path.Base(imageID))
	gc.instanceID = types.InstanceID(instanceID)
	gc.instanceName = types.InstanceName(instanceName)
	gc.instanceType = types.InstanceType(path.Base(instanceType))
	gc.region = types.PlacementRegion(region)
	gc.ip = net.ParseIP(strings.TrimSpace(ip)).To4()

	return metadata, nil
}

// regionFromZone derives the region name from a zone resource path, e.g.
// "projects/123456/zones/us-central1-a" becomes "us-central1".
func regionFromZone(zone string) string {
	z := path.Base(strings.TrimSpace(zone))
	if i := strings.LastIndex(z, "-"); i > 0 {
		return z[:i]
	}
	return z
}

func metadataRetriever(resource string) (string, error) {
	httpClient := http.Client{
		Timeout: 1 * time.Second,
	}

	u, err := url.Parse(EndpointBase)
	if err != nil {
		return "", utils.MakeError("failed to parse metadata endpoint URL: %s", err)
	}
	u.Path = path.Join(u.Path, resource)

	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		return "", utils.MakeError("failed to create request for URL %s: %s", u.String(), err)
	}
	req.Header.Set("Metadata-Flavor", "Google")

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", utils.MakeError("error retrieving data from URL %s: %v. Is the service running on a GCP VM instance?", u.String(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return string(body), utils.MakeError("error reading response body from URL %s: %v", u.String(), err)
	}
	if resp.StatusCode != 200 {
		return string(body), utils.MakeError("got non-200 response from URL %s: %s", u.String(), resp.Status)
	}
	return string(body), nil
}
