package metadata

import (
	"net"

	"github.com/shellboxhq/shellbox/types"
)

// CloudMetadata is a variable exposed by this package so that any
// consumers can get the relevant metadata that was queried from the
// cloud provider.
var CloudMetadata CloudMetadataRetriever

// CloudMetadataRetriever is an interface that abstracts all functionality
// to get metadata from an instance. It allows consumers of this package to
// get the desired metadata without having any provider-specific logic.
type CloudMetadataRetriever interface {
	GetImageID() types.ImageID
	GetInstanceID() types.InstanceID
	GetInstanceType() types.InstanceType
	GetInstanceName() types.InstanceName
	GetPlacementRegion() types.PlacementRegion
	GetPublicIpv4() net.IP
	PopulateMetadata() (map[string]string, error)
}
