// Package types simply contains some useful types for the `registry` and
// `policy` packages. We define this package separately so that we can safely
// pass these types around to other packages that those packages might depend
// on.
package types // import "github.com/shellboxhq/shellbox/types"

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/shellboxhq/shellbox/utils"
)

// We define special types for the following string types for all the benefits
// of type safety, including making sure we never switch a console ID and an
// owner handle, for instance.

type (
	// A RequestID is a random ID created for each command request as it enters
	// the service, used to correlate log lines, notifications, and audit
	// events produced while handling it.
	RequestID uuid.UUID

	// A ConsoleID is provided by Docker at console creation time. It is the
	// stable identifier for a console for its entire lifetime.
	ConsoleID string

	// Owner is the opaque, stable chat-platform handle of the user a console
	// belongs to.
	Owner string

	// PlanName is defined as its own type so we can always easily enforce
	// that it is part of the configured catalog.
	PlanName string

	// Capability is a role tag assigned to a user by the chat platform,
	// checked against a plan's requirement.
	Capability string

	// ImageKey selects which console image to deploy (e.g. "ubuntu",
	// "debian"). It is resolved to a concrete image tag by configuration.
	ImageKey string

	// AccessToken is a JWT minted by the chat gateway and used to
	// authenticate command requests. It contains custom claims and metadata.
	AccessToken string

	// Types for cloud metadata

	// InstanceID represents the unique ID assigned by the provider to the
	// host instance the service runs on.
	InstanceID string

	// InstanceName is the name given to the host instance by the operator.
	InstanceName string

	// ImageID is the unique ID associated with the machine image used to
	// start the host instance.
	ImageID string

	// InstanceType is the kind of host instance in use, depending on its
	// hardware characteristics.
	InstanceType string

	// PlacementRegion is the region or zone where the compute resources
	// exist for a specific cloud provider.
	PlacementRegion string
)

// Custom type methods

// String is a utility function to return the string representation of a RequestID.
func (requestID RequestID) String() string {
	return uuid.UUID(requestID).String()
}

// MarshalJSON is a utility function to properly marshal a RequestID into a proper JSON representation
func (requestID RequestID) MarshalJSON() ([]byte, error) {
	u := uuid.UUID(requestID)
	UUID, err := uuid.Parse(u.String())

	if err != nil {
		return nil, utils.MakeError("Received invalid UUID when marshaling")
	}

	bytes, err := json.Marshal(UUID.String())

	if err != nil {
		return nil, utils.MakeError("Error marshaling UUID")
	}

	return bytes, nil
}

// UnmarshalJSON is a utility function to properly unmarshal JSON into a type RequestID
func (requestID *RequestID) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), "\"")
	UUID, err := uuid.Parse(s)

	if err != nil {
		return utils.MakeError("Error parsing UUID")
	}

	*requestID = RequestID(UUID)
	return nil
}
