package ids

import (
	"strings"

	"github.com/google/uuid"

	"github.com/newtron-network/evc/pkg/util"
)

// ServiceNamePrefix starts every device-side object name owned by a service.
const ServiceNamePrefix = "EVC-"

// CanonicalServiceID returns the canonical lower-case form of a UUID service
// ID, so "urn:uuid:..." and braced spellings name the same objects. Non-UUID
// IDs are returned trimmed but otherwise unchanged.
func CanonicalServiceID(serviceID string) string {
	serviceID = strings.TrimSpace(serviceID)
	if id, err := uuid.Parse(serviceID); err == nil {
		return id.String()
	}
	return serviceID
}

// IsUUID reports whether serviceID parses as a UUID.
func IsUUID(serviceID string) bool {
	_, err := uuid.Parse(strings.TrimSpace(serviceID))
	return err == nil
}

// ServiceName derives the device-side name for a service. The same service ID
// always yields the same name, so repeated activations reuse objects instead
// of duplicating them.
func ServiceName(serviceID string) string {
	return ServiceNamePrefix + util.SanitizeName(CanonicalServiceID(serviceID))
}

// XConnectGroupName names the cross-connect group holding the service.
func XConnectGroupName(serviceID string) string {
	return ServiceName(serviceID)
}

// XConnectName names the single cross-connect inside the group.
func XConnectName(serviceID string) string {
	return ServiceName(serviceID) + "-xc"
}

// BridgeDomainGroupName names the bridge-domain group of a multipoint service.
func BridgeDomainGroupName(serviceID string) string {
	return ServiceName(serviceID)
}

// BridgeDomainName names the bridge domain inside the group.
func BridgeDomainName(serviceID string) string {
	return ServiceName(serviceID) + "-bd"
}

// PolicyMapName names the policy-map derived from an endpoint's bandwidth
// profile in the given direction ("in" or "out").
func PolicyMapName(serviceID, attachment, direction string) string {
	return ServiceName(serviceID) + "-" + util.SanitizeName(attachment) + "-" + direction
}
