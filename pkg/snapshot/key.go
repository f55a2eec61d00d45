package snapshot

import (
	"strings"
)

// keyPrefix namespaces snapshot keys in Redis.
const keyPrefix = "ocexport"

// Key identifies one resource of one exported marketplace in Redis.
type Key struct {
	// MarketplaceID is the exported marketplace.
	MarketplaceID string

	// Resource is the resource name. Empty addresses the meta entry.
	Resource string
}

// String generates a deterministic key string.
// Format: ocexport:<marketplace>:resource:<name> or ocexport:<marketplace>:meta
//
// Example:
//
//	ocexport:org1_Sandbox:resource:Products
func (k Key) String() string {
	parts := []string{keyPrefix, strings.TrimSpace(k.MarketplaceID)}
	if k.Resource == "" {
		parts = append(parts, "meta")
	} else {
		parts = append(parts, "resource", k.Resource)
	}
	return strings.Join(parts, ":")
}

// MetaKey returns the meta entry key for marketplaceID.
func MetaKey(marketplaceID string) Key {
	return Key{MarketplaceID: marketplaceID}
}
