package models

// KeyPrefix namespaces window keys in both stores.
const KeyPrefix = "ratelimit"

// WindowKey is the store key for one client identifier.
type WindowKey string

// NewWindowKey derives the store key for identifier, e.g. "ratelimit:1.2.3.4".
// The identifier is the final segment and is kept verbatim, so distinct
// identifiers never share a key.
func NewWindowKey(identifier string) WindowKey {
	return WindowKey(KeyPrefix + ":" + identifier)
}

// String returns the string representation.
func (k WindowKey) String() string {
	return string(k)
}
