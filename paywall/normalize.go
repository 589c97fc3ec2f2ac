package paywall

import "strings"

// NormalizeAddress converts a lock or account address to its normal
// (lowercase) form. All map keys and cross-references use this form.
func NormalizeAddress(address string) string {
	return strings.ToLower(address)
}

// NormalizeAddressKeys rewrites the keys of a map to normalized form
func NormalizeAddressKeys[V any](m map[string]V) map[string]V {
	ret := make(map[string]V, len(m))
	for k, v := range m {
		ret[NormalizeAddress(k)] = v
	}
	return ret
}
