package sync

import "strings"

// providerPrefix is the namespace the identity provider prepends to OAuth
// provider names ("oauth_google", "oauth_github", ...).
const providerPrefix = "oauth_"

// NormalizeProvider strips the provider-namespace prefix from a raw linked
// account provider name, e.g. "oauth_google" -> "google". Names without the
// prefix pass through unchanged.
func NormalizeProvider(raw string) string {
	return strings.TrimPrefix(raw, providerPrefix)
}
