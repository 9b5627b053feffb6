// Package protocol contains the WHOIS-specific business logic of the proxy: the per-connection
// query lifecycle, the mapping of failures onto wire-level error lines, and per-client rate
// limiting.
package protocol
