// Package network contains the TCP plumbing of the proxy: the listener that accepts client
// connections, a deadline-enforcing connection wrapper, and the client that performs one-shot
// WHOIS transactions against upstream servers.
package network
