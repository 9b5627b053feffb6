package whois

import (
	"regexp"
	"strings"
)

// Only ASCII or ACE-encoded names are accepted; IDNs must be converted to ACE by the client.
var fqdnPattern = regexp.MustCompile(`^([-a-z0-9]{1,63})(\.[-a-z0-9]{1,63})+$`)

// IsWellFormedFQDN reports whether the (already lower-cased) name is a dot-separated sequence of
// at least two labels with no leading or trailing dot.
func IsWellFormedFQDN(fqdn string) bool {
	return fqdnPattern.MatchString(fqdn)
}

// SplitFQDN splits a name on its first dot into the leading label and the remainder. A trailing
// dot is ignored. A name without any dot has no label part and is returned whole as the zone.
func SplitFQDN(fqdn string) (label string, zone string) {
	fqdn = strings.TrimRight(fqdn, ".")

	idx := strings.IndexByte(fqdn, '.')
	if idx < 0 {
		return "", fqdn
	}

	return fqdn[:idx], fqdn[idx+1:]
}
