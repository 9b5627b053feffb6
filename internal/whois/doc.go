// Package whois contains the WHOIS routing and resolution logic: deciding which zone a query
// belongs to, which authoritative server answers for that zone, and how the answers of thin
// registries are followed through to the registrar that holds the actual record.
package whois
