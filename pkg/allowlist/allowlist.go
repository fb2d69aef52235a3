// Package allowlist implements the Host Allow-List Matcher (spec.md §4.8):
// derives a set of host strings from upstream base URLs plus operator
// additions, and exact-matches fetch() targets against it from inside the
// execution sandbox.
package allowlist

import (
	"net/url"
	"strings"
)

// AllowList is an immutable set of allowed hosts, built once per Catalog
// snapshot (spec.md §3, §4.8). Matching is exact and case-insensitive on
// the host component; no wildcards, no DNS resolution.
type AllowList struct {
	hosts map[string]struct{}
}

// Build derives an AllowList from a set of upstream base URLs plus any
// operator-supplied additions. Upstream URLs that do not parse as absolute
// URLs are skipped. Extra hosts are never parsed: each is taken verbatim as
// a host (trimmed and lowercased), so scheme-less additions such as
// "api.example.com" work.
func Build(upstreamURLs []string, extraHosts []string) *AllowList {
	hosts := make(map[string]struct{}, len(upstreamURLs)+len(extraHosts))
	for _, u := range upstreamURLs {
		if h := hostOf(u); h != "" {
			hosts[h] = struct{}{}
		}
	}
	for _, h := range extraHosts {
		hosts[normalizeHost(h)] = struct{}{}
	}
	return &AllowList{hosts: hosts}
}

// hostOf extracts authority_without_userinfo (scheme stripped, port
// retained if present) from an absolute URL, returning "" if it doesn't
// parse as one.
func hostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return ""
	}
	return normalizeHost(parsed.Host)
}

func normalizeHost(host string) string {
	return strings.ToLower(strings.TrimSpace(host))
}

// Allowed reports whether host(target) is a member of the list. target may
// be a full URL or a bare host; both are normalized identically to Build.
func (a *AllowList) Allowed(target string) bool {
	host := hostOf(target)
	if host == "" {
		host = normalizeHost(target)
	}
	_, ok := a.hosts[host]
	return ok
}

// Hosts returns the allow-listed hosts, for diagnostics and tests.
func (a *AllowList) Hosts() []string {
	out := make([]string, 0, len(a.hosts))
	for h := range a.hosts {
		out = append(out, h)
	}
	return out
}
