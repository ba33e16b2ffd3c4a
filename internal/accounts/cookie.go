package accounts

import (
	"sort"
	"strings"
)

// cookieKeyFields are the per-account fields a decorated cookie is matched
// on. Shared fields merged from common_cookies vary independent of account
// identity, so literal string comparison would never match.
var cookieKeyFields = []string{"token", "SERVERID", "SERVERCORSID"}

// parseCookie splits a cookie header string into its key/value pairs.
// Items without '=' are ignored.
func parseCookie(cookie string) map[string]string {
	fields := make(map[string]string)
	for _, item := range strings.Split(cookie, ";") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		k, v, ok := strings.Cut(item, "=")
		if !ok {
			continue
		}
		fields[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return fields
}

// cookiesMatch reports whether two cookie strings agree on every key field
// present in both. A field missing on either side does not disqualify.
func cookiesMatch(a, b string) bool {
	af := parseCookie(a)
	bf := parseCookie(b)
	for _, field := range cookieKeyFields {
		av, aok := af[field]
		bv, bok := bf[field]
		if aok && bok && av != bv {
			return false
		}
	}
	return true
}

// mergeCookie appends common cookie fields to an account cookie string.
// Common fields are emitted in sorted key order so output is stable.
func mergeCookie(accountCookie string, common map[string]string) string {
	if len(common) == 0 {
		return accountCookie
	}

	keys := make([]string, 0, len(common))
	for k := range common {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+common[k])
	}
	commonStr := strings.Join(parts, "; ")

	if accountCookie == "" {
		return commonStr
	}
	return accountCookie + "; " + commonStr
}
