package relay

import "strings"

// CookieRewriter adjusts origin Set-Cookie headers so session and CSRF
// cookies survive the hop through the relay.
//
// InsecureShim exists for plain-HTTP development setups where the browser
// would otherwise drop Secure cookies; with it on, Secure is stripped and
// Lax/Strict cookies are downgraded to SameSite=None. With it off, Secure
// is left untouched and an existing SameSite is never weakened; only a
// missing SameSite is filled in as None.
type CookieRewriter struct {
	// InsecureShim enables the compatibility rewrite for non-TLS transport.
	InsecureShim bool
	// Domain, when non-empty, replaces an existing Domain attribute so the
	// cookie is scoped to the relay host instead of the origin. Host-only
	// cookies (no Domain attribute) are left host-only.
	Domain string
}

// Rewrite returns the adjusted Set-Cookie header value. Attributes the
// rewriter does not recognize pass through unchanged.
func (cr *CookieRewriter) Rewrite(setCookie string) string {
	parts := strings.Split(setCookie, ";")
	out := make([]string, 0, len(parts)+1)
	sameSiteSeen := false

	for i, part := range parts {
		trimmed := strings.TrimSpace(part)
		if i == 0 {
			// name=value pair, never touched.
			out = append(out, trimmed)
			continue
		}

		key := trimmed
		value := ""
		if eq := strings.Index(trimmed, "="); eq >= 0 {
			key = trimmed[:eq]
			value = trimmed[eq+1:]
		}

		switch strings.ToLower(key) {
		case "secure":
			if cr.InsecureShim {
				continue
			}
			out = append(out, trimmed)
		case "samesite":
			sameSiteSeen = true
			if cr.InsecureShim && !strings.EqualFold(value, "None") {
				out = append(out, "SameSite=None")
				continue
			}
			out = append(out, trimmed)
		case "domain":
			if cr.Domain != "" {
				out = append(out, "Domain="+cr.Domain)
				continue
			}
			out = append(out, trimmed)
		default:
			if trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}

	if !sameSiteSeen {
		out = append(out, "SameSite=None")
	}
	return strings.Join(out, "; ")
}
