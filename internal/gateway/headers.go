package gateway

import (
	"net/http"
	"net/textproto"
)

// requestHeaderAllowlist is the set of client request headers forwarded to
// origin. Everything else stops at the trust boundary.
var requestHeaderAllowlist = map[string]struct{}{
	"Accept":          {},
	"Accept-Encoding": {},
	"Cache-Control":   {},
	"Content-Length":  {},
	"If-None-Match":   {},
	"Range":           {},
}

// responseHeaderDenylist is the set of origin response headers stripped before
// reaching the client. Callers re-add Access-Control-Allow-Origin themselves.
var responseHeaderDenylist = map[string]struct{}{
	"Access-Control-Allow-Origin": {},
	"Alt-Svc":                     {},
	"Server":                      {},
}

// FilterRequestHeaders returns a copy of h containing only the allow-listed
// request headers. Pure: identical inputs yield identical outputs.
func FilterRequestHeaders(h http.Header) http.Header {
	out := make(http.Header, len(requestHeaderAllowlist))
	for key, values := range h {
		canonical := textproto.CanonicalMIMEHeaderKey(key)
		if _, ok := requestHeaderAllowlist[canonical]; !ok {
			continue
		}
		for _, v := range values {
			out.Add(canonical, v)
		}
	}
	return out
}

// FilterResponseHeaders returns a copy of h with the deny-listed response
// headers removed. Idempotent and order-independent.
func FilterResponseHeaders(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for key, values := range h {
		canonical := textproto.CanonicalMIMEHeaderKey(key)
		if _, ok := responseHeaderDenylist[canonical]; ok {
			continue
		}
		for _, v := range values {
			out.Add(canonical, v)
		}
	}
	return out
}
