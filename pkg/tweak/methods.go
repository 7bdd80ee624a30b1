package tweak

import "strings"

// methods is the canonical method set accepted for requests and method enumeration.
var methods = map[string]struct{}{
	"ACL": {}, "BIND": {}, "CHECKOUT": {}, "CONNECT": {}, "COPY": {},
	"DELETE": {}, "GET": {}, "HEAD": {}, "LINK": {}, "LOCK": {},
	"M-SEARCH": {}, "MERGE": {}, "MKACTIVITY": {}, "MKCALENDAR": {}, "MKCOL": {},
	"MOVE": {}, "NOTIFY": {}, "OPTIONS": {}, "PATCH": {}, "POST": {},
	"PROPFIND": {}, "PROPPATCH": {}, "PURGE": {}, "PUT": {}, "QUERY": {},
	"REBIND": {}, "REPORT": {}, "SEARCH": {}, "SOURCE": {}, "SUBSCRIBE": {},
	"TRACE": {}, "UNBIND": {}, "UNLINK": {}, "UNLOCK": {}, "UNSUBSCRIBE": {},
}

// NormalizeMethod trims and upper-cases a method name.
func NormalizeMethod(method string) string {
	return strings.ToUpper(strings.TrimSpace(method))
}

// IsKnownMethod reports whether method, once normalized, is in the canonical set.
func IsKnownMethod(method string) bool {
	_, ok := methods[NormalizeMethod(method)]
	return ok
}

// bodyMethods are the methods for which a data payload becomes the default target.
func isBodyMethod(method string) bool {
	switch method {
	case "POST", "PUT", "PATCH":
		return true
	}
	return false
}
