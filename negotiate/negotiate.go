// Package negotiate picks one content type per logical stream from what the
// function can produce or consume and what the caller accepts.
package negotiate

import (
	"strings"

	"github.com/munnerz/goautoneg"

	invoker "github.com/machinefabric/invoker-go"
)

// Negotiate returns the first entry of accepted, in caller preference order,
// that matches an entry of expected. Accepted entries are media ranges:
// "type/*" and "*/*" match any expected entry in their range, parameters are
// ignored for matching and an entry with q=0 is never acceptable. The
// returned value is the matching expected entry as written.
func Negotiate(expected, accepted []string) (string, error) {
	for _, entry := range accepted {
		// Entries are parsed one at a time: ParseAccept reorders by q and
		// specificity, but the list order is the caller's preference.
		for _, r := range goautoneg.ParseAccept(entry) {
			if r.Q <= 0 {
				continue
			}
			for _, ct := range expected {
				if matches(r, ct) {
					return ct, nil
				}
			}
		}
	}
	return "", invoker.NoCompatibleContentType(expected, accepted)
}

// Base strips parameters from a content type and lower-cases it
func Base(contentType string) string {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

// Compatible reports whether two concrete content types name the same media
// type, ignoring parameters
func Compatible(a, b string) bool {
	return Base(a) == Base(b)
}

func matches(r goautoneg.Accept, contentType string) bool {
	typ, sub, ok := strings.Cut(Base(contentType), "/")
	if !ok {
		return false
	}
	rt := strings.ToLower(r.Type)
	rs := strings.ToLower(r.SubType)
	if rt == "*" {
		return true
	}
	if rt != typ {
		return false
	}
	return rs == "*" || rs == sub
}
