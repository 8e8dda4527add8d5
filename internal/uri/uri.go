// Package uri parses JULEA's object://, dobject:// and kv:// URIs by a
// fixed-arity split on "/" rather than a general URL parser — the
// scheme's arity is exact and known in advance, so net/url's generality
// buys nothing here.
package uri

import (
	"fmt"
	"strconv"
	"strings"
)

// Scheme identifies which of the three URI forms was parsed.
type Scheme int

const (
	SchemeObject Scheme = iota
	SchemeDistributedObject
	SchemeKV
)

// URI is the parsed result. Index is meaningful only for Scheme{Object,KV};
// distributed objects have no explicit server index (they use the default
// distribution).
type URI struct {
	Scheme    Scheme
	Index     uint64
	Namespace string
	Name      string // object name or kv key; empty for a namespace-only URI
}

const (
	objectPrefix  = "object://"
	dobjectPrefix = "dobject://"
	kvPrefix      = "kv://"
)

// Parse parses s against the three recognized schemes. Empty parts are
// rejected.
func Parse(s string) (*URI, error) {
	switch {
	case strings.HasPrefix(s, objectPrefix):
		return parseIndexed(s, objectPrefix, SchemeObject)
	case strings.HasPrefix(s, dobjectPrefix):
		return parseNamespaced(s, dobjectPrefix, SchemeDistributedObject)
	case strings.HasPrefix(s, kvPrefix):
		return parseIndexed(s, kvPrefix, SchemeKV)
	default:
		return nil, fmt.Errorf("uri: unrecognized scheme in %q", s)
	}
}

// parseIndexed handles object:// and kv://, both shaped
// <scheme>://<index>/<namespace>[/<name>].
func parseIndexed(s, prefix string, scheme Scheme) (*URI, error) {
	rest := strings.TrimPrefix(s, prefix)
	parts := strings.SplitN(rest, "/", 3)
	if len(parts) < 2 {
		return nil, fmt.Errorf("uri: %q missing namespace", s)
	}
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("uri: %q has an empty path segment", s)
		}
	}
	index, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("uri: %q has a non-numeric index: %w", s, err)
	}
	u := &URI{Scheme: scheme, Index: index, Namespace: parts[1]}
	if len(parts) == 3 {
		u.Name = parts[2]
	}
	return u, nil
}

// parseNamespaced handles dobject://, shaped dobject://<namespace>[/<name>].
func parseNamespaced(s, prefix string, scheme Scheme) (*URI, error) {
	rest := strings.TrimPrefix(s, prefix)
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) < 1 || parts[0] == "" {
		return nil, fmt.Errorf("uri: %q missing namespace", s)
	}
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("uri: %q has an empty path segment", s)
		}
	}
	u := &URI{Scheme: scheme, Namespace: parts[0]}
	if len(parts) == 2 {
		u.Name = parts[1]
	}
	return u, nil
}
