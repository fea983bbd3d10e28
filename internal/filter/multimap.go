// Package filter decides which suite modules take part in an invocation.
//
// Two kinds of filters are supported:
//   - metadata filters, matched against the config-descriptor metadata a
//     module declares (component, parameter, ...), and
//   - test filters of the form "[abi] module [test]", as accepted by
//     --include-filter, --exclude-filter and subplan entries.
package filter

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrInvalidFilter is returned for filter strings that cannot be parsed.
var ErrInvalidFilter = errors.New("invalid filter")

// MultiMap maps a key to a set of values. A nil MultiMap is empty.
type MultiMap map[string][]string

// Put adds value under key. Duplicate values are ignored.
func (m MultiMap) Put(key, value string) {
	for _, v := range m[key] {
		if v == value {
			return
		}
	}
	m[key] = append(m[key], value)
}

// Get returns the values stored under key.
func (m MultiMap) Get(key string) []string {
	return m[key]
}

// Keys returns the keys in sorted order.
func (m MultiMap) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of keys.
func (m MultiMap) Len() int {
	return len(m)
}

// Clone returns a deep copy.
func (m MultiMap) Clone() MultiMap {
	out := make(MultiMap, len(m))
	for k, vs := range m {
		out[k] = append([]string(nil), vs...)
	}
	return out
}

// String renders the map as "k1=[a b] k2=[c]" with sorted keys.
func (m MultiMap) String() string {
	parts := make([]string, 0, len(m))
	for _, k := range m.Keys() {
		parts = append(parts, fmt.Sprintf("%s=%v", k, m[k]))
	}
	return strings.Join(parts, " ")
}

// ParseMetadataFilters parses "key:value" option values into a MultiMap.
func ParseMetadataFilters(entries []string) (MultiMap, error) {
	m := MultiMap{}
	for _, e := range entries {
		key, value, ok := strings.Cut(e, ":")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: metadata filter %q must be key:value", ErrInvalidFilter, e)
		}
		m.Put(key, strings.TrimSpace(value))
	}
	return m, nil
}
