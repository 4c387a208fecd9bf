package cache

import "strings"

// Matcher selects keys for bulk invalidation. Plain string predicates only,
// patterns can come from request bodies.
type Matcher func(key string) bool

// Prefix matches keys starting with p. An empty prefix matches nothing.
func Prefix(p string) Matcher {
	return func(key string) bool {
		return p != "" && strings.HasPrefix(key, p)
	}
}

// Contains matches keys containing s anywhere. An empty s matches nothing.
func Contains(s string) Matcher {
	return func(key string) bool {
		return s != "" && strings.Contains(key, s)
	}
}

// AnyOf matches when at least one of ms matches
func AnyOf(ms ...Matcher) Matcher {
	return func(key string) bool {
		for _, m := range ms {
			if m != nil && m(key) {
				return true
			}
		}
		return false
	}
}
