// Package cachecontrol aggregates per-field caching hints into a single
// response-wide policy.
package cachecontrol

import (
	"fmt"
	"strconv"
	"strings"
)

// CacheControl is a caching policy. MaxAge 0 means unset, not zero seconds.
//
// Merge forms a monoid with Default as the identity, so hints collected from
// concurrently resolved fields can be folded in any order.
type CacheControl struct {
	Public bool
	MaxAge int
}

// Default returns the identity policy: public with no max-age.
func Default() CacheControl {
	return CacheControl{Public: true}
}

// Merge combines two policies. The result is private if either side is
// private and carries the smallest non-zero max-age.
func (c CacheControl) Merge(other CacheControl) CacheControl {
	return CacheControl{
		Public: c.Public && other.Public,
		MaxAge: minNonZero(c.MaxAge, other.MaxAge),
	}
}

// MergeAll folds policies starting from Default.
func MergeAll(ccs ...CacheControl) CacheControl {
	out := Default()
	for _, cc := range ccs {
		out = out.Merge(cc)
	}
	return out
}

// IsDefault reports whether c is the identity policy.
func (c CacheControl) IsDefault() bool {
	return c.Public && c.MaxAge == 0
}

// HeaderValue renders c as an HTTP Cache-Control header value. It returns ""
// when no max-age is set.
func (c CacheControl) HeaderValue() string {
	if c.MaxAge <= 0 {
		return ""
	}
	v := "max-age=" + strconv.Itoa(c.MaxAge)
	if !c.Public {
		v += ", private"
	}
	return v
}

func (c CacheControl) String() string {
	scope := "PUBLIC"
	if !c.Public {
		scope = "PRIVATE"
	}
	return fmt.Sprintf("maxAge=%d scope=%s", c.MaxAge, scope)
}

// ParseScope converts a CacheControlScope enum value to the Public flag.
func ParseScope(scope string) (public bool, err error) {
	switch strings.ToUpper(strings.TrimSpace(scope)) {
	case "", "PUBLIC":
		return true, nil
	case "PRIVATE":
		return false, nil
	default:
		return false, fmt.Errorf("unknown cache control scope %q", scope)
	}
}

func minNonZero(a, b int) int {
	switch {
	case a == 0:
		return b
	case b == 0:
		return a
	case a < b:
		return a
	default:
		return b
	}
}
