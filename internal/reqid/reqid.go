// Package reqid carries a correlation id for each request.
package reqid

import (
	"context"
	"unicode"

	"github.com/google/uuid"
)

// Header is the HTTP header a request id is read from and echoed in.
const Header = "X-Request-ID"

// maxLen bounds ids accepted from clients.
const maxLen = 128

type key struct{}

// NewContext returns a copy of parent carrying a freshly generated request ID.
func NewContext(parent context.Context) (context.Context, string) {
	id := uuid.NewString()
	return context.WithValue(parent, key{}, id), id
}

// FromIncoming reuses incoming as the request ID when it is acceptable and
// generates one otherwise.
func FromIncoming(parent context.Context, incoming string) (context.Context, string) {
	if !valid(incoming) {
		return NewContext(parent)
	}
	return context.WithValue(parent, key{}, incoming), incoming
}

// FromContext extracts the request ID from ctx.
// It returns the ID and whether it was present.
func FromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(key{}).(string)
	return id, ok
}

func valid(id string) bool {
	if id == "" || len(id) > maxLen {
		return false
	}
	for _, r := range id {
		if r > unicode.MaxASCII || !unicode.IsPrint(r) || r == ' ' {
			return false
		}
	}
	return true
}
