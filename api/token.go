package api

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// TokenSource supplies the bearer credential for outbound calls.
// The token is opaque; it is never inspected or refreshed here.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed token.
type StaticToken string

// Token implements TokenSource.
func (s StaticToken) Token(context.Context) (string, error) {
	return string(s), nil
}

// FileToken reads the token from a file on every call, so a token rotated
// on disk is picked up without restarting.
type FileToken struct {
	Path string
}

// Token implements TokenSource.
func (f FileToken) Token(context.Context) (string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return "", fmt.Errorf("token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
