package store

import (
	"context"
	"errors"
)

// Keys written by the session manager.
const (
	// KeySession holds the serialized session record.
	KeySession = "auth"
	// KeyToken holds the bare bearer token.
	KeyToken = "token"
)

// TokenSource reads the bare bearer token without deserializing the session
// record. It is meant for processes that do not own the session.
type TokenSource struct {
	Backend Backend
}

// Token returns the stored bearer token, or "" when none is stored.
func (t TokenSource) Token(ctx context.Context) (string, error) {
	data, err := t.Backend.Load(ctx, KeyToken)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return string(data), nil
}
