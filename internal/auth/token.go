// Package auth provides the pluggable token validator the socket
// registry calls during the handshake's auth frame. The wire protocol
// fixes only the frame shape (an opaque token string); what the token
// means is left to whatever identity system fronts the engine.
package auth

import (
	"errors"
	"strings"
)

// ErrInvalidToken is returned for a token the validator cannot resolve
// to a user id.
var ErrInvalidToken = errors.New("auth: invalid token")

// BearerUserIDValidator is the default token validator: it expects the
// token itself to carry the recipient's user id, optionally prefixed
// with "Bearer ", and performs no cryptographic verification. Real
// deployments swap this for a validator backed by whatever session or
// identity provider issues the token; the registry only depends on the
// socket.AuthFunc signature, not on this implementation.
func BearerUserIDValidator(token string) (string, error) {
	token = strings.TrimPrefix(strings.TrimSpace(token), "Bearer ")
	if token == "" {
		return "", ErrInvalidToken
	}
	return token, nil
}
