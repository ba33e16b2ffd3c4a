package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CredentialState describes one account's session lifecycle.
type CredentialState int

const (
	// StateUnauthenticated means no token has been issued yet.
	StateUnauthenticated CredentialState = iota
	// StateValid means the cached token's expiry is in the future.
	StateValid
	// StateExpired means the cached token is past its expiry or undecodable.
	StateExpired
)

func (s CredentialState) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateValid:
		return "valid"
	case StateExpired:
		return "expired"
	}
	return "unknown"
}

// TokenExpiry decodes the exp claim from a JWT-shaped token without
// verifying its signature. This reads expiry as an expedience only; it is
// not an authentication check.
func TokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// TokenValid reports whether the token's embedded expiry is after now.
func TokenValid(token string, now time.Time) bool {
	exp, ok := TokenExpiry(token)
	return ok && exp.After(now)
}

// StateOf classifies a token into the credential state machine.
func StateOf(token string, now time.Time) CredentialState {
	if token == "" {
		return StateUnauthenticated
	}
	if TokenValid(token, now) {
		return StateValid
	}
	return StateExpired
}
