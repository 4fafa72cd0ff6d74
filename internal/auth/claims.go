package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// UncheckedClaims is the result of decoding a token without verifying its
// signature. The only legitimate use of this type is looking up the claimed
// authority in the directory so its public key can be fetched. It must never
// feed an authorization decision; that is what VerifiedClaims is for.
type UncheckedClaims struct {
	// Subject is the authority ID the token claims to be from.
	Subject string
}

// VerifiedClaims is the claim set of a token whose signature has been checked
// against the directory-resolved public key. Only the authenticator
// constructs values of this type.
type VerifiedClaims struct {
	jwt.RegisteredClaims
}

// DecodeUnverified extracts the claimed subject from a raw token without
// validating anything about it.
func DecodeUnverified(raw string) (UncheckedClaims, error) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return UncheckedClaims{}, fmt.Errorf("failed to decode token: %w", err)
	}
	if claims.Subject == "" {
		return UncheckedClaims{}, fmt.Errorf("token has no subject claim")
	}

	return UncheckedClaims{Subject: claims.Subject}, nil
}
