package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// LegacyClaims are the claims carried by first-party HMAC tokens, the
// identity scheme used by Jarvis clients that predate the JWKS identity
// provider. The user key is the `userId` claim, which becomes the owner
// of every job and recipe row.
type LegacyClaims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// ValidateLegacyToken parses and verifies an HMAC-signed token against
// the shared secret. Non-HMAC signing methods are rejected outright so a
// provider-issued RS256 token can never validate against this path.
func ValidateLegacyToken(tokenString, secret string) (*LegacyClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &LegacyClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*LegacyClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}
