// Package identity verifies federated credentials and resolves verified
// external identities to internal accounts.
package identity

import (
	"github.com/golang-jwt/jwt/v5"

	"marketplace-auth/internal/auth"
)

// decodeIDToken extracts the claims we care about from a federated identity
// token without verifying its signature.
//
// TODO: verify the signature against the provider's published JWKS and check
// the audience claim before trusting the payload. Until then this only
// rejects tokens that are structurally malformed.
func decodeIDToken(tokenString string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil, auth.ErrInvalidCredential
	}
	return claims, nil
}

func stringClaim(claims jwt.MapClaims, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}

// DecodeGoogleToken extracts the stable Google subject id plus optional
// profile hints from a Google identity token. Structurally malformed tokens
// and tokens without a subject fail with auth.ErrInvalidCredential.
func DecodeGoogleToken(idToken string) (auth.ExternalIdentity, error) {
	claims, err := decodeIDToken(idToken)
	if err != nil {
		return auth.ExternalIdentity{}, err
	}
	sub := stringClaim(claims, "sub")
	if sub == "" {
		return auth.ExternalIdentity{}, auth.ErrInvalidCredential
	}
	return auth.ExternalIdentity{
		Kind:    auth.KindGoogle,
		Subject: sub,
		Email:   stringClaim(claims, "email"),
		Name:    stringClaim(claims, "name"),
		Picture: stringClaim(claims, "picture"),
	}, nil
}

// DecodeAppleToken extracts the stable Apple subject id plus the optional
// email hint from an Apple identity token. Structurally malformed tokens and
// tokens without a subject fail with auth.ErrInvalidCredential.
func DecodeAppleToken(identityToken string) (auth.ExternalIdentity, error) {
	claims, err := decodeIDToken(identityToken)
	if err != nil {
		return auth.ExternalIdentity{}, err
	}
	sub := stringClaim(claims, "sub")
	if sub == "" {
		return auth.ExternalIdentity{}, auth.ErrInvalidCredential
	}
	return auth.ExternalIdentity{
		Kind:    auth.KindApple,
		Subject: sub,
		Email:   stringClaim(claims, "email"),
	}, nil
}
