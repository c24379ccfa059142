package security

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned when a token is malformed, expired, signed with
// the wrong secret, or carries the wrong issuer/audience.
var ErrInvalidToken = errors.New("invalid token")

// TokenKind distinguishes the two credential lifetimes. Access and refresh
// tokens are signed with disjoint secrets, so a token of one kind never
// validates as the other.
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

// Claims holds the JWT claims shared by both token kinds. Subject is the
// user id; SessionID binds the token to its durable session record.
type Claims struct {
	jwt.RegisteredClaims
	SessionID string `json:"session_id"`
}

// TokenProvider issues and validates HS256 access and refresh JWTs.
// It is a pure codec: no I/O, deterministic given secret and clock.
type TokenProvider struct {
	accessSecret  []byte
	refreshSecret []byte
	issuer        string
	audience      string
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// NewTokenProvider returns a TokenProvider that signs access tokens with
// accessSecret and refresh tokens with refreshSecret. The secrets must differ;
// derive both from a master secret with DeriveTokenSecrets.
func NewTokenProvider(accessSecret, refreshSecret []byte, issuer, audience string, accessTTL, refreshTTL time.Duration) *TokenProvider {
	return &TokenProvider{
		accessSecret:  accessSecret,
		refreshSecret: refreshSecret,
		issuer:        issuer,
		audience:      audience,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

// AccessTTL returns the configured access token lifetime.
func (p *TokenProvider) AccessTTL() time.Duration { return p.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (p *TokenProvider) RefreshTTL() time.Duration { return p.refreshTTL }

// IssueAccess issues a short-lived access JWT for the given user and session.
func (p *TokenProvider) IssueAccess(userID, sessionID string) (token string, expiresAt time.Time, err error) {
	return p.issue(userID, sessionID, p.accessSecret, p.accessTTL)
}

// IssueRefresh issues a long-lived refresh JWT for the given user and session.
// The caller must persist HashToken(token) on the session record; the raw
// token is never stored.
func (p *TokenProvider) IssueRefresh(userID, sessionID string) (token string, expiresAt time.Time, err error) {
	return p.issue(userID, sessionID, p.refreshSecret, p.refreshTTL)
}

func (p *TokenProvider) issue(userID, sessionID string, secret []byte, ttl time.Duration) (string, time.Time, error) {
	jti, err := generateJTI()
	if err != nil {
		return "", time.Time{}, err
	}
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		SessionID: sessionID,
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// VerifyAccess validates an access token and returns its user and session ids.
func (p *TokenProvider) VerifyAccess(tokenString string) (userID, sessionID string, err error) {
	return p.verify(tokenString, p.accessSecret)
}

// VerifyRefresh validates a refresh token and returns its user and session ids.
func (p *TokenProvider) VerifyRefresh(tokenString string) (userID, sessionID string, err error) {
	return p.verify(tokenString, p.refreshSecret)
}

// Verify validates a token of the given kind.
func (p *TokenProvider) Verify(tokenString string, kind TokenKind) (userID, sessionID string, err error) {
	switch kind {
	case TokenKindAccess:
		return p.VerifyAccess(tokenString)
	case TokenKindRefresh:
		return p.VerifyRefresh(tokenString)
	default:
		return "", "", ErrInvalidToken
	}
}

func (p *TokenProvider) verify(tokenString string, secret []byte) (string, string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return secret, nil
	},
		jwt.WithIssuer(p.issuer),
		jwt.WithAudience(p.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", "", ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" || claims.SessionID == "" {
		return "", "", ErrInvalidToken
	}
	return claims.Subject, claims.SessionID, nil
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
