package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token type claim values.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

var (
	// ErrExpired is returned when a token's expiry has passed. The boundary
	// is inclusive: a token presented at exactly its expiry instant is
	// already expired.
	ErrExpired = errors.New("token expired")
	// ErrBadSignature is returned when the signature does not verify.
	ErrBadSignature = errors.New("token signature invalid")
	// ErrMalformed is returned for tokens that cannot be parsed or carry
	// claims of the wrong shape.
	ErrMalformed = errors.New("token malformed")
)

// Claims is the fixed, typed claims set carried by every issued token. Open
// extensibility goes through Metadata; everything the core reasons about has
// a named field.
type Claims struct {
	TokenID   string            `json:"jti"`
	FamilyID  string            `json:"fid"`
	TokenType string            `json:"typ"`
	Epoch     int64             `json:"epoch,omitempty"`
	IP        string            `json:"ip,omitempty"`
	UserAgent string            `json:"ua,omitempty"`
	Metadata  map[string]string `json:"meta,omitempty"`
	jwt.RegisteredClaims
}

// CodecConfig configures the [Codec]. The signing key is symmetric (HS256)
// and shared by all server instances; rotating it is a configuration change,
// not a code change.
type CodecConfig struct {
	SigningKey []byte
	Issuer     string
}

// Codec issues and verifies signed, expiring tokens. Verify validates only
// the token's own integrity — signature, expiry, shape — and never consults
// revocation state.
type Codec struct {
	config CodecConfig
	now    func() time.Time
}

// NewCodec creates a [Codec]. The signing key must be at least 32 bytes.
func NewCodec(cfg CodecConfig) (*Codec, error) {
	if len(cfg.SigningKey) < 32 {
		return nil, errors.New("signing key must be at least 32 bytes")
	}
	return &Codec{config: cfg, now: time.Now}, nil
}

// Issue signs the claims with the given TTL and returns the compact token
// string. Subject, TokenID, FamilyID, and TokenType must be set by the
// caller; IssuedAt and ExpiresAt are stamped here.
func (c *Codec) Issue(claims Claims, ttl time.Duration) (string, error) {
	if claims.Subject == "" {
		return "", errors.New("claims missing subject")
	}
	if claims.TokenID == "" || claims.FamilyID == "" {
		return "", errors.New("claims missing token or family id")
	}
	if claims.TokenType != TypeAccess && claims.TokenType != TypeRefresh {
		return "", errors.New("claims missing token type")
	}
	if ttl <= 0 {
		return "", errors.New("ttl must be positive")
	}

	now := c.now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	if c.config.Issuer != "" {
		claims.Issuer = c.config.Issuer
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.config.SigningKey)
}

// Verify parses and validates the token string. Failures are classified as
// [ErrExpired], [ErrBadSignature], or [ErrMalformed]; revocation and reuse
// are layered on by the [Manager], not here.
func (c *Codec) Verify(tokenStr string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if c.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(c.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	parsed, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return c.config.SigningKey, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrBadSignature
		default:
			return nil, ErrMalformed
		}
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrMalformed
	}
	if claims.Subject == "" || claims.TokenID == "" || claims.FamilyID == "" {
		return nil, ErrMalformed
	}
	if claims.TokenType != TypeAccess && claims.TokenType != TypeRefresh {
		return nil, ErrMalformed
	}
	// Inclusive expiry boundary, independent of parser leeway behavior.
	if claims.ExpiresAt == nil || !c.now().Before(claims.ExpiresAt.Time) {
		return nil, ErrExpired
	}

	return claims, nil
}

// Peek decodes the claims WITHOUT verifying signature or expiry. The result
// must never drive an authentication decision; it exists for pre-validation
// concerns like rate limit bucketing.
func (c *Codec) Peek(tokenStr string) (*Claims, error) {
	parser := jwt.NewParser()
	parsed, _, err := parser.ParseUnverified(tokenStr, &Claims{})
	if err != nil {
		return nil, ErrMalformed
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, ErrMalformed
	}
	return claims, nil
}
