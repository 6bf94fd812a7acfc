package auth

import (
	"crypto/rsa"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const defaultIssuer = "pelayanan"

// Token classes. Access and refresh tokens are HS256-signed with the shared
// service secret; offline tokens are RS256-signed and verifiable by any
// holder of the public key without contacting the ledger.
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
	TokenOffline TokenType = "offline"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 30 * 24 * time.Hour
	defaultOfflineTTL = 14 * 24 * time.Hour
)

// ErrOfflineDisabled indicates no offline signing key is configured.
// Offline issuance is a soft-disabled feature, not a fatal error.
var ErrOfflineDisabled = errors.New("auth: offline signing key not configured")

// Claims are the verified token claims used across the service.
type Claims struct {
	Role      string `json:"role,omitempty"`
	DeviceID  string `json:"device_id,omitempty"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// Codec encodes and decodes signed tokens. It is stateless; token ids are
// freshly generated 128-bit random identifiers.
type Codec struct {
	secret     []byte
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	offlineTTL time.Duration
	now        func() time.Time
}

// CodecOption configures Codec behavior.
type CodecOption func(*Codec) error

// WithOfflineKeys enables RS256 offline tokens. The public key PEM may be
// empty, in which case the verifying half is derived from the private key.
func WithOfflineKeys(privatePEM, publicPEM string) CodecOption {
	return func(c *Codec) error {
		privatePEM = strings.TrimSpace(privatePEM)
		if privatePEM == "" {
			return nil
		}
		priv, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(privatePEM))
		if err != nil {
			return err
		}
		c.privateKey = priv
		c.publicKey = &priv.PublicKey
		if publicPEM = strings.TrimSpace(publicPEM); publicPEM != "" {
			pub, err := jwt.ParseRSAPublicKeyFromPEM([]byte(publicPEM))
			if err != nil {
				return err
			}
			c.publicKey = pub
		}
		return nil
	}
}

// WithIssuer overrides the issuer claim.
func WithIssuer(issuer string) CodecOption {
	return func(c *Codec) error {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			c.issuer = issuer
		}
		return nil
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) CodecOption {
	return func(c *Codec) error {
		if ttl > 0 {
			c.accessTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) CodecOption {
	return func(c *Codec) error {
		if ttl > 0 {
			c.refreshTTL = ttl
		}
		return nil
	}
}

// WithOfflineTTL configures offline token lifetime.
func WithOfflineTTL(ttl time.Duration) CodecOption {
	return func(c *Codec) error {
		if ttl > 0 {
			c.offlineTTL = ttl
		}
		return nil
	}
}

// WithCodecClock overrides the time source (useful for tests).
func WithCodecClock(fn func() time.Time) CodecOption {
	return func(c *Codec) error {
		if fn != nil {
			c.now = fn
		}
		return nil
	}
}

// NewCodec constructs a Codec signing online tokens with the given secret.
func NewCodec(secret string, opts ...CodecOption) (*Codec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: token secret is required")
	}
	c := &Codec{
		secret:     []byte(secret),
		issuer:     defaultIssuer,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		offlineTTL: defaultOfflineTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// OfflineEnabled reports whether offline token issuance is configured.
func (c *Codec) OfflineEnabled() bool { return c.privateKey != nil }

// Issue signs an access or refresh token for the subject. The role claim is
// omitted for ordinary citizens; deviceID is embedded when non-empty.
func (c *Codec) Issue(subject, role string, typ TokenType, deviceID string) (string, *Claims, error) {
	var ttl time.Duration
	switch typ {
	case TokenAccess:
		ttl = c.accessTTL
	case TokenRefresh:
		ttl = c.refreshTTL
	default:
		return "", nil, errors.New("auth: unsupported online token type")
	}
	if strings.TrimSpace(subject) == "" {
		return "", nil, errors.New("auth: subject is required")
	}

	now := c.now().UTC()
	claims := &Claims{
		Role:      role,
		DeviceID:  deviceID,
		TokenType: string(typ),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// IssueOffline signs an RS256 token carrying subject and device id only,
// for disconnected verification flows. Returns ErrOfflineDisabled when no
// signing key is configured.
func (c *Codec) IssueOffline(subject, deviceID string) (string, error) {
	if c.privateKey == nil {
		return "", ErrOfflineDisabled
	}
	if strings.TrimSpace(subject) == "" || strings.TrimSpace(deviceID) == "" {
		return "", errors.New("auth: subject and device id are required")
	}
	now := c.now().UTC()
	claims := &Claims{
		DeviceID:  deviceID,
		TokenType: string(TokenOffline),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.offlineTTL)),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(c.privateKey)
}

// Decode verifies signature and expiry and returns the structured claims.
// All validation failures map to ErrTokenInvalid.
func (c *Codec) Decode(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenInvalid
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		switch t.Method.(type) {
		case *jwt.SigningMethodHMAC:
			return c.secret, nil
		case *jwt.SigningMethodRSA:
			if c.publicKey == nil {
				return nil, ErrTokenInvalid
			}
			return c.publicKey, nil
		default:
			return nil, ErrTokenInvalid
		}
	}, jwt.WithTimeFunc(func() time.Time { return c.now().UTC() }))
	if err != nil {
		return nil, ErrTokenInvalid
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Issuer != c.issuer {
		return nil, ErrTokenInvalid
	}
	if strings.TrimSpace(claims.Subject) == "" || claims.ID == "" {
		return nil, ErrTokenInvalid
	}
	switch TokenType(claims.TokenType) {
	case TokenAccess, TokenRefresh, TokenOffline:
	default:
		return nil, ErrTokenInvalid
	}
	// Offline tokens must be RS256; online tokens must not be.
	if _, isHMAC := parsed.Method.(*jwt.SigningMethodHMAC); isHMAC == (claims.TokenType == string(TokenOffline)) {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
