package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"

	"github.com/xenking/kart-orders/internal/domain/auth"
)

// APIKeyHeader carries service credentials.
const APIKeyHeader = "api_key"

// Claims are the JWT claims issued to storefront users.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// SecurityHandler authenticates requests with either a bearer JWT or an API
// key hashed with HMAC-SHA256.
type SecurityHandler struct {
	apikeys   auth.Repository
	pepper    []byte
	jwtSecret []byte
	parser    *jwt.Parser
}

// NewSecurityHandler creates a SecurityHandler. An empty jwtSecret disables
// bearer tokens; a nil apikeys disables API keys.
func NewSecurityHandler(apikeys auth.Repository, pepper, jwtSecret []byte) *SecurityHandler {
	return &SecurityHandler{
		apikeys:   apikeys,
		pepper:    pepper,
		jwtSecret: jwtSecret,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
	}
}

// Authenticate resolves the caller. Bad or missing credentials yield
// auth.ErrNotAuthenticated; storage failures are returned as is.
func (s *SecurityHandler) Authenticate(r *http.Request) (auth.Identity, error) {
	if token, ok := bearerToken(r); ok {
		return s.authenticateToken(token)
	}
	if key := r.Header.Get(APIKeyHeader); key != "" {
		return s.authenticateKey(r, key)
	}
	return auth.Identity{}, auth.ErrNotAuthenticated
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func (s *SecurityHandler) authenticateToken(raw string) (auth.Identity, error) {
	if len(s.jwtSecret) == 0 {
		return auth.Identity{}, auth.ErrNotAuthenticated
	}
	var claims Claims
	if _, err := s.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return s.jwtSecret, nil
	}); err != nil {
		return auth.Identity{}, errors.Wrap(auth.ErrNotAuthenticated, err.Error())
	}
	if claims.Subject == "" {
		return auth.Identity{}, errors.Wrap(auth.ErrNotAuthenticated, "token has no subject")
	}
	return auth.Identity{UserID: claims.Subject, Role: auth.ParseRole(claims.Role)}, nil
}

func (s *SecurityHandler) authenticateKey(r *http.Request, key string) (auth.Identity, error) {
	if s.apikeys == nil {
		return auth.Identity{}, auth.ErrNotAuthenticated
	}
	hash := HashAPIKey(s.pepper, key)

	info, err := s.apikeys.FindByHash(r.Context(), hex.EncodeToString(hash))
	if err != nil {
		if errors.Is(err, auth.ErrNotAuthenticated) {
			return auth.Identity{}, auth.ErrNotAuthenticated
		}
		return auth.Identity{}, errors.Wrap(err, "find api key")
	}

	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil || subtle.ConstantTimeCompare(hash, stored) != 1 {
		return auth.Identity{}, auth.ErrNotAuthenticated
	}
	return info.Identity(), nil
}

// HashAPIKey returns HMAC-SHA256(pepper, key).
func HashAPIKey(pepper []byte, key string) []byte {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return mac.Sum(nil)
}

// IssueToken signs a user token valid for ttl.
func IssueToken(secret []byte, id auth.Identity, ttl time.Duration, now time.Time) (string, error) {
	claims := Claims{
		Role: string(id.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return signed, nil
}
