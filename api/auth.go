package api

import (
	"errors"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"

	"rootcart/domain"
)

const defaultJWKSCacheTTL = 15 * time.Minute

var errForbidden = errors.New("admin role required")

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Name   string
	Email  string
	Role   string
}

func (p Principal) IsAdmin() bool { return p.Role == domain.RoleAdmin }

// DisplayName is what admins see for this customer.
func (p Principal) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Email
}

// Auth validates bearer tokens, either HS256 with a shared secret or RS256
// against an Auth0 JWKS.
type Auth struct {
	JWKS     *keyfunc.JWKS
	Audience string
	Issuer   string
	secret   []byte

	parser      *jwt.Parser
	keyCache    sync.Map
	keyCacheTTL time.Duration
}

type cachedKey struct {
	key       any
	expiresAt time.Time
}

// NewAuth validates RS256 tokens issued by issuer for audience.
func NewAuth(jwks *keyfunc.JWKS, audience, issuer string) *Auth {
	return &Auth{
		JWKS:        jwks,
		Audience:    audience,
		Issuer:      issuer,
		parser:      jwt.NewParser(jwt.WithValidMethods([]string{"RS256"})),
		keyCacheTTL: defaultJWKSCacheTTL,
	}
}

// NewSharedSecretAuth validates HS256 tokens signed with secret.
func NewSharedSecretAuth(secret string) *Auth {
	if secret == "" {
		panic("api.NewSharedSecretAuth: empty secret")
	}
	return &Auth{
		secret: []byte(secret),
		parser: jwt.NewParser(jwt.WithValidMethods([]string{"HS256"})),
	}
}

// PrincipalFromAuthHeader resolves the caller from an Authorization header.
func (a *Auth) PrincipalFromAuthHeader(h string) (Principal, error) {
	token, err := bearerToken(h)
	if err != nil {
		return Principal{}, err
	}
	return a.PrincipalFromToken(token)
}

func (a *Auth) PrincipalFromToken(tokenStr string) (Principal, error) {
	parsed, err := a.parser.Parse(tokenStr, a.keyFor)
	if err != nil {
		return Principal{}, err
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Principal{}, errors.New("invalid claims")
	}

	now := time.Now().Add(time.Minute).Unix()
	if !claims.VerifyExpiresAt(now, true) {
		return Principal{}, errors.New("token expired")
	}
	if !claims.VerifyNotBefore(now, false) {
		return Principal{}, errors.New("token not valid yet")
	}
	if a.Audience != "" && !claims.VerifyAudience(a.Audience, false) {
		return Principal{}, errors.New("invalid audience")
	}
	if a.Issuer != "" && !claims.VerifyIssuer(a.Issuer, false) {
		return Principal{}, errors.New("invalid issuer")
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return Principal{}, errors.New("missing sub")
	}
	p := Principal{UserID: sub, Role: domain.RoleUser}
	p.Name, _ = claims["name"].(string)
	p.Email, _ = claims["email"].(string)
	if role, _ := claims["role"].(string); role == domain.RoleAdmin {
		p.Role = domain.RoleAdmin
	}
	return p, nil
}

func (a *Auth) keyFor(token *jwt.Token) (any, error) {
	if a.secret != nil {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return a.secret, nil
	}
	if a.JWKS == nil {
		return nil, errors.New("jwks not configured")
	}

	kid, _ := token.Header["kid"].(string)
	if kid != "" && a.keyCacheTTL > 0 {
		if cached, ok := a.keyCache.Load(kid); ok {
			entry := cached.(cachedKey)
			if time.Now().Before(entry.expiresAt) {
				return entry.key, nil
			}
			a.keyCache.Delete(kid)
		}
	}
	key, err := a.JWKS.Keyfunc(token)
	if err != nil {
		return nil, err
	}
	if kid != "" && a.keyCacheTTL > 0 {
		a.keyCache.Store(kid, cachedKey{key: key, expiresAt: time.Now().Add(a.keyCacheTTL)})
	}
	return key, nil
}
