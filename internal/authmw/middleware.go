package authmw

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/Abdirhman569167/astaan-dubing-sub000/internal/utils"
)

// context keys set by RequireRoles
const (
	ctxAccessToken = "kc.access_token"
	ctxUsername    = "kc.username"
	ctxEmail       = "kc.email"
	ctxName        = "kc.name"
	ctxRoles       = "kc.roles"
	ctxSubject     = "kc.sub"
)

type KeycloakAuth struct {
	Issuer   string // e.g. http://localhost:8080/realms/myrealm
	Audience string // empty skips the aud check
	ClientID string // for client roles under resource_access[ClientID].roles

	JWKS   *keyfunc.JWKS
	Leeway time.Duration
}

// NewKeycloakAuth fetches the realm keys once and keeps them refreshed in the background.
func NewKeycloakAuth(jwksURL, issuer, audience, clientID string) (*KeycloakAuth, error) {
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		RefreshInterval:  time.Hour,
		RefreshRateLimit: time.Minute * 5,
		RefreshTimeout:   time.Second * 10,
	})
	if err != nil {
		return nil, err
	}

	return &KeycloakAuth{
		Issuer:   issuer,
		Audience: audience,
		ClientID: clientID,
		JWKS:     jwks,
		Leeway:   30 * time.Second,
	}, nil
}

func (a *KeycloakAuth) Close() {
	if a.JWKS != nil {
		a.JWKS.EndBackground()
	}
}

type KCClaims struct {
	jwt.RegisteredClaims

	PreferredUsername string `json:"preferred_username"`
	Email             string `json:"email"`
	Name              string `json:"name"`

	RealmAccess struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`

	ResourceAccess map[string]struct {
		Roles []string `json:"roles"`
	} `json:"resource_access"`
}

// RequireRoles validates the bearer token and lets the request through when
// the caller holds any of the roles. Role names compare case-insensitively.
func (a *KeycloakAuth) RequireRoles(anyOf ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, err := extractAccessToken(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		claims := &KCClaims{}
		opts := []jwt.ParserOption{
			jwt.WithIssuer(a.Issuer),
			jwt.WithLeeway(a.Leeway),
			jwt.WithValidMethods([]string{"RS256"}),
		}
		if a.Audience != "" {
			opts = append(opts, jwt.WithAudience(a.Audience))
		}
		if _, err = jwt.ParseWithClaims(tokenStr, claims, a.JWKS.Keyfunc, opts...); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		roles := collectRoles(claims, a.ClientID)

		c.Set(ctxAccessToken, tokenStr)
		c.Set(ctxUsername, claims.PreferredUsername)
		c.Set(ctxEmail, claims.Email)
		c.Set(ctxName, claims.Name)
		c.Set(ctxRoles, roles)
		c.Set(ctxSubject, claims.Subject)

		if !hasAnyRole(roles, anyOf...) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
			return
		}

		c.Next()
	}
}

func AccessToken(c *gin.Context) string { return c.GetString(ctxAccessToken) }
func Subject(c *gin.Context) string     { return c.GetString(ctxSubject) }
func Roles(c *gin.Context) []string     { return c.GetStringSlice(ctxRoles) }

// DisplayName prefers the full name, then the username.
func DisplayName(c *gin.Context) string {
	if n := c.GetString(ctxName); n != "" {
		return n
	}
	return c.GetString(ctxUsername)
}

// --- helpers ---

func extractAccessToken(c *gin.Context) (string, error) {
	authz := c.GetHeader("Authorization")
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return strings.TrimSpace(authz[7:]), nil
	}

	if cookie, err := c.Cookie("access_token"); err == nil && cookie != "" {
		return cookie, nil
	}

	return "", errors.New("missing access token")
}

func collectRoles(claims *KCClaims, clientID string) []string {
	out := make([]string, 0, 16)
	out = append(out, claims.RealmAccess.Roles...)

	if clientID != "" && claims.ResourceAccess != nil {
		if ra, ok := claims.ResourceAccess[clientID]; ok {
			out = append(out, ra.Roles...)
		}
	}

	return utils.Uniq(out)
}

func hasAnyRole(userRoles []string, anyOf ...string) bool {
	for _, required := range anyOf {
		if utils.Contains(userRoles, required) {
			return true
		}
	}
	return false
}
