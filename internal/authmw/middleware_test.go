package authmw

import (
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	testIssuer = "http://kc.test/realms/dubbing"
	testKID    = "test-key"
)

func newTestAuth(t *testing.T) (*KeycloakAuth, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	jwks := keyfunc.NewGiven(map[string]keyfunc.GivenKey{
		testKID: keyfunc.NewGivenRSA(&key.PublicKey, keyfunc.GivenKeyOptions{Algorithm: "RS256"}),
	})
	return &KeycloakAuth{Issuer: testIssuer, ClientID: "pms-front", JWKS: jwks, Leeway: time.Second}, key
}

func sign(t *testing.T, key *rsa.PrivateKey, claims *KCClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = testKID
	s, err := tok.SignedString(key)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func claimsWith(realmRoles ...string) *KCClaims {
	c := &KCClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		PreferredUsername: "sam",
		Name:              "Sam Supervisor",
	}
	c.RealmAccess.Roles = realmRoles
	return c
}

func newGuardedEngine(a *KeycloakAuth) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/p", a.RequireRoles("admin", "supervisor"), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"sub": Subject(c), "name": DisplayName(c), "token": AccessToken(c) != ""})
	})
	return r
}

func TestRequireRoles(t *testing.T) {
	auth, key := newTestAuth(t)
	r := newGuardedEngine(auth)

	expired := claimsWith("Supervisor")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	wrongIssuer := claimsWith("admin")
	wrongIssuer.Issuer = "http://elsewhere"

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing token", "", http.StatusUnauthorized},
		{"garbage token", "Bearer nope", http.StatusUnauthorized},
		{"expired", "Bearer " + sign(t, key, expired), http.StatusUnauthorized},
		{"wrong issuer", "Bearer " + sign(t, key, wrongIssuer), http.StatusUnauthorized},
		{"translator", "Bearer " + sign(t, key, claimsWith("Translator")), http.StatusForbidden},
		{"supervisor any case", "Bearer " + sign(t, key, claimsWith("Supervisor")), http.StatusOK},
		{"admin", "bearer " + sign(t, key, claimsWith("admin", "admin")), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/p", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestRequireRolesClientRolesAndCookie(t *testing.T) {
	auth, key := newTestAuth(t)
	r := newGuardedEngine(auth)

	claims := claimsWith()
	claims.ResourceAccess = map[string]struct {
		Roles []string `json:"roles"`
	}{"pms-front": {Roles: []string{"supervisor"}}}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/p", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: sign(t, key, claims)})
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", w.Code, w.Body.String())
	}
}

func TestCollectRolesDeduplicates(t *testing.T) {
	c := claimsWith("admin", "", "admin")
	c.ResourceAccess = map[string]struct {
		Roles []string `json:"roles"`
	}{"pms-front": {Roles: []string{"admin", "editor"}}, "other": {Roles: []string{"x"}}}

	got := collectRoles(c, "pms-front")
	if len(got) != 2 || got[0] != "admin" || got[1] != "editor" {
		t.Fatalf("roles = %v", got)
	}
}
