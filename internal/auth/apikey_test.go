package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Sannainmf/GmshApp-Hexera/internal/security"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

func TestParseKeysAndVerify(t *testing.T) {
	bcryptHash, err := bcrypt.GenerateFromPassword([]byte("gmk_bcrypt"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("GenerateFromPassword() error = %v", err)
	}
	keys, err := ParseKeys([]string{
		"gmk_plain",
		"sha256:" + security.HashToken("gmk_hashed"),
		string(bcryptHash),
		"  ",
	})
	if err != nil {
		t.Fatalf("ParseKeys() error = %v", err)
	}
	for _, token := range []string{"gmk_plain", "gmk_hashed", "gmk_bcrypt", "gmk_bcrypt"} {
		if !keys.Verify(token) {
			t.Fatalf("Verify(%q) = false, want true", token)
		}
	}
	for _, token := range []string{"", "gmk_other", "sha256:" + security.HashToken("gmk_hashed")} {
		if keys.Verify(token) {
			t.Fatalf("Verify(%q) = true, want false", token)
		}
	}
}

func TestParseKeysRejectsMalformedEntries(t *testing.T) {
	if _, err := ParseKeys([]string{"sha256:abc"}); err == nil {
		t.Fatalf("short sha256 entry should fail")
	}
	if _, err := ParseKeys([]string{"$2a$xx"}); err == nil {
		t.Fatalf("malformed bcrypt entry should fail")
	}
	keys, err := ParseKeys(nil)
	if err != nil || !keys.Empty() {
		t.Fatalf("ParseKeys(nil) = %v, %v; want empty set", keys, err)
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	keys, err := ParseKeys([]string{"gmk_secret"})
	if err != nil {
		t.Fatalf("ParseKeys() error = %v", err)
	}
	r := gin.New()
	r.GET("/guarded", Middleware(keys), func(c *gin.Context) {
		if c.GetString(ContextKeyAuthMethod) != AuthMethodAPIKey {
			t.Errorf("auth method not set")
		}
		c.Status(http.StatusNoContent)
	})

	cases := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"missing", "/guarded", "", http.StatusUnauthorized},
		{"wrong", "/guarded", "Bearer gmk_wrong", http.StatusUnauthorized},
		{"bearer", "/guarded", "Bearer gmk_secret", http.StatusNoContent},
		{"query", "/guarded?token=gmk_secret", "", http.StatusNoContent},
		{"basic scheme ignored", "/guarded", "Basic gmk_secret", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Fatalf("status = %d, want %d", w.Code, tc.want)
			}
		})
	}
}

func TestMiddlewareDisabledWithoutKeys(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/open", Middleware(nil), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/open", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
}
