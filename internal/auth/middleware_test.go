package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.RegisteredClaims, secret string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func serve(t *testing.T, mw gin.HandlerFunc, header string) (*httptest.ResponseRecorder, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var seen string
	router := gin.New()
	router.GET("/private", mw, func(c *gin.Context) {
		seen, _ = GetUserID(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp, seen
}

func TestJWTMiddlewareAcceptsValidToken(t *testing.T) {
	token := signToken(t, jwt.RegisteredClaims{
		Subject:   "operator-1",
		Audience:  jwt.ClaimStrings{"face-verify"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}, testSecret)

	resp, subject := serve(t, JWTMiddleware(testSecret, "face-verify"), "Bearer "+token)
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, resp.Code)
	}
	if subject != "operator-1" {
		t.Fatalf("unexpected subject %q", subject)
	}
}

func TestJWTMiddlewareRejects(t *testing.T) {
	valid := jwt.RegisteredClaims{Subject: "operator-1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
	expired := jwt.RegisteredClaims{Subject: "operator-1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))}
	noSubject := jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}

	cases := map[string]struct {
		mw     gin.HandlerFunc
		header string
	}{
		"missing header":  {JWTMiddleware(testSecret, ""), ""},
		"wrong scheme":    {JWTMiddleware(testSecret, ""), "Basic abc"},
		"wrong secret":    {JWTMiddleware(testSecret, ""), "Bearer " + signToken(t, valid, "other")},
		"expired":         {JWTMiddleware(testSecret, ""), "Bearer " + signToken(t, expired, testSecret)},
		"missing subject": {JWTMiddleware(testSecret, ""), "Bearer " + signToken(t, noSubject, testSecret)},
		"wrong audience":  {JWTMiddleware(testSecret, "face-verify"), "Bearer " + signToken(t, valid, testSecret)},
		"no secret":       {JWTMiddleware("", ""), "Bearer " + signToken(t, valid, testSecret)},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			resp, _ := serve(t, tc.mw, tc.header)
			if resp.Code != http.StatusUnauthorized {
				t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, resp.Code)
			}
		})
	}
}
