package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gojwt "github.com/golang-jwt/jwt/v5"

	"github.com/mintel/lpipe/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	e := gin.New()
	e.Use(handlers...)
	e.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	e.POST("/echo", func(c *gin.Context) {
		var body map[string]any
		if err := c.ShouldBindJSON(&body); err != nil {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.JSON(http.StatusOK, body)
	})
	e.GET("/panic", func(*gin.Context) { panic("boom") })
	e.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	return e
}

func serve(e http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	e.ServeHTTP(rr, req)
	return rr
}

func sign(t *testing.T, secret string, claims gojwt.MapClaims) string {
	t.Helper()
	s, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestRecovery(t *testing.T) {
	rec := logger.NewRecorder()
	log := logger.NewWithWriter(&logger.Config{Level: "info", Format: "json"}, rec, "test")
	e := newEngine(Recovery(log))

	rr := serve(e, httptest.NewRequest(http.MethodGet, "/panic", http.NoBody))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if body["error"] != "Internal server error" {
		t.Errorf("unexpected error message: %s", body["error"])
	}
	if rec.Len() == 0 {
		t.Error("expected the panic to be logged")
	}
}

func TestRequestID(t *testing.T) {
	e := newEngine(RequestID())

	rr := serve(e, httptest.NewRequest(http.MethodGet, "/ok", http.NoBody))
	if rr.Header().Get(HeaderRequestID) == "" {
		t.Error("expected a generated request id")
	}

	req := httptest.NewRequest(http.MethodGet, "/ok", http.NoBody)
	req.Header.Set(HeaderRequestID, "custom-id-123")
	if got := serve(e, req).Header().Get(HeaderRequestID); got != "custom-id-123" {
		t.Errorf("expected custom-id-123, got %s", got)
	}
}

func TestCORS(t *testing.T) {
	cfg := &CORSConfig{
		AllowedOrigins: []string{"https://example.com"},
		AllowedMethods: []string{"GET", "POST"},
	}
	e := newEngine(CORS(cfg))

	tests := []struct {
		name       string
		method     string
		origin     string
		wantCode   int
		wantOrigin string
	}{
		{"allowed", http.MethodGet, "https://example.com", http.StatusOK, "https://example.com"},
		{"disallowed", http.MethodGet, "https://evil.com", http.StatusOK, ""},
		{"preflight", http.MethodOptions, "https://example.com", http.StatusNoContent, "https://example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/ok", http.NoBody)
			req.Header.Set("Origin", tt.origin)
			rr := serve(e, req)
			if rr.Code != tt.wantCode {
				t.Errorf("expected %d, got %d", tt.wantCode, rr.Code)
			}
			if got := rr.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("expected origin %q, got %q", tt.wantOrigin, got)
			}
		})
	}
}

func TestBodySizeLimit(t *testing.T) {
	e := newEngine(BodySizeLimit(16))

	small := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(`{"a":1}`))
	if rr := serve(e, small); rr.Code != http.StatusOK {
		t.Errorf("expected 200 for a small body, got %d", rr.Code)
	}
	large := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(`{"a":"`+strings.Repeat("x", 64)+`"}`))
	if rr := serve(e, large); rr.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413 for a large body, got %d", rr.Code)
	}
}

func TestAuth(t *testing.T) {
	const secret = "s3cret"
	e := newEngine(Auth(AuthConfig{Validator: HS256([]byte(secret), "lpipe"), SkipPaths: []string{"/health"}}))

	valid := sign(t, secret, gojwt.MapClaims{"iss": "lpipe", "sub": "ci", "exp": time.Now().Add(time.Hour).Unix()})
	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"valid token", "/ok", "Bearer " + valid, http.StatusOK},
		{"skipped path", "/health", "", http.StatusOK},
		{"missing header", "/ok", "", http.StatusUnauthorized},
		{"wrong scheme", "/ok", "Basic abc", http.StatusUnauthorized},
		{"wrong secret", "/ok", "Bearer " + sign(t, "other", gojwt.MapClaims{"iss": "lpipe"}), http.StatusUnauthorized},
		{"wrong issuer", "/ok", "Bearer " + sign(t, secret, gojwt.MapClaims{"iss": "else"}), http.StatusUnauthorized},
		{"expired", "/ok", "Bearer " + sign(t, secret, gojwt.MapClaims{"iss": "lpipe", "exp": time.Now().Add(-time.Hour).Unix()}), http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, http.NoBody)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if rr := serve(e, req); rr.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rr.Code)
			}
		})
	}
}

func TestRequestLogger(t *testing.T) {
	rec := logger.NewRecorder()
	log := logger.NewWithWriter(&logger.Config{Level: "debug", Format: "json"}, rec, "test")
	e := newEngine(RequestID(), RequestLogger(log))

	serve(e, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
	if rec.Len() != 0 {
		t.Errorf("health checks should not be logged, got %d entries", rec.Len())
	}

	serve(e, httptest.NewRequest(http.MethodGet, "/ok", http.NoBody))
	entries := rec.Entries()
	if len(entries) != 1 || entries[0].Message != "Request completed" {
		t.Fatalf("unexpected entries %+v", entries)
	}
	if entries[0].Fields["request_id"] == nil {
		t.Error("expected the request id to be logged")
	}
}
