package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	gojwt "github.com/golang-jwt/jwt/v5"
)

// KeyClaims is the gin context key of the validated token claims.
const KeyClaims = "claims"

// TokenValidator validates a bearer token and returns its claims.
type TokenValidator func(token string) (map[string]interface{}, error)

// AuthConfig configures the bearer authentication middleware.
type AuthConfig struct {
	Validator TokenValidator
	// SkipPaths are URL path prefixes that bypass authentication.
	SkipPaths []string
}

// Auth rejects requests without a valid bearer token with 401. Validated
// claims are stored under KeyClaims.
func Auth(cfg AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, skip := range cfg.SkipPaths {
			if strings.HasPrefix(path, skip) {
				c.Next()
				return
			}
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header required",
			})
			return
		}

		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || scheme != "Bearer" || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid authorization header format",
			})
			return
		}

		claims, err := cfg.Validator(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid token",
			})
			return
		}
		c.Set(KeyClaims, claims)
		c.Next()
	}
}

// HS256 returns a validator accepting HMAC-SHA256 tokens signed with
// secret. A non-empty issuer must match the "iss" claim.
func HS256(secret []byte, issuer string) TokenValidator {
	opts := []gojwt.ParserOption{gojwt.WithValidMethods([]string{gojwt.SigningMethodHS256.Alg()})}
	if issuer != "" {
		opts = append(opts, gojwt.WithIssuer(issuer))
	}
	parser := gojwt.NewParser(opts...)

	return func(token string) (map[string]interface{}, error) {
		claims := gojwt.MapClaims{}
		parsed, err := parser.ParseWithClaims(token, claims, func(*gojwt.Token) (interface{}, error) {
			return secret, nil
		})
		if err != nil {
			return nil, fmt.Errorf("parse token: %w", err)
		}
		if !parsed.Valid {
			return nil, errors.New("invalid token")
		}
		return claims, nil
	}
}
