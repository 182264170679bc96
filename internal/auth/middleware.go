// Package auth verifies the HS256 tokens issued to shoppers and operators and
// exposes them as gin middleware.
package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	jwt "github.com/golang-jwt/jwt/v4"
)

// Response messages for rejected requests. Every rejection is a 401.
const (
	MsgNoToken      = "Access denied. No token provided."
	MsgTokenExpired = "Token expired. Please login again."
	MsgInvalidToken = "Invalid token."

	MsgAdminRequired = "Access denied. Admin privileges required."
	MsgInvalidAdmin  = "Access denied. Invalid admin."
)

const customerKey = "auth.customer_id"

var (
	// ErrTokenExpired is returned by Verify for tokens past their exp claim.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenInvalid covers every other verification failure.
	ErrTokenInvalid = errors.New("auth: token invalid")
)

// Config carries the verification secret and the operator account. Both are
// injected by the caller.
type Config struct {
	Secret     string
	AdminEmail string
}

// Claims is the token payload. ID identifies a shopper; operators carry
// Admin and Email.
type Claims struct {
	ID    string `json:"id,omitempty"`
	Email string `json:"email,omitempty"`
	Admin bool   `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks tokens against Config.
type Verifier struct {
	cfg Config
}

// NewVerifier returns a Verifier for cfg.
func NewVerifier(cfg Config) *Verifier {
	return &Verifier{cfg: cfg}
}

// Verify parses and validates a signed token.
func (v *Verifier) Verify(tokenStr string) (*Claims, error) {
	if v == nil || v.cfg.Secret == "" {
		return nil, ErrTokenInvalid
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &Claims{}
	_, err := parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(v.cfg.Secret), nil
	})
	if err != nil {
		var ve *jwt.ValidationError
		if errors.As(err, &ve) && ve.Errors&jwt.ValidationErrorExpired != 0 {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// User admits shopper tokens and stores the id claim as the customer identity.
func (v *Verifier) User() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := v.authenticate(c)
		if !ok {
			return
		}
		if claims.ID == "" {
			reject(c, MsgInvalidToken)
			return
		}
		c.Set(customerKey, claims.ID)
		c.Next()
	}
}

// Admin admits only tokens flagged admin for the configured operator email.
func (v *Verifier) Admin() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := v.authenticate(c)
		if !ok {
			return
		}
		if !claims.Admin {
			reject(c, MsgAdminRequired)
			return
		}
		if v.cfg.AdminEmail == "" || !strings.EqualFold(claims.Email, v.cfg.AdminEmail) {
			reject(c, MsgInvalidAdmin)
			return
		}
		c.Next()
	}
}

func (v *Verifier) authenticate(c *gin.Context) (*Claims, bool) {
	tokenStr := extractToken(c.Request)
	if tokenStr == "" {
		reject(c, MsgNoToken)
		return nil, false
	}
	claims, err := v.Verify(tokenStr)
	switch {
	case errors.Is(err, ErrTokenExpired):
		reject(c, MsgTokenExpired)
		return nil, false
	case err != nil:
		reject(c, MsgInvalidToken)
		return nil, false
	}
	return claims, true
}

// CustomerID returns the identity set by User.
func CustomerID(c *gin.Context) (string, bool) {
	id := c.GetString(customerKey)
	return id, id != ""
}

// Issue signs claims valid for ttl. Login is handled elsewhere; this backs
// tests and operator tooling.
func Issue(secret string, claims Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// extractToken reads the token header, falling back to a bearer Authorization header.
func extractToken(r *http.Request) string {
	if t := strings.TrimSpace(r.Header.Get("token")); t != "" {
		return t
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

func reject(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": message})
}
