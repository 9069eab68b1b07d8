package middleware

import (
	"errors"
	"strings"

	"github.com/futureofwork/core/internal/models"
	"github.com/futureofwork/core/internal/pkg/jwt"
	"github.com/futureofwork/core/internal/pkg/response"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const (
	ContextKeyUserID = "user_id"
	ContextKeySID    = "session_id"
)

var errSessionRevoked = errors.New("session expired or revoked")

// SessionChecker reports whether the refresh session behind a token is live.
type SessionChecker interface {
	IsActive(userID, sessionID string) (bool, error)
}

// Authenticator validates access tokens against the session ledger.
type Authenticator struct {
	signer   *jwt.Signer
	sessions SessionChecker
	db       *gorm.DB
}

func NewAuthenticator(signer *jwt.Signer, sessions SessionChecker, db *gorm.DB) *Authenticator {
	return &Authenticator{signer: signer, sessions: sessions, db: db}
}

// Auth rejects requests without a valid access token.
func (a *Authenticator) Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := a.Validate(extractToken(c))
		if err != nil {
			response.Unauthorized(c)
			return
		}
		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeySID, claims.SessionID)
		c.Next()
	}
}

// OptionalAuth sets the user ID if a valid token is present, but does not block the request.
func (a *Authenticator) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, err := a.Validate(extractToken(c)); err == nil {
			c.Set(ContextKeyUserID, claims.UserID)
			c.Set(ContextKeySID, claims.SessionID)
		}
		c.Next()
	}
}

// PlatformAdmin must run after Auth.
func (a *Authenticator) PlatformAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var u models.UserModel
		err := a.db.WithContext(c.Request.Context()).
			Select("id", "is_platform_admin", "is_active").
			First(&u, "id = ?", CurrentUserID(c)).Error
		if err != nil || !u.IsPlatformAdmin || !u.IsActive {
			response.Forbidden(c)
			return
		}
		c.Next()
	}
}

// Validate parses an access token and checks its session.
func (a *Authenticator) Validate(rawToken string) (*jwt.Claims, error) {
	token := NormalizeToken(rawToken)
	if token == "" {
		return nil, errors.New("token is required")
	}
	claims, err := a.signer.Parse(token, jwt.TypeAccess)
	if err != nil {
		return nil, err
	}
	active, err := a.sessions.IsActive(claims.UserID, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, errSessionRevoked
	}
	return claims, nil
}

// CurrentUserID extracts the authenticated user ID from context.
func CurrentUserID(c *gin.Context) string {
	v, _ := c.Get(ContextKeyUserID)
	id, _ := v.(string)
	return id
}

// CurrentSessionID extracts the authenticated session ID from context.
func CurrentSessionID(c *gin.Context) string {
	v, _ := c.Get(ContextKeySID)
	id, _ := v.(string)
	return id
}

// IsAuthenticated returns true if the request has a valid auth token.
func IsAuthenticated(c *gin.Context) bool {
	return CurrentUserID(c) != ""
}

func extractToken(c *gin.Context) string {
	return NormalizeToken(c.GetHeader("Authorization"))
}

// NormalizeToken trims spaces and strips optional Bearer prefix.
func NormalizeToken(raw string) string {
	token := strings.TrimSpace(raw)
	if token == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		return strings.TrimSpace(token[7:])
	}
	return token
}
