package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"finker/internal/auth"
)

// SessionCookie carries the signed session token.
const SessionCookie = "finker_session"

const (
	ctxUserID   = "user_id"
	ctxUsername = "username"
)

// RequestLogger tags every request with an id and logs it on completion.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.NewString()
		c.Set("request_id", requestID)
		start := time.Now()

		c.Next()

		logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)))
	}
}

func sessionClaims(c *gin.Context, issuer *auth.TokenIssuer) (*auth.Claims, error) {
	cookie, err := c.Cookie(SessionCookie)
	if err != nil {
		return nil, err
	}
	return issuer.Validate(cookie)
}

// PageAuth guards server-rendered pages; anonymous visitors are sent to the
// login page.
func PageAuth(issuer *auth.TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := sessionClaims(c, issuer)
		if err != nil {
			c.Redirect(http.StatusFound, "/login")
			c.Abort()
			return
		}
		c.Set(ctxUserID, claims.UserID)
		c.Set(ctxUsername, claims.Username)
		c.Next()
	}
}

// APIAuth guards JSON endpoints; anonymous callers get a 401.
func APIAuth(issuer *auth.TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := sessionClaims(c, issuer)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Set(ctxUserID, claims.UserID)
		c.Set(ctxUsername, claims.Username)
		c.Next()
	}
}

// currentUser pulls the authenticated identity the middleware placed in the
// request context. Every core operation requires it.
func currentUser(c *gin.Context) (int64, string, error) {
	id, ok := c.Get(ctxUserID)
	if !ok {
		return 0, "", errors.New("user not found in context")
	}
	userID, ok := id.(int64)
	if !ok {
		return 0, "", errors.New("invalid user id in context")
	}
	username, _ := c.Get(ctxUsername)
	name, _ := username.(string)
	return userID, name, nil
}
