package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shariqriazz/copilotgate/internal/auth"
	log "github.com/sirupsen/logrus"
)

const accessTokenKey = "copilotgate.accessToken"

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("requestID", id)
		c.Header("X-Request-Id", id)
		c.Next()
	}
}

func requestLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debugf("%s %s -> %d (%s) [%s]",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(),
			time.Since(start).Round(time.Millisecond), c.GetString("requestID"))
	}
}

// authMiddleware resolves a valid bearer token for the current credential
// before the request is forwarded upstream. A successful refresh is persisted;
// persistence failure is logged and the request proceeds with the in-memory
// token.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cred := s.Credential()
		if cred == nil {
			abortAuthError(c, http.StatusUnauthorized, "not authenticated; run copilotgate --login or --pat")
			return
		}

		result, errToken := s.orch.GetValidAccessToken(c.Request.Context(), s.cfg.Provider.Name, cred)
		if errToken != nil {
			switch {
			case errors.Is(errToken, auth.ErrNotAuthenticated):
				abortAuthError(c, http.StatusUnauthorized, "not authenticated; run copilotgate --login or --pat")
			case errors.Is(errToken, auth.ErrReauthenticationRequired):
				abortAuthError(c, http.StatusUnauthorized, "credential expired; run copilotgate --login again")
			default:
				log.Errorf("token refresh failed: %v", errToken)
				abortAuthError(c, http.StatusBadGateway, "upstream authentication failed")
			}
			return
		}

		if result.Updated != nil {
			if errSave := s.store.Save(c.Request.Context(), result.Updated); errSave != nil {
				log.Warnf("persist refreshed credential: %v", errSave)
			}
		}

		c.Set(accessTokenKey, result.Token)
		c.Next()
	}
}

func abortAuthError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error": gin.H{"type": "authentication_error", "message": message},
	})
}
