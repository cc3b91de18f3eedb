package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Glorc12/AirConditionerCompany/internal/models"
)

// SessionKey is the gin context key holding the active models.Session.
const SessionKey = "session"

type SessionSource interface {
	Current() (models.Session, bool)
}

// RequireSession rejects requests while nobody is logged in.
func RequireSession(sessions SessionSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := sessions.Current()
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":    "UNAUTHORIZED",
					"message": "Login required",
				},
			})
			return
		}
		c.Set(SessionKey, sess)
		c.Next()
	}
}
