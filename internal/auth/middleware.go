package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"classroll/internal/marking"
)

const actorKey = "actor"

// TeacherAuth enforces a bearer JWT with the teacher role and stores the
// acting teacher on the context.
func TeacherAuth(signingKey, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if len(authz) < len("bearer ") || !strings.EqualFold(authz[:len("bearer ")], "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHENTICATED", "message": "missing bearer token"})
			return
		}
		tokenStr := strings.TrimSpace(authz[len("bearer "):])
		claims, err := Parse(tokenStr, signingKey, issuer)
		if err == nil && claims.Type != TypeAccess {
			err = ErrInvalidToken
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHENTICATED", "message": "invalid token"})
			return
		}
		if claims.Role != RoleTeacher || claims.TeacherID <= 0 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"code": "FORBIDDEN", "message": "teacher role required"})
			return
		}
		c.Set(actorKey, marking.Actor{TeacherID: claims.TeacherID, Token: tokenStr})
		c.Next()
	}
}

// ActorFrom returns the teacher set by TeacherAuth.
func ActorFrom(c *gin.Context) (marking.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return marking.Actor{}, false
	}
	actor, ok := v.(marking.Actor)
	return actor, ok
}
