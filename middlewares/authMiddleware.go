package middlewares

import (
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/terrafile/landregistry_backend/models"
	"github.com/terrafile/landregistry_backend/utils"
)

// AuthMiddleware verifies the bearer token and loads the actor's identity and
// capability set into the request context. Anonymous requests pass through;
// protected routes enforce presence via RequireAuth.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		correlationId := c.GetHeader("X-Correlation-Id")
		if correlationId == "" {
			correlationId = uuid.NewString()
		}
		ctx = utils.SetCorrelationIdInContext(ctx, correlationId)
		c.Header("X-Correlation-Id", correlationId)

		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
			return
		}

		token := strings.TrimPrefix(auth, "Bearer ")
		validate, err := utils.JwtValidate(token)
		if err != nil || !validate.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		claim, ok := validate.Claims.(*utils.JwtCustomClaim)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		actor := models.Actor{
			Id:          claim.ID,
			Role:        models.UserRole(claim.Role),
			RoleName:    claim.RoleName,
			Permissions: claim.Permissions,
		}

		ctx = utils.SetTokenInContext(ctx, token)
		ctx = utils.SetUserIdInContext(ctx, actor.Id)
		ctx = utils.SetRoleInContext(ctx, string(actor.Role))
		ctx = utils.SetRoleNameInContext(ctx, actor.RoleName)
		ctx = utils.SetPermissionsInContext(ctx, actor.Permissions)
		ctx = utils.SetIsAdminInContext(ctx, actor.IsAdmin())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// ActorFromContext rebuilds the capability set loaded by AuthMiddleware.
func ActorFromContext(c *gin.Context) (models.Actor, bool) {
	ctx := c.Request.Context()
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == 0 {
		return models.Actor{}, false
	}
	role, _ := utils.GetRoleFromContext(ctx)
	roleName, _ := utils.GetRoleNameFromContext(ctx)
	permissions, _ := utils.GetPermissionsFromContext(ctx)
	return models.Actor{
		Id:          userId,
		Role:        models.UserRole(role),
		RoleName:    roleName,
		Permissions: permissions,
	}, true
}

// RequireAuth rejects anonymous requests.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := ActorFromContext(c); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireRole rejects actors whose role tag is outside the allowed set.
// Admins pass every gate.
func RequireRole(roles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		if !actor.IsAdmin() && !slices.Contains(roles, actor.Role) {
			c.JSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequirePermission rejects actors missing a named permission. The workflow
// layer re-checks capabilities before touching state; this gate exists to
// fail fast at the edge.
func RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		if !actor.HasPermission(permission) {
			c.JSON(http.StatusForbidden, gin.H{"error": "missing permission", "permission": permission})
			c.Abort()
			return
		}
		c.Next()
	}
}
