package middleware

import (
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tsafe/backend/internal/infrastructure/auth"
	"github.com/tsafe/backend/internal/infrastructure/logger"
)

// Context keys set from validated claims, and the header they come from.
const (
	JWTClaimsKey  = "jwt_claims"
	JWTUserIDKey  = "jwt_user_id"
	JWTIsAdminKey = "jwt_is_admin"
	JWTWalletKey  = "jwt_wallet"
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
)

// JWTMiddlewareConfig configures JWTAuthMiddlewareWithConfig.
type JWTMiddlewareConfig struct {
	JWTService *auth.JWTService
	// TokenBlacklist is consulted for the token's jti when set.
	TokenBlacklist auth.TokenBlacklist
	// SkipPaths match exactly; SkipPathPrefixes match by prefix.
	SkipPaths        []string
	SkipPathPrefixes []string
	// OnError replaces the default 401 envelope.
	OnError func(c *gin.Context, err error)
	Logger  *zap.Logger
}

// DefaultJWTConfig leaves health, metrics, ping and the docs public.
func DefaultJWTConfig(jwtService *auth.JWTService) JWTMiddlewareConfig {
	return JWTMiddlewareConfig{
		JWTService:       jwtService,
		SkipPaths:        []string{"/health", "/metrics", "/api/v1/health", "/api/v1/system/ping"},
		SkipPathPrefixes: []string{"/swagger"},
	}
}

func (cfg JWTMiddlewareConfig) skips(path string) bool {
	return slices.Contains(cfg.SkipPaths, path) || hasAnyPrefix(path, cfg.SkipPathPrefixes)
}

// JWTAuthMiddleware authenticates every request outside DefaultJWTConfig's
// public paths.
func JWTAuthMiddleware(jwtService *auth.JWTService) gin.HandlerFunc {
	return JWTAuthMiddlewareWithConfig(DefaultJWTConfig(jwtService))
}

// JWTAuthMiddlewareWithConfig validates the bearer token, rejects revoked
// tokens and stores the claims on the context. A blacklist lookup failure
// lets the request through: a Redis outage must not lock tourists out of SOS.
func JWTAuthMiddlewareWithConfig(cfg JWTMiddlewareConfig) gin.HandlerFunc {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	fail := func(c *gin.Context, err error) {
		if cfg.OnError != nil {
			cfg.OnError(c, err)
			return
		}
		code, message := authFailure(err)
		log.Warn("JWT authentication failed",
			zap.Error(err),
			zap.String("code", code),
			zap.String("path", c.Request.URL.Path),
		)
		abortWithError(c, http.StatusUnauthorized, code, message)
	}

	return func(c *gin.Context) {
		if cfg.skips(c.Request.URL.Path) {
			c.Next()
			return
		}

		token, ok := bearerToken(c)
		if !ok {
			fail(c, auth.ErrInvalidToken)
			return
		}
		claims, err := cfg.JWTService.Validate(token)
		if err != nil {
			fail(c, err)
			return
		}

		if cfg.TokenBlacklist != nil && claims.ID != "" {
			revoked, err := cfg.TokenBlacklist.IsRevoked(c.Request.Context(), claims.ID)
			switch {
			case err != nil:
				log.Error("Token blacklist lookup failed", zap.String("jti", claims.ID), zap.Error(err))
			case revoked:
				fail(c, auth.ErrTokenRevoked)
				return
			}
		}

		setClaims(c, claims)
		ctx := c.Request.Context()
		ctx, _ = logger.WithUserID(ctx, logger.FromContext(ctx), claims.UserID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// bearerToken extracts a non-empty token from "Authorization: Bearer <token>".
func bearerToken(c *gin.Context) (string, bool) {
	token, found := strings.CutPrefix(c.GetHeader(AuthHeaderKey), BearerPrefix)
	return token, found && token != ""
}

func authFailure(err error) (code, message string) {
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return "TOKEN_EXPIRED", "Token has expired"
	case errors.Is(err, auth.ErrTokenNotYetValid):
		return "TOKEN_NOT_VALID", "Token is not yet valid"
	case errors.Is(err, auth.ErrTokenRevoked):
		return "TOKEN_REVOKED", "Token has been revoked"
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrMissingUserID):
		return "INVALID_TOKEN", "Invalid token"
	default:
		return "UNAUTHORIZED", "Authentication required"
	}
}

func setClaims(c *gin.Context, claims *auth.Claims) {
	c.Set(JWTClaimsKey, claims)
	c.Set(JWTUserIDKey, claims.UserID)
	c.Set(JWTIsAdminKey, claims.IsAdmin)
	c.Set(JWTWalletKey, claims.Wallet)
}

// RequireAdmin rejects callers whose token lacks the is_admin claim. It must
// run after the JWT middleware.
func RequireAdmin(log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		if GetJWTIsAdmin(c) {
			c.Next()
			return
		}
		log.Warn("Admin route denied",
			zap.String("user_id", GetJWTUserID(c)),
			zap.String("path", c.Request.URL.Path),
		)
		abortWithError(c, http.StatusForbidden, "ERR_FORBIDDEN", "Admin access required")
	}
}

// GetJWTClaims returns the validated claims, or nil on public routes.
func GetJWTClaims(c *gin.Context) *auth.Claims {
	v, _ := c.Get(JWTClaimsKey)
	claims, _ := v.(*auth.Claims)
	return claims
}

// GetJWTUserID returns the authenticated user id, or "".
func GetJWTUserID(c *gin.Context) string {
	return c.GetString(JWTUserIDKey)
}

// GetJWTIsAdmin reports whether the caller's token carries is_admin.
func GetJWTIsAdmin(c *gin.Context) bool {
	return c.GetBool(JWTIsAdminKey)
}
