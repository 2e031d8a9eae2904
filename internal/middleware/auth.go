package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gigdesk/credits/internal/domain"
	"github.com/gigdesk/credits/pkg/tokenpkg"
	"github.com/gigdesk/credits/pkg/web"
)

const (
	// AuthHeaderKey is the request header carrying the access token.
	AuthHeaderKey = "authorization"
	// AuthTypeBearer is the only supported authorization scheme.
	AuthTypeBearer = "bearer"
	// AuthPayloadKey is the gin context key holding the verified token payload.
	AuthPayloadKey = "authorization_payload"
)

var (
	// ErrAuthHeaderNotFound indicates a missing authorization header.
	ErrAuthHeaderNotFound = errors.New("authorization header is not provided")
	// ErrAuthHeaderInvalidFormat indicates a malformed authorization header.
	ErrAuthHeaderInvalidFormat = errors.New("invalid authorization header format")
	// ErrAdminOnly indicates that the caller lacks the admin role.
	ErrAdminOnly = errors.New("admin role required")
)

// AddAuthorization sets a bearer token on the request. Used by tests.
func AddAuthorization(r *http.Request, tokenMaker tokenpkg.Maker, authType, username string, duration time.Duration) error {
	token, _, err := tokenMaker.CreateToken(username, duration)
	if err != nil {
		return err
	}

	r.Header.Set(AuthHeaderKey, fmt.Sprintf("%s %s", authType, token))

	return nil
}

// AuthMiddleware verifies the bearer token and stores its payload in the
// gin context.
func AuthMiddleware(tokenMaker tokenpkg.Maker) gin.HandlerFunc {
	return func(gctx *gin.Context) {
		authHeader := gctx.GetHeader(AuthHeaderKey)
		if len(authHeader) == 0 {
			gctx.AbortWithStatusJSON(http.StatusUnauthorized, web.Error(ErrAuthHeaderNotFound))
			return
		}

		fields := strings.Fields(authHeader)
		if len(fields) < 2 {
			gctx.AbortWithStatusJSON(http.StatusUnauthorized, web.Error(ErrAuthHeaderInvalidFormat))
			return
		}

		authType := strings.ToLower(fields[0])
		if authType != AuthTypeBearer {
			err := fmt.Errorf("unsupported authorization type %s", authType)
			gctx.AbortWithStatusJSON(http.StatusUnauthorized, web.Error(err))

			return
		}

		payload, err := tokenMaker.VerifyToken(fields[1])
		if err != nil {
			gctx.AbortWithStatusJSON(http.StatusUnauthorized, web.Error(err))
			return
		}

		gctx.Set(AuthPayloadKey, payload)
		gctx.Next()
	}
}

// RoleGetter resolves the current role of a username. Roles live in the
// database rather than the token so revocations take effect immediately.
type RoleGetter interface {
	Role(ctx context.Context, username string) (string, error)
}

// AdminMiddleware rejects callers whose user record does not carry the
// admin role. Must run after AuthMiddleware.
func AdminMiddleware(roles RoleGetter) gin.HandlerFunc {
	return func(gctx *gin.Context) {
		payload := gctx.MustGet(AuthPayloadKey).(*tokenpkg.Payload)

		role, err := roles.Role(gctx.Request.Context(), payload.Username)
		if err != nil {
			gctx.AbortWithStatusJSON(http.StatusUnauthorized, web.Error(err))
			return
		}

		if role != domain.RoleAdmin {
			gctx.AbortWithStatusJSON(http.StatusForbidden, web.Error(ErrAdminOnly))
			return
		}

		gctx.Next()
	}
}
