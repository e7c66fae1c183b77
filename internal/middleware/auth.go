package middleware

import (
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

const (
	HeaderUserID = "X-User-ID"
	HeaderScope  = "X-Token-Scope"
)

// JWTAuth accepts HS256 bearer tokens signed with secret. Both user tokens and
// service tokens carry a user_id claim; the task handlers act on that user.
func JWTAuth(secret string, logger *zap.Logger) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			ctx.Request.Header.Del(HeaderUserID)
			ctx.Request.Header.Del(HeaderScope)

			tokenString := extractToken(ctx)
			if tokenString == "" {
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				return
			}

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				logger.Warn("invalid jwt token", zap.Error(err))
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				return
			}
			userID, _ := claims["user_id"].(string)
			if userID == "" {
				logger.Warn("jwt token without user_id")
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				return
			}
			ctx.Request.Header.Set(HeaderUserID, userID)
			if scope, ok := claims["scope"].(string); ok {
				ctx.Request.Header.Set(HeaderScope, scope)
			}

			next(ctx)
		}
	}
}

// AllowScopes guards a route against restricted tokens. A token without a
// scope claim is a full user token and always passes; a scoped token passes
// only when its scope is listed.
func AllowScopes(next fasthttp.RequestHandler, scopes ...string) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		scope := string(ctx.Request.Header.Peek(HeaderScope))
		if scope == "" {
			next(ctx)
			return
		}
		for _, allowed := range scopes {
			if scope == allowed {
				next(ctx)
				return
			}
		}
		ctx.SetStatusCode(fasthttp.StatusForbidden)
	}
}

// BearerToken returns the raw token of an Authorization header, or "".
func BearerToken(ctx *fasthttp.RequestCtx) string {
	return extractToken(ctx)
}

func extractToken(ctx *fasthttp.RequestCtx) string {
	header := strings.TrimSpace(string(ctx.Request.Header.Peek("Authorization")))
	if header == "" {
		return ""
	}
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return header
}
