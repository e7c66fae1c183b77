package middleware

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/fastygo/taskstream/usecase/auth"
)

const secret = "test-secret"

func run(t *testing.T, authorization string, spoofUser string) (*fasthttp.RequestCtx, string, bool) {
	t.Helper()
	var (
		seenUser string
		called   bool
	)
	handler := JWTAuth(secret, nil)(func(ctx *fasthttp.RequestCtx) {
		called = true
		seenUser = string(ctx.Request.Header.Peek(HeaderUserID))
	})

	ctx := &fasthttp.RequestCtx{}
	if authorization != "" {
		ctx.Request.Header.Set("Authorization", authorization)
	}
	if spoofUser != "" {
		ctx.Request.Header.Set(HeaderUserID, spoofUser)
	}
	handler(ctx)
	return ctx, seenUser, called
}

func TestJWTAuth_AcceptsServiceToken(t *testing.T) {
	issuer := auth.NewIssuer(secret, time.Minute, nil)
	token, err := issuer.IssueFor("u-1")
	require.NoError(t, err)

	_, user, called := run(t, "Bearer "+token, "")

	assert.True(t, called)
	assert.Equal(t, "u-1", user)
}

func TestJWTAuth_Rejects(t *testing.T) {
	wrongSecret, err := auth.NewIssuer("other", time.Minute, nil).IssueFor("u-1")
	require.NoError(t, err)

	noUser, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"}).SignedString([]byte(secret))
	require.NoError(t, err)

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "u-1",
		"exp":     time.Now().Add(-time.Minute).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)

	cases := map[string]string{
		"missing header": "",
		"garbage":        "Bearer not-a-token",
		"wrong secret":   "Bearer " + wrongSecret,
		"no user_id":     "Bearer " + noUser,
		"expired":        "Bearer " + expired,
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			ctx, _, called := run(t, header, "spoofed")

			assert.False(t, called)
			assert.Equal(t, fasthttp.StatusUnauthorized, ctx.Response.StatusCode())
		})
	}
}

func TestJWTAuth_OverridesSpoofedUserHeader(t *testing.T) {
	token, err := auth.NewIssuer(secret, time.Minute, nil).IssueFor("u-1")
	require.NoError(t, err)

	_, user, called := run(t, "Bearer "+token, "someone-else")

	assert.True(t, called)
	assert.Equal(t, "u-1", user)
}

func TestAllowScopes(t *testing.T) {
	serviceToken, err := auth.NewIssuer(secret, time.Minute, nil).IssueFor("u-1")
	require.NoError(t, err)
	userToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": "u-1"}).SignedString([]byte(secret))
	require.NoError(t, err)

	cases := []struct {
		name   string
		token  string
		scopes []string
		want   bool
	}{
		{"service token on creation route", serviceToken, []string{auth.ScopeTasksCreate}, true},
		{"service token elsewhere", serviceToken, nil, false},
		{"user token on creation route", userToken, []string{auth.ScopeTasksCreate}, true},
		{"user token elsewhere", userToken, nil, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			called := false
			handler := JWTAuth(secret, nil)(AllowScopes(func(*fasthttp.RequestCtx) { called = true }, tc.scopes...))

			ctx := &fasthttp.RequestCtx{}
			ctx.Request.Header.Set("Authorization", "Bearer "+tc.token)
			handler(ctx)

			assert.Equal(t, tc.want, called)
			if !tc.want {
				assert.Equal(t, fasthttp.StatusForbidden, ctx.Response.StatusCode())
			}
		})
	}
}
