package backend

import "context"

type contextKey string

const accessTokenKey contextKey = "access_token"

// WithAccessToken attaches the caller's access token so backend calls made
// with ctx act on behalf of that session.
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, accessTokenKey, token)
}

// AccessTokenFrom returns the token attached by WithAccessToken, if any.
func AccessTokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(accessTokenKey).(string)
	return token
}
