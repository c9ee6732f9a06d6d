// Package requestctx carries per-user request values through context.
package requestctx

import "context"

type contextKey string

const (
	keyAccessToken contextKey = "access_token"
	keyUserID      contextKey = "user_id"
	keyRequestID   contextKey = "request_id"
)

// WithAccessToken attaches the upstream bearer token
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, keyAccessToken, token)
}

// AccessToken returns the upstream bearer token, empty if none
func AccessToken(ctx context.Context) string {
	v, _ := ctx.Value(keyAccessToken).(string)
	return v
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, keyUserID, userID)
}

func UserID(ctx context.Context) string {
	v, _ := ctx.Value(keyUserID).(string)
	return v
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, keyRequestID, requestID)
}

func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(keyRequestID).(string)
	return v
}
