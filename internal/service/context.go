package service

import "context"

type contextKey string

const clientIPKey contextKey = "client_ip"

// ContextWithClientIP attaches the caller's address for audit records.
func ContextWithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey).(string)
	return ip
}
