package accountsec

import "context"

type sourceAddressContextKey struct{}
type userAgentContextKey struct{}

// WithSourceAddress attaches the caller's network address to ctx. It is used
// when a request or attempt does not carry one explicitly.
func WithSourceAddress(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, sourceAddressContextKey{}, addr)
}

// WithUserAgent attaches the caller's User-Agent to ctx.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

func sourceAddressFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	addr, _ := ctx.Value(sourceAddressContextKey{}).(string)
	return addr
}

func userAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ua, _ := ctx.Value(userAgentContextKey{}).(string)
	return ua
}

func orContext(v string, fromCtx func(context.Context) string, ctx context.Context) string {
	if v != "" {
		return v
	}
	return fromCtx(ctx)
}
