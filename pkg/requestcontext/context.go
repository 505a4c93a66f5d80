// Package requestcontext carries request-scoped values between middleware and
// services without either side importing net/http.
//
//	accountID := requestcontext.AccountID(ctx)
//	now := requestcontext.Now(ctx)
//
// Tests pin the clock with requestcontext.WithTime.
package requestcontext

import (
	"context"
	"time"

	id "biblioteca/pkg/domain"
)

type key int

const (
	accountKey key = iota
	clientIPKey
	userAgentKey
	deviceKey
	requestIDKey
	clockKey
)

// lookup returns the value stored under k, or T's zero value.
func lookup[T any](ctx context.Context, k key) T {
	v, _ := ctx.Value(k).(T)
	return v
}

// AccountID is the authenticated account, or the nil id for anonymous calls.
func AccountID(ctx context.Context) id.AccountID { return lookup[id.AccountID](ctx, accountKey) }

func WithAccountID(ctx context.Context, accountID id.AccountID) context.Context {
	return context.WithValue(ctx, accountKey, accountID)
}

func ClientIP(ctx context.Context) string  { return lookup[string](ctx, clientIPKey) }
func UserAgent(ctx context.Context) string { return lookup[string](ctx, userAgentKey) }

// Device is the readable client label, e.g. "Firefox on Linux".
func Device(ctx context.Context) string { return lookup[string](ctx, deviceKey) }

// WithClientMetadata stores the caller's network and agent details.
func WithClientMetadata(ctx context.Context, clientIP, userAgent, device string) context.Context {
	ctx = context.WithValue(ctx, clientIPKey, clientIP)
	ctx = context.WithValue(ctx, userAgentKey, userAgent)
	return context.WithValue(ctx, deviceKey, device)
}

func RequestID(ctx context.Context) string { return lookup[string](ctx, requestIDKey) }

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// Now returns the time pinned for this request, falling back to the wall
// clock outside HTTP (CLI, background work).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(clockKey).(time.Time); ok {
		return t
	}
	return time.Now()
}

func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, clockKey, t)
}
