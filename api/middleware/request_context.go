package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockmonitor/pkg/logger"
)

const (
	requestIDHeader = "X-Request-Id"
	maxRequestIDLen = 128
)

type requestInfoKey struct{}

// requestInfo is the per-request identity shared by the middleware chain.
type requestInfo struct {
	requestID string
	userID    string
}

func infoFrom(ctx context.Context) requestInfo {
	if ctx == nil {
		return requestInfo{}
	}
	info, _ := ctx.Value(requestInfoKey{}).(requestInfo)
	return info
}

func withInfo(ctx context.Context, info requestInfo) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, requestInfoKey{}, info)
}

// RequestIDFromContext returns the id assigned by RequestID.
func RequestIDFromContext(ctx context.Context) string {
	return infoFrom(ctx).requestID
}

// UserIDFromContext returns the user_id the caller sent in the body, if any.
func UserIDFromContext(ctx context.Context) string {
	return infoFrom(ctx).userID
}

func WithUserID(ctx context.Context, userID string) context.Context {
	info := infoFrom(ctx)
	info.userID = userID
	return withInfo(ctx, info)
}

// RequestID echoes a caller supplied X-Request-Id or mints one. Oversized or
// non-printable ids are replaced.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := strings.TrimSpace(r.Header.Get(requestIDHeader))
			if !usableRequestID(reqID) {
				reqID = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, reqID)

			info := infoFrom(r.Context())
			info.requestID = reqID
			ctx := withInfo(r.Context(), info)
			if logg != nil {
				ctx = logg.WithRequestID(ctx, reqID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func usableRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}
