package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/stockmonitor/api/responses"
	pkgerrors "github.com/angelmondragon/stockmonitor/pkg/errors"
	"github.com/angelmondragon/stockmonitor/pkg/logger"
	pkgredis "github.com/angelmondragon/stockmonitor/pkg/redis"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayHeader      = "Idempotent-Replay"
	maxKeyLength      = 255

	defaultReplayTTL   = 24 * time.Hour
	defaultInFlightTTL = 30 * time.Second
)

// ReplayStore is the redis surface the replay cache needs. SetXX lets the
// finished response replace the in-flight claim only while that claim lives.
type ReplayStore interface {
	pkgredis.IdempotencyStore
	SetXX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
}

// IdempotencyOptions configure which routes replay stored responses.
type IdempotencyOptions struct {
	// Routes lists chi route patterns of POST endpoints that accept Idempotency-Key.
	Routes []string
	TTL    time.Duration
	// InFlightTTL bounds how long a claim blocks duplicates when the
	// handler never finishes (crash, lost connection to redis).
	InFlightTTL time.Duration
	// Require rejects requests to a listed route that omit the header.
	Require bool
}

type replayState string

const (
	statePending  replayState = "pending"
	stateComplete replayState = "complete"
)

type replayRecord struct {
	State       replayState `json:"state"`
	RequestHash string      `json:"request_hash"`
	Status      int         `json:"status,omitempty"`
	ContentType string      `json:"content_type,omitempty"`
	// Body is base64 in the stored JSON.
	Body []byte `json:"body,omitempty"`
}

// Idempotency makes a keyed POST act at most once. The first request claims
// the key before the handler runs; duplicates arriving meanwhile get a
// retryable 503, later ones get the stored response. Reusing a key with a
// different body is rejected. 5xx responses release the key.
func Idempotency(store ReplayStore, opts IdempotencyOptions, logg *logger.Logger) func(http.Handler) http.Handler {
	if opts.TTL <= 0 {
		opts.TTL = defaultReplayTTL
	}
	if opts.InFlightTTL <= 0 {
		opts.InFlightTTL = defaultInFlightTTL
	}
	routes := make(map[string]bool, len(opts.Routes))
	for _, route := range opts.Routes {
		routes[route] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if store == nil || r.Method != http.MethodPost || !routes[routePattern(r)] {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			idemKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			switch {
			case idemKey == "" && opts.Require:
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			case idemKey == "":
				next.ServeHTTP(w, r)
				return
			case len(idemKey) > maxKeyLength:
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key too long"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unable to read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			digest := sha256.Sum256(body)
			hash := hex.EncodeToString(digest[:])
			key := store.IdempotencyKey(scopeOf(r), idemKey)

			claim, _ := json.Marshal(replayRecord{State: statePending, RequestHash: hash})
			claimed, err := store.SetNX(ctx, key, string(claim), opts.InFlightTTL)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key"))
				return
			}
			if !claimed {
				replayExisting(ctx, logg, w, store, key, hash)
				return
			}

			stored := false
			defer func() {
				if !stored {
					// frees the key on 5xx, panic or a failed write so the client can retry
					if delErr := store.Del(context.WithoutCancel(ctx), key); delErr != nil && logg != nil {
						logg.Error(ctx, "release idempotency key", delErr)
					}
				}
			}()

			var captured bytes.Buffer
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Tee(&captured)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			if status >= http.StatusInternalServerError {
				return
			}

			payload, err := json.Marshal(replayRecord{
				State:       stateComplete,
				RequestHash: hash,
				Status:      status,
				ContentType: ww.Header().Get("Content-Type"),
				Body:        captured.Bytes(),
			})
			if err != nil {
				return
			}
			replaced, err := store.SetXX(context.WithoutCancel(ctx), key, string(payload), opts.TTL)
			switch {
			case err != nil:
				if logg != nil {
					logg.Error(ctx, "persist idempotency record", err)
				}
			case !replaced:
				if logg != nil {
					logg.Warn(logg.WithField(ctx, "idempotency_key", idemKey), "idempotency claim expired before the response was stored")
				}
				stored = true
			default:
				stored = true
			}
		})
	}
}

func replayExisting(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, store ReplayStore, key, hash string) {
	raw, err := store.Get(ctx, key)
	if err != nil && !errors.Is(err, redis.Nil) {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read idempotency record"))
		return
	}
	if raw == "" {
		// the claim was released between SetNX and Get
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConcurrentWrite, "idempotency key released, retry the request"))
		return
	}

	var record replayRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	if record.RequestHash != hash {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
		return
	}
	if record.State != stateComplete {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConcurrentWrite, "a request with this idempotency key is in progress"))
		return
	}

	if record.ContentType != "" {
		w.Header().Set("Content-Type", record.ContentType)
	}
	w.Header().Set(replayHeader, "true")
	w.WriteHeader(record.Status)
	_, _ = w.Write(record.Body)
}

// scopeOf keeps keys from different callers and endpoints apart.
func scopeOf(r *http.Request) string {
	return UserIDFromContext(r.Context()) + "|" + r.Method + "|" + r.URL.Path
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}
