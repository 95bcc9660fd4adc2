package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/stockmonitor/pkg/errors"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "raw=%s", buf.String())
	return entry
}

func TestLoggerErrorIncludesContextFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf})

	ctx := log.WithRequestID(context.Background(), "req-123")
	log.Error(ctx, "boom", errors.New("boom"))

	entry := decodeLine(t, buf)
	assert.Equal(t, "req-123", entry["request_id"])
	assert.Equal(t, "ERROR", entry["severity"])
	assert.NotEmpty(t, entry["stack"])
	assert.NotContains(t, entry, "error_code")
}

func TestLoggerErrorTagsTypedAndPostgresErrors(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Output: buf})

	pgErr := &pgconn.PgError{Code: "23505", Message: "duplicate key"}
	err := pkgerrors.Wrap(pkgerrors.CodeConcurrentWrite, fmt.Errorf("insert: %w", pgErr), "stock record exists")
	log.Error(context.Background(), "create record", err)

	entry := decodeLine(t, buf)
	assert.Equal(t, string(pkgerrors.CodeConcurrentWrite), entry["error_code"])
	assert.Equal(t, "23505", entry["pg_code"])
}

func TestLoggerWarnStackToggle(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf, WarnStack: true})
	log.Warn(context.Background(), "warny")
	entry := decodeLine(t, buf)
	assert.Contains(t, entry, "stack")
	assert.Equal(t, "WARNING", entry["severity"])

	buf.Reset()
	quiet := New(Options{ServiceName: "test", Output: buf})
	quiet.Warn(context.Background(), "warny")
	assert.NotContains(t, decodeLine(t, buf), "stack")
}

func TestLoggerWithVariantFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Output: buf})

	ctx := log.WithVariant(context.Background(), "p-1", "s-1")
	ctx = log.WithReservationID(ctx, "r-1")
	log.Info(ctx, "reserved")

	entry := decodeLine(t, buf)
	for key, want := range map[string]string{"product_id": "p-1", "size_id": "s-1", "reservation_id": "r-1", "service": "test"} {
		assert.Equal(t, want, entry[key], key)
	}
}

func TestLoggerScopesDoNotLeakBetweenContexts(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Output: buf})

	parent := log.WithField(context.Background(), "job", "expiry")
	_ = log.WithField(parent, "batch", 3)
	log.Info(parent, "tick")

	entry := decodeLine(t, buf)
	assert.Equal(t, "expiry", entry["job"])
	assert.NotContains(t, entry, "batch")
}

func TestLoggerDebugFilteredByLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Output: buf})
	log.Debug(context.Background(), "hidden")
	assert.Zero(t, buf.Len())
}

func TestLoggerConcurrentUse(t *testing.T) {
	log := New(Options{ServiceName: "test", Output: &lockedBuffer{}})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx := log.WithField(context.Background(), "worker", i)
			log.Info(ctx, "work")
		}(i)
	}
	wg.Wait()
}

func TestParseLevelDefaults(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, *ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, *ParseLevel("invalid"))
	assert.Equal(t, zerolog.WarnLevel, *ParseLevel(" WARN "))
	assert.Equal(t, zerolog.DebugLevel, *ParseLevel("debug"))
}

func TestLoggerZeroOptionsLogAtInfo(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Output: buf})
	log.Debug(context.Background(), "hidden")
	assert.Zero(t, buf.Len())
	log.Info(context.Background(), "shown")
	assert.Equal(t, "INFO", decodeLine(t, buf)["severity"])
}

func TestLoggerExplicitDebugLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf})
	log.Debug(context.Background(), "visible")
	assert.Equal(t, "DEBUG", decodeLine(t, buf)["severity"])
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}
