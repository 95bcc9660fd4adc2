package cron

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryKeepsOrderAndCopies(t *testing.T) {
	registry := NewRegistry()
	expiry := &stubJob{name: "reservation-expiry"}
	scan := &stubJob{name: "stock-alert-scan"}
	require.NoError(t, registry.Register(expiry))
	require.NoError(t, registry.Register(scan))
	require.NoError(t, registry.Register(nil))

	jobs := registry.Jobs()
	require.Equal(t, []Job{expiry, scan}, jobs)
	require.Equal(t, []string{"reservation-expiry", "stock-alert-scan"}, registry.Names())

	jobs[0] = nil
	require.NotNil(t, registry.Jobs()[0], "internal slice leaked")
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	registry := NewRegistry(&stubJob{name: "outbox-retention"}, &stubJob{name: "outbox-retention"})
	require.Len(t, registry.Jobs(), 1)
	require.Error(t, registry.Register(&stubJob{name: "outbox-retention"}))
}
