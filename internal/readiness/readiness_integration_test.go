//go:build integration

package readiness

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"testrunner/internal/adapter"
	"testrunner/internal/config"
	"testrunner/internal/profile"
	"testrunner/internal/telemetry"
)

func TestGatePassesForVisibleStaticElement(t *testing.T) {
	cfg := config.DefaultConfig()
	tel, err := telemetry.New(false)
	require.NoError(t, err)

	b := adapter.New(cfg.Browser)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, b.Start(ctx))
	defer b.Shutdown(ctx)

	page, err := b.NewPage(ctx, `data:text/html,<html><body><button id="go">Go</button></body></html>`)
	require.NoError(t, err)
	defer page.Close()

	err = Gate(ctx, page, profile.Static, "#go", nil, tel)
	require.NoError(t, err)
}

func TestGateFailsWhenTargetNeverAppears(t *testing.T) {
	cfg := config.DefaultConfig()
	tel, err := telemetry.New(false)
	require.NoError(t, err)

	b := adapter.New(cfg.Browser)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, b.Start(ctx))
	defer b.Shutdown(ctx)

	page, err := b.NewPage(ctx, `data:text/html,<html><body></body></html>`)
	require.NoError(t, err)
	defer page.Close()

	err = Gate(ctx, page, profile.Static, "#nope", nil, tel)
	require.Error(t, err)
}

func TestGateRunsAppReadyHook(t *testing.T) {
	cfg := config.DefaultConfig()
	tel, err := telemetry.New(false)
	require.NoError(t, err)

	b := adapter.New(cfg.Browser)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, b.Start(ctx))
	defer b.Shutdown(ctx)

	page, err := b.NewPage(ctx, `data:text/html,<html><body></body></html>`)
	require.NoError(t, err)
	defer page.Close()

	called := false
	hook := func(ctx context.Context, p *adapter.Page) (bool, error) {
		called = true
		return true, nil
	}
	require.NoError(t, Gate(ctx, page, profile.Static, "", hook, tel))
	require.True(t, called)
}
