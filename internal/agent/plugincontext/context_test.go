package plugincontext

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubConfigView struct{ values map[string]string }

func (s stubConfigView) GetString(key string) string       { return s.values[key] }
func (s stubConfigView) GetInt(key string) int              { return 0 }
func (s stubConfigView) GetBool(key string) bool            { return false }
func (s stubConfigView) GetDuration(key string) time.Duration { return 0 }
func (s stubConfigView) GetStringSlice(key string) []string { return nil }
func (s stubConfigView) Unmarshal(out any) error            { return nil }
func (s stubConfigView) Sub(key string) ConfigView          { return stubConfigView{} }

type stubParams struct{}

func (stubParams) Get(ctx context.Context, key string) (string, bool, error) { return "", false, nil }
func (stubParams) Set(ctx context.Context, key, value string) error          { return nil }

type stubCreds struct{}

func (stubCreds) Lookup(id string) (any, bool) { return nil, false }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewScopesLoggerToComponentID(t *testing.T) {
	base := testLogger()
	ctx := New("source-1", stubConfigView{}, base, nil, stubCreds{}, stubParams{})
	require.NotNil(t, ctx.Logger)
	assert.NotSame(t, base, ctx.Logger)
}

func TestNewFallsBackToManagerLoggerWhenIDBlank(t *testing.T) {
	base := testLogger()
	ctx := New("", stubConfigView{}, base, nil, stubCreds{}, stubParams{})
	assert.Same(t, base, ctx.Logger)
}

func TestWithDataDoesNotMutateOriginal(t *testing.T) {
	base := testLogger()
	ctx := New("p-1", stubConfigView{}, base, nil, stubCreds{}, stubParams{})
	ctx.Data["existing"] = 1

	derived := ctx.WithData("upstream_type", "string")

	assert.Equal(t, 1, ctx.Data["existing"])
	_, hasKeyOnOriginal := ctx.Data["upstream_type"]
	assert.False(t, hasKeyOnOriginal)

	assert.Equal(t, 1, derived.Data["existing"])
	assert.Equal(t, "string", derived.Data["upstream_type"])
}
