package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	r := NewRouter()
	v := allowResource("db1")
	require.NoError(t, r.Register(ChangesVariant(v)))
	require.NoError(t, r.Register(TrafficWatchVariant(v)))
	require.NoError(t, r.Register(AdminLogsVariant(v)))
	require.NoError(t, r.Register(ValidateVariant(v)))
	return r
}

func TestRouterMatch(t *testing.T) {
	r := newTestRouter(t)

	tests := []struct {
		path string
		want string
	}{
		{"/changes/websocket", "changes"},
		{"/databases/db1/changes/websocket", "changes"},
		{"/databases/db1/changes/websocket/", "changes"},
		{"/fs/files/traffic-watch/websocket", "traffic-watch"},
		{"/admin/logs/events", "admin-logs"},
		{"/counters/c1/websocket/validate", "validate"},
	}
	for _, tt := range tests {
		v, err := r.Match(tt.path)
		require.NoError(t, err, tt.path)
		assert.Equal(t, tt.want, v.Name, tt.path)
	}

	_, err := r.Match("/databases/db1/docs")
	assert.ErrorIs(t, err, ErrUnknownEndpoint)
}

func TestRouterRegisterErrors(t *testing.T) {
	r := newTestRouter(t)

	assert.ErrorIs(t, r.Register(ChangesVariant(nil)), ErrVariantExists)
	assert.ErrorIs(t, r.Register(&Variant{Name: "bad", Suffix: "nope"}), ErrInvalidConfig)

	r.Freeze()
	assert.ErrorIs(t, r.Register(&Variant{Name: "late", Suffix: "/late"}), ErrRouterFrozen)
	assert.Len(t, r.Variants(), 4)
}
