package ws

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokmz/eventpush/pkg/etag"
)

func newIdleTransport() *Transport {
	return NewTransport(ChangesVariant(allowResource("db1")), nil)
}

func TestRegistryRegisterAndBroadcast(t *testing.T) {
	reg := NewRegistry()
	a, b, c := newIdleTransport(), newIdleTransport(), newIdleTransport()

	reg.Register("changes/db1", a)
	reg.Register("changes/db1", b)
	reg.Register("changes/db2", c)

	assert.Equal(t, 2, reg.Count("changes/db1"))
	assert.Equal(t, []string{"changes/db1", "changes/db2"}, reg.GroupNames())

	n := reg.Broadcast("changes/db1", note("x"))
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, a.Pending())
	assert.Equal(t, 1, b.Pending())
	assert.Equal(t, 0, c.Pending())

	assert.Equal(t, 0, reg.Broadcast("missing", note("x")))
}

func TestRegistryUnregisterRemovesEmptyGroup(t *testing.T) {
	reg := NewRegistry()
	a := newIdleTransport()

	reg.Register("admin-logs", a)
	reg.Unregister("admin-logs", a)
	reg.Unregister("admin-logs", a)

	assert.Empty(t, reg.Groups())
}

func TestRegistryRangeStops(t *testing.T) {
	reg := NewRegistry()
	for i := 0; i < 5; i++ {
		reg.Register("traffic", newIdleTransport())
	}

	seen := 0
	reg.Range("traffic", func(*Transport) bool {
		seen++
		return seen < 2
	})
	assert.Equal(t, 2, seen)
}

func TestRegistryConcurrentAccess(t *testing.T) {
	reg := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			tr := newIdleTransport()
			reg.Register("changes/db1", tr)
			reg.Unregister("changes/db1", tr)
		}()
		go func() {
			defer wg.Done()
			reg.Broadcast("changes/db1", note("x"))
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, reg.Count("changes/db1"))
}

func TestPublisherRoutesToGroups(t *testing.T) {
	reg := NewRegistry()
	changes := newIdleTransport()
	scoped := newIdleTransport()
	global := newIdleTransport()
	logs := newIdleTransport()

	reg.Register(GroupChanges("db1"), changes)
	reg.Register(GroupTraffic("db1"), scoped)
	reg.Register(GroupGlobalTraffic, global)
	reg.Register(GroupAdminLogs, logs)

	pub := NewPublisher(reg)
	assert.Equal(t, 1, pub.PublishChange("db1", ChangeNotification{Type: ChangePut, ID: "users/1", Etag: etag.New(1, 1)}))
	assert.Equal(t, 2, pub.PublishTrace("db1", TrafficTrace{Method: "GET", URL: "/docs", StatusCode: 200, At: time.Now()}))
	assert.Equal(t, 1, pub.PublishTrace(SystemResource, TrafficTrace{Method: "GET", URL: "/admin/stats"}))
	assert.Equal(t, 1, pub.PublishLog(LogRecord{Message: "hello"}))

	assert.Equal(t, 1, changes.Pending())
	assert.Equal(t, 1, scoped.Pending())
	assert.Equal(t, 2, global.Pending())
	assert.Equal(t, 1, logs.Pending())

	msg, ok := scoped.queue.pop()
	require.True(t, ok)
	n, ok := msg.(Notification)
	require.True(t, ok)
	assert.Equal(t, TypeTrafficTrace, n.Type)
	assert.Equal(t, "db1", n.Value.(TrafficTrace).ResourceName)
}
