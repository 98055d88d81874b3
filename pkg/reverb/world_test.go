package reverb

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lelabodugame/reverb/pkg/transport"
)

func newServerWorld(t *testing.T, opts ...Option) (*World, *transport.Server) {
	t.Helper()
	srv := transport.NewServer(nil)
	require.NoError(t, srv.Listen("127.0.0.1:0"))
	t.Cleanup(func() { srv.Stop() })

	w := NewServerWorld(NewTypeRegistry(), srv, nil, opts...)
	return w, srv
}

func TestAddServerAssignsUIDAndFiresOnInit(t *testing.T) {
	w, _ := newServerWorld(t)

	initDone := make(chan struct{})
	e := newStubEntity(nil)
	e.OnInitFromServer = func() { close(initDone) }

	uid, err := w.AddServer(e)
	require.NoError(t, err)
	assert.NotEqual(t, UnknownUID, uid)
	assert.Equal(t, uid, e.UID())

	select {
	case <-initDone:
	case <-time.After(time.Second):
		t.Fatal("OnInitFromServer never fired")
	}
}

func TestAddServerRejectsAlreadyAssignedUID(t *testing.T) {
	w, _ := newServerWorld(t)
	e := newStubEntity(nil)
	e.Base().uid = "preassigned-uid" // simulate an entity reused from elsewhere, never added here

	_, err := w.AddServer(e)
	assert.True(t, errors.Is(err, ErrUIDAlreadyAssigned))
}

func TestAddServerRejectsSameInstanceTwice(t *testing.T) {
	w, _ := newServerWorld(t)
	e := newStubEntity(nil)
	_, err := w.AddServer(e)
	require.NoError(t, err)

	// The live-entity pointer scan catches re-adding the same instance
	// before the uid check would even run.
	_, err = w.AddServer(e)
	assert.True(t, errors.Is(err, ErrDuplicateEntity))
}

func TestAddServerOnClientWorldReturnsErrWrongSide(t *testing.T) {
	cli := transport.NewClient(nil)
	w := NewClientWorld(NewTypeRegistry(), cli, nil)

	_, err := w.AddServer(newStubEntity(nil))
	assert.True(t, errors.Is(err, ErrWrongSide))
}

func TestRemoveTombstonesThenReaps(t *testing.T) {
	w, _ := newServerWorld(t, WithReapDelay(20*time.Millisecond))

	destroyed := make(chan struct{})
	e := newStubEntity(nil)
	e.OnDestroyFromServer = func() { close(destroyed) }
	uid, err := w.AddServer(e)
	require.NoError(t, err)

	require.NoError(t, w.Remove(uid))

	select {
	case <-destroyed:
	case <-time.After(time.Second):
		t.Fatal("OnDestroyFromServer never fired")
	}

	_, err = w.GetEntity(uid)
	assert.True(t, errors.Is(err, ErrEntityNotFound), "tombstoned entity should already read as not found")

	w.mu.RLock()
	_, stillPresent := w.live[uid]
	w.mu.RUnlock()
	assert.True(t, stillPresent, "tombstone should still occupy the slot before the reap delay elapses")

	time.Sleep(100 * time.Millisecond)

	w.mu.RLock()
	_, stillPresent = w.live[uid]
	w.mu.RUnlock()
	assert.False(t, stillPresent, "entry should be physically reaped after the delay")
}

func TestRemoveUnknownUIDReturnsErrEntityNotFound(t *testing.T) {
	w, _ := newServerWorld(t)
	err := w.Remove("nope")
	assert.True(t, errors.Is(err, ErrEntityNotFound))
}

func TestRemoveIsIdempotentOnAlreadyTombstonedUID(t *testing.T) {
	w, _ := newServerWorld(t, WithReapDelay(time.Hour))
	e := newStubEntity(nil)
	uid, err := w.AddServer(e)
	require.NoError(t, err)

	require.NoError(t, w.Remove(uid))
	assert.NoError(t, w.Remove(uid))
}

func TestByTypeFiltersTombstonesAndOtherTypes(t *testing.T) {
	w, _ := newServerWorld(t, WithReapDelay(time.Hour))

	p1 := &stubEntity{BaseEntity: NewBaseEntity("Player", 0, nil)}
	p2 := &stubEntity{BaseEntity: NewBaseEntity("Player", 0, nil)}
	enemy := &stubEntity{BaseEntity: NewBaseEntity("Enemy", 0, nil)}

	uid1, err := w.AddServer(p1)
	require.NoError(t, err)
	_, err = w.AddServer(p2)
	require.NoError(t, err)
	_, err = w.AddServer(enemy)
	require.NoError(t, err)

	require.NoError(t, w.Remove(uid1))

	players := w.ByType("Player")
	assert.Len(t, players, 1)
	assert.Same(t, p2, players[0])
}

func TestGetEntityUnknownUIDReturnsErrEntityNotFound(t *testing.T) {
	w, _ := newServerWorld(t)
	_, err := w.GetEntity("nope")
	assert.True(t, errors.Is(err, ErrEntityNotFound))
}
