// Package reverb implements the replication engine: the entity registry,
// identity assignment, per-field change tracking, spawn/sync/despawn
// protocol, and bidirectional remote method dispatch. It is built on
// pkg/transport and pkg/frame.
package reverb

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lelabodugame/reverb/pkg/transport"
)

type side int

const (
	modeServer side = iota
	modeClient
)

const defaultReapDelay = 3 * time.Second

// liveEntry is a tagged union in place of a magic sentinel value: either a
// live entity, or a tombstone left behind after a despawn until the reap
// delay elapses (server-side only; clients remove entries immediately).
type liveEntry struct {
	entity    Entity
	tombstone bool
}

// World is the live registry and mediator: it owns the uid→entity table,
// assigns identities on the server, applies spawns/diffs/despawns on the
// client, and routes remote method calls. A mutex-guarded map with
// copy-before-iterate snapshots backs every scan, and each lifecycle hook
// runs in its own goroutine.
type World struct {
	mode  side
	types *TypeRegistry
	log   *zap.SugaredLogger

	reapDelay time.Duration

	srv *transport.Server
	cli *transport.Client

	mu   sync.RWMutex
	live map[string]*liveEntry
}

// NewServerWorld constructs the server-side replication engine, wiring its
// handlers onto srv's event registry.
func NewServerWorld(types *TypeRegistry, srv *transport.Server, log *zap.SugaredLogger, opts ...Option) *World {
	w := &World{
		mode:      modeServer,
		types:     types,
		srv:       srv,
		log:       log,
		reapDelay: defaultReapDelay,
		live:      map[string]*liveEntry{},
	}
	for _, o := range opts {
		o(w)
	}

	srv.Events.On(transport.EventClientConnection, w.handleClientConnection)
	srv.Events.On(transport.PacketCallingServer, w.handleCallingServer)
	return w
}

// NewClientWorld constructs the client-side replication engine, wiring its
// handlers onto cli's event registry.
func NewClientWorld(types *TypeRegistry, cli *transport.Client, log *zap.SugaredLogger, opts ...Option) *World {
	w := &World{
		mode:      modeClient,
		types:     types,
		cli:       cli,
		log:       log,
		reapDelay: defaultReapDelay,
		live:      map[string]*liveEntry{},
	}
	for _, o := range opts {
		o(w)
	}

	cli.Events.On(transport.PacketServerSync, w.handleServerSync)
	cli.Events.On(transport.PacketRemoveRO, w.handleRemoveRO)
	cli.Events.On(transport.PacketCallingClient, w.handleCallingClient)
	return w
}

// AddServer registers a freshly constructed entity, assigns it a uid, and
// spawns its on-init-from-server hook. It is server-only.
func (w *World) AddServer(e Entity) (string, error) {
	if w.mode != modeServer {
		return "", fmt.Errorf("%w: AddServer is server-only", ErrWrongSide)
	}
	base := e.Base()

	w.mu.RLock()
	for _, entry := range w.live {
		if !entry.tombstone && entry.entity == e {
			w.mu.RUnlock()
			return "", fmt.Errorf("%w: %s", ErrDuplicateEntity, base.typeName)
		}
	}
	w.mu.RUnlock()

	if base.uid != UnknownUID {
		return "", fmt.Errorf("%w: %s already has uid %s", ErrUIDAlreadyAssigned, base.typeName, base.uid)
	}

	uid := uuid.NewString()
	base.uid = uid
	base.world = w

	w.mu.Lock()
	w.live[uid] = &liveEntry{entity: e}
	w.mu.Unlock()

	go base.OnInitFromServer()

	if w.log != nil {
		w.log.Debugf("spawned %s uid=%s owner=%d", base.typeName, uid, base.ownerTag)
	}
	return uid, nil
}

// Remove despawns uid: it marks the entity dead, installs a tombstone,
// fires on-destroy-from-server, broadcasts remove_ro, and schedules
// physical removal after the reap delay. Removing an already-tombstoned
// uid is a no-op; removing a uid that never existed is ErrEntityNotFound.
func (w *World) Remove(uid string) error {
	if w.mode != modeServer {
		return fmt.Errorf("%w: Remove is server-only", ErrWrongSide)
	}

	w.mu.Lock()
	entry, ok := w.live[uid]
	if !ok {
		w.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrEntityNotFound, uid)
	}
	if entry.tombstone {
		w.mu.Unlock()
		return nil
	}
	base := entry.entity.Base()
	base.alive = false
	w.live[uid] = &liveEntry{tombstone: true}
	w.mu.Unlock()

	go base.OnDestroyFromServer()

	if err := w.srv.Broadcast(transport.PacketRemoveRO, uid); err != nil && w.log != nil {
		w.log.Warnf("broadcasting remove_ro for %s: %v", uid, err)
	}

	delay := w.reapDelay
	go func() {
		time.Sleep(delay)
		w.mu.Lock()
		delete(w.live, uid)
		w.mu.Unlock()
	}()

	return nil
}

// ByType returns every live, non-tombstoned entity whose class matches
// typeName. It is a linear scan over the live table.
func (w *World) ByType(typeName string) []Entity {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var out []Entity
	for _, entry := range w.live {
		if entry.tombstone {
			continue
		}
		if entry.entity.Base().typeName == typeName {
			out = append(out, entry.entity)
		}
	}
	return out
}

// GetEntity looks up uid directly. Unlike the silent-drop behavior of the
// remote-call dispatch paths, a direct lookup raises ErrEntityNotFound for
// an absent or tombstoned uid.
func (w *World) GetEntity(uid string) (Entity, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	entry, ok := w.live[uid]
	if !ok || entry.tombstone {
		return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, uid)
	}
	return entry.entity, nil
}

func (w *World) localPort() int {
	if w.cli == nil {
		return 0
	}
	return w.cli.LocalPort()
}

func (w *World) sendCallingServer(uid, method string, args []any) error {
	all := append([]any{uid, method}, args...)
	return w.cli.Send(transport.PacketCallingServer, all...)
}

func (w *World) sendCallingClient(uid, method string, args []any) error {
	all := append([]any{uid, method}, args...)
	return w.srv.Broadcast(transport.PacketCallingClient, all...)
}

// handleCallingServer dispatches a calling_server_computing packet to the
// named method on the addressed entity. A uid that is missing or
// tombstoned is dropped silently — it likely means the entity was removed
// while this call was in flight, not a protocol error.
func (w *World) handleCallingServer(sock net.Conn, contents []json.RawMessage) {
	uid, method, args, ok := decodeCall(contents)
	if !ok {
		return
	}

	e, err := w.GetEntity(uid)
	if err != nil {
		if w.log != nil {
			w.log.Warnf("calling_server_computing for unknown/removed uid %s: dropped", uid)
		}
		return
	}
	if err := e.Base().Invoke(method, args); err != nil {
		if w.log != nil {
			w.log.Warnf("calling_server_computing: %v", err)
		}
	}
}

// handleCallingClient is the client-side symmetric counterpart of
// handleCallingServer.
func (w *World) handleCallingClient(sock net.Conn, contents []json.RawMessage) {
	uid, method, args, ok := decodeCall(contents)
	if !ok {
		return
	}

	e, err := w.GetEntity(uid)
	if err != nil {
		if w.log != nil {
			w.log.Warnf("calling_client_computing for unknown/removed uid %s: dropped", uid)
		}
		return
	}
	if err := e.Base().Invoke(method, args); err != nil {
		if w.log != nil {
			w.log.Warnf("calling_client_computing: %v", err)
		}
	}
}

func decodeCall(contents []json.RawMessage) (uid, method string, args []json.RawMessage, ok bool) {
	if len(contents) < 2 {
		return "", "", nil, false
	}
	if err := json.Unmarshal(contents[0], &uid); err != nil {
		return "", "", nil, false
	}
	if err := json.Unmarshal(contents[1], &method); err != nil {
		return "", "", nil, false
	}
	return uid, method, contents[2:], true
}
