package reverb

import (
	"encoding/json"
	"fmt"
	"net"

	"github.com/lelabodugame/reverb/pkg/transport"
)

// Tick runs one replication step: snapshot the live table, pack every
// non-tombstone entity (full if it has never been broadcast, a diff
// otherwise), mark freshly-packed entities initialized, and broadcast the
// batch if it is non-empty. The host application calls this at its own
// cadence (cmd/reverbd defaults to 60Hz).
func (w *World) Tick() error {
	if w.mode != modeServer {
		return fmt.Errorf("%w: Tick is server-only", ErrWrongSide)
	}

	w.mu.RLock()
	snapshot := make(map[string]*liveEntry, len(w.live))
	for uid, entry := range w.live {
		snapshot[uid] = entry
	}
	w.mu.RUnlock()

	batch := map[string][]any{}
	var freshlyInitialized []*BaseEntity

	for uid, entry := range snapshot {
		if entry.tombstone {
			continue
		}
		base := entry.entity.Base()
		full := !base.IsInitialized()

		packed := base.Pack(full)
		if len(packed) == 0 {
			continue
		}
		batch[uid] = packed
		if full {
			freshlyInitialized = append(freshlyInitialized, base)
		}
	}

	for _, base := range freshlyInitialized {
		base.MarkInitialized()
	}

	if len(batch) == 0 {
		return nil
	}
	return w.srv.Broadcast(transport.PacketServerSync, batch)
}

// handleClientConnection sends a newly connected client a one-shot full
// spawn of every currently-live entity, so it observes existing world
// state before the next regular tick's diff. This does not mark entities
// initialized and does not clear any field's changed flag; the next Tick
// still owns both transitions, so other clients still receive pending
// diffs.
func (w *World) handleClientConnection(sock net.Conn, contents []json.RawMessage) {
	w.mu.RLock()
	snapshot := make(map[string]*liveEntry, len(w.live))
	for uid, entry := range w.live {
		snapshot[uid] = entry
	}
	w.mu.RUnlock()

	batch := map[string][]any{}
	for uid, entry := range snapshot {
		if entry.tombstone {
			continue
		}
		base := entry.entity.Base()
		packed := make([]any, 0, 2+len(base.fields))
		packed = append(packed, base.typeName, base.ownerTag)
		for _, f := range base.fields {
			packed = append(packed, f.Get())
		}
		batch[uid] = packed
	}

	if len(batch) == 0 {
		return
	}
	if err := w.srv.SendTo(sock, transport.PacketServerSync, batch); err != nil && w.log != nil {
		w.log.Warnf("catch-up sync to %v failed: %v", sock.RemoteAddr(), err)
	}
}

// handleServerSync applies a server_sync batch: a uid absent from the local
// live table is a spawn (payload is [type, ownerTag, field...]); a uid
// already present is a diff (payload is the bare changed field values, in
// declaration order). This presence check is the sole spawn/diff
// disambiguation — there is no separate wire-level tag. A malformed or
// failing entry is logged and skipped; it does not abort its siblings.
func (w *World) handleServerSync(sock net.Conn, contents []json.RawMessage) {
	if len(contents) == 0 {
		return
	}
	var batch map[string][]json.RawMessage
	if err := json.Unmarshal(contents[0], &batch); err != nil {
		if w.log != nil {
			w.log.Warnf("server_sync: malformed batch: %v", err)
		}
		return
	}

	for uid, payload := range batch {
		if err := w.applyServerSyncEntry(uid, payload); err != nil && w.log != nil {
			w.log.Warnf("server_sync: %s: %v", uid, err)
		}
	}
}

func (w *World) applyServerSyncEntry(uid string, payload []json.RawMessage) error {
	if uid == "" || uid == UnknownUID {
		return fmt.Errorf("%w: server_sync entry without a server-assigned uid", ErrUIDUnknown)
	}

	w.mu.RLock()
	entry, known := w.live[uid]
	w.mu.RUnlock()

	if known && !entry.tombstone {
		return entry.entity.Base().ApplyDiff(payload)
	}

	if len(payload) < 2 {
		return fmt.Errorf("spawn payload for %s too short", uid)
	}
	var typeName string
	if err := json.Unmarshal(payload[0], &typeName); err != nil {
		return fmt.Errorf("decoding type name for %s: %w", uid, err)
	}
	var ownerTag int
	if err := json.Unmarshal(payload[1], &ownerTag); err != nil {
		return fmt.Errorf("decoding owner tag for %s: %w", uid, err)
	}

	ctor, err := w.types.Lookup(typeName)
	if err != nil {
		return err
	}
	e, err := ctor(payload[2:], ownerTag)
	if err != nil {
		return fmt.Errorf("constructing %s %s: %w", typeName, uid, err)
	}

	base := e.Base()
	base.uid = uid
	base.world = w
	base.initialized = true

	w.mu.Lock()
	w.live[uid] = &liveEntry{entity: e}
	w.mu.Unlock()

	go base.OnInitFromClient()

	if w.log != nil {
		w.log.Debugf("spawned %s uid=%s owner=%d (from server)", typeName, uid, ownerTag)
	}
	return nil
}

// handleRemoveRO despawns a locally replicated entity on remove_ro: it
// marks the entity dead, fires on-destroy-from-client, and removes it from
// the live table immediately — clients don't keep a reap-delayed
// tombstone, since nothing consults their live table once gone.
func (w *World) handleRemoveRO(sock net.Conn, contents []json.RawMessage) {
	if len(contents) == 0 {
		return
	}
	var uid string
	if err := json.Unmarshal(contents[0], &uid); err != nil {
		if w.log != nil {
			w.log.Warnf("remove_ro: malformed uid: %v", err)
		}
		return
	}

	w.mu.Lock()
	entry, ok := w.live[uid]
	if ok {
		delete(w.live, uid)
	}
	w.mu.Unlock()

	if !ok {
		if w.log != nil {
			w.log.Warnf("remove_ro for unknown uid %s", uid)
		}
		return
	}

	base := entry.entity.Base()
	base.alive = false
	go base.OnDestroyFromClient()
}
