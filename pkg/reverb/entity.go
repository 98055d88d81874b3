package reverb

import (
	"encoding/json"
	"fmt"
)

// Entity is anything the World can spawn, replicate, and despawn. Concrete
// entity classes embed *BaseEntity, which supplies every method below
// through Go's method promotion — there is deliberately no virtual-method
// hierarchy, since dispatch to application code goes through the method
// table, not interface polymorphism.
type Entity interface {
	Base() *BaseEntity
}

// Method is a remotely callable entity method: the name→function entry in
// the per-entity method table that a calling_server_computing or
// calling_client_computing packet dispatches into by name.
type Method func(args []json.RawMessage) error

// BaseEntity carries the identity, ordered field list, lifecycle hooks,
// and remote-call plumbing shared by every replicated entity.
type BaseEntity struct {
	uid      string
	typeName string
	ownerTag int
	fields   []*Field
	methods  map[string]Method

	alive       bool
	initialized bool

	OnInitFromServer    func()
	OnInitFromClient    func()
	OnDestroyFromServer func()
	OnDestroyFromClient func()

	world *World // set by World on Add; nil until then
}

// NewBaseEntity constructs the shared entity state for a concrete class.
// typeName must be registered under the same name in the TypeRegistry the
// World uses. fields is the class's ordered field list — its length and
// order are fixed for the lifetime of the class, since spawn and diff
// payloads are applied to fields by position.
func NewBaseEntity(typeName string, ownerTag int, fields []*Field) *BaseEntity {
	return &BaseEntity{
		uid:      UnknownUID,
		typeName: typeName,
		ownerTag: ownerTag,
		fields:   fields,
		methods:  map[string]Method{},
		alive:    true,

		OnInitFromServer:    func() {},
		OnInitFromClient:    func() {},
		OnDestroyFromServer: func() {},
		OnDestroyFromClient: func() {},
	}
}

// Base satisfies Entity; it also lets a concrete type reach its own
// embedded state generically.
func (e *BaseEntity) Base() *BaseEntity { return e }

// UID returns the entity's identifier, or UnknownUID if the server has not
// assigned one yet.
func (e *BaseEntity) UID() string { return e.uid }

// Type returns the registered class name.
func (e *BaseEntity) Type() string { return e.typeName }

// OwnerTag returns the membership tag (the owning client's ephemeral port
// in the reference design).
func (e *BaseEntity) OwnerTag() int { return e.ownerTag }

// IsAlive reports whether the entity has been despawned.
func (e *BaseEntity) IsAlive() bool { return e.alive }

// IsInitialized reports whether this entity has been fully broadcast at
// least once (server) or fully constructed from a spawn payload (client).
func (e *BaseEntity) IsInitialized() bool { return e.initialized }

// Fields returns the entity's ordered field list.
func (e *BaseEntity) Fields() []*Field { return e.fields }

// World returns the World this entity is registered with, or nil before
// AddServer (server) or a spawn applied by applyServerSyncEntry (client)
// has run. Server-side methods invoked by remote calls use this to reach
// World.Remove for self-initiated despawns.
func (e *BaseEntity) World() *World { return e.world }

// HandleMethod registers fn under name in this entity's method table, the
// target of compute_server/compute_client dispatch.
func (e *BaseEntity) HandleMethod(name string, fn Method) {
	e.methods[name] = fn
}

// Invoke calls the named method with the given raw JSON arguments. It
// returns ErrUnknownMethod if name isn't registered.
func (e *BaseEntity) Invoke(name string, args []json.RawMessage) error {
	fn, ok := e.methods[name]
	if !ok {
		return fmt.Errorf("%w: %q on %s", ErrUnknownMethod, name, e.typeName)
	}
	return fn(args)
}

// Pack serializes the entity for the wire. If full, it returns
// [type, ownerTag, field0, field1, ...] for a spawn, clearing every field's
// changed flag. Otherwise it returns a diff: the bare values of the fields
// whose HasChanged is true, in declaration order, with no positional tag —
// matching the wire contract's "single positional slot, no type/owner
// repetition" diff shape. A changed field past the first is therefore
// applied by the receiver at its wrong index when an earlier field hasn't
// also changed; this reproduces the positional-sync behavior rather than
// inventing an index-tagged encoding the wire format doesn't have. An
// empty, non-full pack means "nothing to send this tick" and the caller
// should skip the entity.
func (e *BaseEntity) Pack(full bool) []any {
	if full {
		out := make([]any, 0, 2+len(e.fields))
		out = append(out, e.typeName, e.ownerTag)
		for _, f := range e.fields {
			out = append(out, f.Get())
			f.ClearChanged()
		}
		return out
	}

	var out []any
	for _, f := range e.fields {
		if f.HasChanged() {
			out = append(out, f.Get())
			f.ClearChanged()
		}
	}
	return out
}

// MarkInitialized flips IsInitialized to true. Called by the replication
// tick after an entity has been packed full at least once.
func (e *BaseEntity) MarkInitialized() { e.initialized = true }

// ApplyFull sets every field from a full spawn payload, in declaration
// order. It is the client-only counterpart to Pack's full form.
func (e *BaseEntity) ApplyFull(values []json.RawMessage) error {
	if e.world != nil && e.world.mode != modeClient {
		return fmt.Errorf("%w: ApplyFull is client-only", ErrWrongSide)
	}

	for i, raw := range values {
		if i >= len(e.fields) {
			break
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("reverb: decoding field %d of %s: %w", i, e.typeName, err)
		}
		e.fields[i].Set(v)
	}
	return nil
}

// ApplyDiff sets fields from a diff payload: the bare values it carries are
// applied positionally starting at field 0, exactly like ApplyFull. This
// is the same positional-sync behavior the source applies (zip against the
// declared field order regardless of which fields actually produced the
// values) — a diff that changed only field 2 and sent one bare value will
// land on field 0. Preserved verbatim rather than papered over with an
// index tag the wire format doesn't carry.
func (e *BaseEntity) ApplyDiff(values []json.RawMessage) error {
	if e.world != nil && e.world.mode != modeClient {
		return fmt.Errorf("%w: ApplyDiff is client-only", ErrWrongSide)
	}
	return e.ApplyFull(values)
}

// IsOwner reports whether this entity belongs to the local client. It is
// client-only.
func (e *BaseEntity) IsOwner() (bool, error) {
	if e.world == nil || e.world.mode != modeClient {
		return false, fmt.Errorf("%w: IsOwner is client-only", ErrWrongSide)
	}
	return e.world.localPort() == e.ownerTag, nil
}

// ComputeServer asks the server to invoke method on this entity, passing
// args positionally. Client-only; a no-op once the entity is no longer
// alive.
func (e *BaseEntity) ComputeServer(method string, args ...any) error {
	if !e.alive {
		return nil
	}
	if e.world == nil || e.world.mode != modeClient {
		return fmt.Errorf("%w: ComputeServer is client-only", ErrWrongSide)
	}
	return e.world.sendCallingServer(e.uid, method, args)
}

// ComputeClient asks every connected client to invoke method on this
// entity, passing args positionally. Server-only; a no-op once the entity
// is no longer alive.
func (e *BaseEntity) ComputeClient(method string, args ...any) error {
	if !e.alive {
		return nil
	}
	if e.world == nil || e.world.mode != modeServer {
		return fmt.Errorf("%w: ComputeClient is server-only", ErrWrongSide)
	}
	return e.world.sendCallingClient(e.uid, method, args)
}
