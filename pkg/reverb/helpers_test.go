package reverb

// stubEntity is the minimal Entity used across this package's tests: a
// bare *BaseEntity with no extra state, standing in for a concrete
// application entity type.
type stubEntity struct {
	*BaseEntity
}

func newStubEntity(fields []*Field) *stubEntity {
	return &stubEntity{BaseEntity: NewBaseEntity("Stub", 0, fields)}
}
