package reverb

import "errors"

// Sentinel error kinds so callers can use errors.Is/errors.As; concrete
// errors returned by this package wrap one of these with
// fmt.Errorf("...: %w", ...).
var (
	// ErrWrongSide is returned when an operation restricted to one side
	// (server or client) is invoked on the other.
	ErrWrongSide = errors.New("reverb: wrong side for this operation")

	// ErrUIDAlreadyAssigned is returned by World.AddServer when the entity
	// passed in already has a uid.
	ErrUIDAlreadyAssigned = errors.New("reverb: uid already assigned")

	// ErrUIDUnknown is returned on the client when an entity would be
	// added without a server-assigned uid.
	ErrUIDUnknown = errors.New("reverb: uid unknown")

	// ErrDuplicateEntity is returned when the same entity instance is
	// added to the registry twice.
	ErrDuplicateEntity = errors.New("reverb: entity already registered")

	// ErrEntityNotFound is returned when a uid is absent from the live
	// registry and the caller explicitly asked to look it up.
	ErrEntityNotFound = errors.New("reverb: entity not found")

	// ErrTypeNotFound is returned when a class name from the wire is not
	// present in the type registry.
	ErrTypeNotFound = errors.New("reverb: type not found")

	// ErrUnknownMethod is returned when a remote call names a method the
	// target entity does not have.
	ErrUnknownMethod = errors.New("reverb: unknown method")
)
