package allocator

import "errors"

// Configuration errors. They are returned before any trial runs.
var (
	ErrNoRoles         = errors.New("at least one role is required")
	ErrInvalidCapacity = errors.New("role capacity must be at least 1")
	ErrDuplicateRole   = errors.New("duplicate role id")
	ErrEmptyRoleID     = errors.New("role id is required")
)
