package featurestore

import "errors"

var (
	// ErrInvalidParent indicates the parent id does not resolve to a Root or Area.
	ErrInvalidParent = errors.New("invalid parent")
	// ErrNotRenamable indicates an attempt to rename the Root or a missing feature.
	ErrNotRenamable = errors.New("feature not renamable")
	// ErrNotDeletable indicates an attempt to delete the Root or a missing feature.
	ErrNotDeletable = errors.New("feature not deletable")
	// ErrInvalidFeature indicates a feature that cannot be inserted as a child.
	ErrInvalidFeature = errors.New("invalid feature")
	// ErrCorrupt indicates a restored snapshot that violates the hierarchy invariants.
	ErrCorrupt = errors.New("corrupt feature tree")
)
