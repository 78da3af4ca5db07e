package sdf

import "errors"

var (
	// ErrOutsideProject indicates a path that escapes the project root.
	ErrOutsideProject = errors.New("path is outside the project")

	// ErrSubpathInFlatRemote indicates a link of a directory whose
	// tracked files sit in subdirectories. Remote depositions store a
	// flat filename set, so nested entries would collide or silently
	// flatten.
	ErrSubpathInFlatRemote = errors.New("directory has tracked files in subdirectories, which flat remotes cannot hold")

	// ErrNoBinding indicates a tracked file whose directory resolves to
	// no remote binding. This is a configuration error surfaced at
	// push/pull time, not at add time.
	ErrNoBinding = errors.New("tracked file has no remote binding")
)
