package model

import "errors"

var (
	// ErrRootClassNotFound is returned by SelectRoot when no class matches.
	ErrRootClassNotFound = errors.New("model: chosen root class was not found")

	// ErrRootNotSelected is returned by Build before SelectRoot succeeded.
	ErrRootNotSelected = errors.New("model: root class was not set before building the model structure")

	// ErrRootInstantiationFailed wraps a runtime failure creating the root instance.
	ErrRootInstantiationFailed = errors.New("model: root class instance could not be created")

	// ErrMaxDepthExceeded is returned when the walk goes deeper than the configured limit.
	ErrMaxDepthExceeded = errors.New("model: maximum structure depth exceeded")

	// ErrNoRuntime is returned when a Builder has no Runtime.
	ErrNoRuntime = errors.New("model: runtime is required")
)
