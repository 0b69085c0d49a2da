package binding

import "errors"

// Domain-specific errors for binding operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNilEngine is returned by New when no engine is supplied.
	ErrNilEngine = errors.New("binding: engine is required")

	// ErrNilRuntime is returned when no host runtime is supplied.
	ErrNilRuntime = errors.New("binding: host runtime is required")

	// ErrNoSuchClient is returned by Setup for unknown or destroyed client IDs.
	ErrNoSuchClient = errors.New("binding: no such client")

	// ErrAlreadySetUp is returned by Setup when the client is already live.
	ErrAlreadySetUp = errors.New("binding: client already set up")

	// ErrSetupFailed wraps the configuration or engine error that made Setup fail.
	// A client in this state can only be destroyed.
	ErrSetupFailed = errors.New("binding: client setup failed")

	// ErrTargetUnset may be returned by Env.Invoke when a resolved target
	// has no host callback behind it yet. The event is dropped as no-target.
	ErrTargetUnset = errors.New("binding: host target unset")

	// ErrInvalidQoS is reported through the result event of a publish or
	// subscribe requested with a QoS outside 0..2.
	ErrInvalidQoS = errors.New("binding: invalid QoS")
)
