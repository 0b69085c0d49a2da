package mqtt

import "errors"

// Domain-specific errors for MQTT operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrConnectionFailed wraps the reason a connect attempt failed.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrConnectionLost wraps the reason an established connection dropped.
	ErrConnectionLost = errors.New("mqtt: connection lost")

	// ErrPublishFailed is returned when a publish operation fails.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed is returned when a subscribe operation fails.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrUnsubscribeFailed is returned when an unsubscribe operation fails.
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidTopic is returned for empty topics, wildcards in publish
	// topics, and malformed filters.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")

	// ErrInvalidTLS is returned by Setup when certificate material cannot be loaded.
	ErrInvalidTLS = errors.New("mqtt: invalid TLS configuration")

	// ErrUnsupportedScheme is returned when socket buffers are requested
	// for a transport the engine cannot dial itself.
	ErrUnsupportedScheme = errors.New("mqtt: unsupported broker scheme")

	// ErrStoreFull is reported when a bounded store rejects a packet.
	ErrStoreFull = errors.New("mqtt: persistence store full")

	// ErrPersistFailed wraps backend failures of a persistence strategy.
	ErrPersistFailed = errors.New("mqtt: persistence failed")
)
