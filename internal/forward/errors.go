package forward

import "github.com/cihanayindi/touchswipe-identifier-AIoT/internal/errors"

const (
	// Persistence errors
	ErrStoreOpen     = errors.ErrorCode("forward_store_open_failed")
	ErrPersistFailed = errors.ErrorCode("forward_persist_failed")
	ErrStoreClosed   = errors.ErrorCode("forward_store_closed")

	// Publish errors, never fatal
	ErrPublishFailed    = errors.ErrorCode("forward_publish_failed")
	ErrQueueFull        = errors.ErrorCode("forward_queue_full")
	ErrNotConnected     = errors.ErrorCode("forward_not_connected")
	ErrAckTimeout       = errors.ErrorCode("forward_ack_timeout")
	ErrPublisherStopped = errors.ErrorCode("forward_publisher_stopped")
	ErrNotDelivered     = errors.ErrorCode("forward_not_delivered")

	// Startup errors
	ErrTLSInvalid = errors.ErrorCode("forward_tls_invalid")
)
