package telemetry

import "github.com/cihanayindi/touchswipe-identifier-AIoT/internal/errors"

const (
	ErrRegisterFailed = errors.ErrorCode("telemetry_register_failed")
	ErrListenFailed   = errors.ErrorCode("telemetry_listen_failed")
)
