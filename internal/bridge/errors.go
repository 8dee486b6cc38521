package bridge

import "github.com/cihanayindi/touchswipe-identifier-AIoT/internal/errors"

const (
	ErrMissingComponent = errors.ErrorCode("bridge_missing_component")
	ErrSourceFailed     = errors.ErrorCode("bridge_source_failed")
)
