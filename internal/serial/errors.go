package serial

import "github.com/cihanayindi/touchswipe-identifier-AIoT/internal/errors"

const (
	ErrOpenFailed    = errors.ErrorCode("serial_open_failed")
	ErrReadFailed    = errors.ErrorCode("serial_read_failed")
	ErrDeviceGone    = errors.ErrorCode("serial_device_gone")
	ErrLineTooLong   = errors.ErrorCode("serial_line_too_long")
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrCloseFailed   = errors.ErrorCode("serial_close_failed")
)

// IsFatal reports whether err means the device can no longer be read.
func IsFatal(err error) bool {
	return errors.HasCode(err, ErrDeviceGone)
}
