package serial

import (
	stderrors "errors"
	"io"
	"os"
	"time"

	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/errors"
	bugst "go.bug.st/serial"
	"golang.org/x/sys/unix"
)

// Port is the subset of a serial port the line source needs. Read returns
// (0, nil) when the read timeout expires without data.
type Port interface {
	Read(p []byte) (int, error)
	SetReadTimeout(t time.Duration) error
	Close() error
}

// Config describes how to open the device.
type Config struct {
	Device        string
	BaudRate      int
	ReadTimeout   time.Duration
	MaxLineLength int
}

// Open opens the device in 8N1 mode with a bounded per-read timeout so the
// caller regains control periodically.
func Open(cfg Config) (Port, error) {
	errFactory := errors.New()

	if cfg.Device == "" || cfg.BaudRate <= 0 || cfg.ReadTimeout <= 0 {
		return nil, errFactory.WithData(ErrInvalidConfig, cfg)
	}

	mode := &bugst.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   bugst.NoParity,
		StopBits: bugst.OneStopBit,
	}

	port, err := bugst.Open(cfg.Device, mode)
	if err != nil {
		return nil, errFactory.Wrap(ErrOpenFailed, err).WithData(cfg.Device)
	}

	if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
		port.Close()
		return nil, errFactory.Wrap(ErrOpenFailed, err).WithData(cfg.Device)
	}

	return port, nil
}

// deviceGone distinguishes a vanished device (unplugged adapter, dropped
// rfcomm binding) from a transient read failure.
func deviceGone(err error) bool {
	if stderrors.Is(err, io.EOF) || stderrors.Is(err, os.ErrClosed) {
		return true
	}

	var portErr *bugst.PortError
	if stderrors.As(err, &portErr) {
		switch portErr.Code() {
		case bugst.PortClosed, bugst.PortNotFound, bugst.InvalidSerialPort:
			return true
		}
	}

	for _, errno := range []unix.Errno{unix.ENODEV, unix.ENXIO, unix.EIO, unix.EBADF} {
		if stderrors.Is(err, errno) {
			return true
		}
	}

	return false
}
