// Package serial frames the byte stream from the sensor link into text lines.
package serial

import (
	"bytes"
	"strings"

	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/errors"
	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/logger"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
)

const (
	readChunk            = 256
	defaultMaxLineLength = 4096
)

// LineSource yields newline-terminated lines from a Port. It owns the port
// exclusively; it is not safe for concurrent use.
type LineSource struct {
	port    Port
	buf     []byte
	chunk   []byte
	maxLine int
	decoder *encoding.Decoder
	log     logger.Logger
	closed  bool
}

func NewLineSource(port Port, maxLineLength int, log logger.Logger) *LineSource {
	if maxLineLength <= 0 {
		maxLineLength = defaultMaxLineLength
	}

	return &LineSource{
		port:    port,
		chunk:   make([]byte, readChunk),
		maxLine: maxLineLength,
		decoder: unicode.UTF8.NewDecoder(),
		log:     log,
	}
}

// Next returns the next non-empty line with its terminator and surrounding
// whitespace removed. ok is false when the read timed out before a complete
// line arrived. Invalid UTF-8 is replaced with U+FFFD. A returned error with
// code ErrDeviceGone is fatal; ErrReadFailed is not.
func (s *LineSource) Next() (line string, ok bool, err error) {
	for {
		if line, found := s.takeLine(); found {
			if line == "" {
				continue
			}
			return line, true, nil
		}

		n, err := s.port.Read(s.chunk)
		if n > 0 {
			s.buf = append(s.buf, s.chunk[:n]...)
			s.enforceLimit()
		}
		if err != nil {
			return "", false, s.classify(err)
		}
		if n == 0 {
			return "", false, nil
		}
	}
}

// takeLine pops the first complete line from the buffer, if any.
func (s *LineSource) takeLine() (string, bool) {
	idx := bytes.IndexByte(s.buf, '\n')
	if idx < 0 {
		return "", false
	}

	raw := s.buf[:idx]
	s.buf = s.buf[idx+1:]

	return strings.TrimSpace(s.decode(raw)), true
}

func (s *LineSource) decode(raw []byte) string {
	s.decoder.Reset()
	decoded, err := s.decoder.Bytes(raw)
	if err != nil {
		s.log.Warn().Err(err).Msg("Undecodable serial bytes, replacing")
		return strings.ToValidUTF8(string(raw), "�")
	}
	return string(decoded)
}

// enforceLimit drops a run of bytes that grew past the line limit without a
// terminator; the link lost sync and the partial line is unusable.
func (s *LineSource) enforceLimit() {
	if len(s.buf) <= s.maxLine || bytes.IndexByte(s.buf, '\n') >= 0 {
		return
	}

	s.log.Warn().
		Int("discarded_bytes", len(s.buf)).
		Int("max_line_length", s.maxLine).
		Str("error_code", string(ErrLineTooLong)).
		Msg("Discarding unterminated serial input")
	s.buf = s.buf[:0]
}

func (s *LineSource) classify(err error) error {
	errFactory := errors.New()
	if deviceGone(err) {
		return errFactory.Wrap(ErrDeviceGone, err)
	}
	return errFactory.Wrap(ErrReadFailed, err)
}

// Close releases the port. Calling it twice is harmless.
func (s *LineSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.port.Close(); err != nil {
		return errors.New().Wrap(ErrCloseFailed, err)
	}
	return nil
}
