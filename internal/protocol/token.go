// Package protocol interprets the sensor node's line protocol.
//
// The node sends one token per line:
//
//	CMD:START_SWIPE       session start
//	DATA:<f1>,...,<fN>    feature frame
//	CMD:DATA_SENT         session end
//
// Anything else is ignored.
package protocol

import (
	"math"
	"strconv"
	"strings"

	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/errors"
)

const (
	startSwipe = "CMD:START_SWIPE"
	dataSent   = "CMD:DATA_SENT"
	dataPrefix = "DATA:"
)

const ErrInvalidPayload = errors.ErrorCode("protocol_invalid_payload")

// Kind enumerates the token variants. Adding a control token means adding a
// Kind here and a case in Tokenize and Dispatcher.Dispatch.
type Kind int

const (
	KindUnknown Kind = iota
	KindStartSwipe
	KindData
	KindDataSent
)

func (k Kind) String() string {
	switch k {
	case KindStartSwipe:
		return "start_swipe"
	case KindData:
		return "data"
	case KindDataSent:
		return "data_sent"
	default:
		return "unknown"
	}
}

// Token is one classified line. Payload is set only for KindData.
type Token struct {
	Kind    Kind
	Raw     string
	Payload string
}

// Tokenize classifies a line. It never fails; unrecognised input is KindUnknown.
func Tokenize(line string) Token {
	switch {
	case line == startSwipe:
		return Token{Kind: KindStartSwipe, Raw: line}
	case line == dataSent:
		return Token{Kind: KindDataSent, Raw: line}
	case strings.HasPrefix(line, dataPrefix):
		_, payload, _ := strings.Cut(line, dataPrefix)
		return Token{Kind: KindData, Raw: line, Payload: payload}
	default:
		return Token{Kind: KindUnknown, Raw: line}
	}
}

// ParsePayload splits a data payload on commas and parses each field as a
// finite decimal number. It does not check the field count.
func ParsePayload(payload string) ([]float64, error) {
	errFactory := errors.New()

	if strings.TrimSpace(payload) == "" {
		return nil, errFactory.New(ErrInvalidPayload).WithMessage("empty payload")
	}

	fields := strings.Split(payload, ",")
	values := make([]float64, len(fields))
	for i, field := range fields {
		field = strings.TrimSpace(field)
		v, err := strconv.ParseFloat(field, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errFactory.WithData(ErrInvalidPayload, struct {
				Index int
				Field string
			}{Index: i, Field: field})
		}
		values[i] = v
	}

	return values, nil
}
