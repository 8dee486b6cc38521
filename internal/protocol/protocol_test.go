package protocol_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/errors"
	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/logger"
	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleFrame = "DATA:86,80,74,13,62,64,72,71,102,0,0,0,53,0,0,0,0,0"

func TestTokenize(t *testing.T) {
	tests := []struct {
		line    string
		kind    protocol.Kind
		payload string
	}{
		{"CMD:START_SWIPE", protocol.KindStartSwipe, ""},
		{"CMD:DATA_SENT", protocol.KindDataSent, ""},
		{"DATA:1,2,3", protocol.KindData, "1,2,3"},
		{"DATA:", protocol.KindData, ""},
		{"DATA:1,DATA:2", protocol.KindData, "1,DATA:2"},
		{"CMD:START_SWIPE ", protocol.KindUnknown, ""},
		{"cmd:start_swipe", protocol.KindUnknown, ""},
		{"HELLO", protocol.KindUnknown, ""},
	}
	for _, tt := range tests {
		tok := protocol.Tokenize(tt.line)
		assert.Equal(t, tt.kind, tok.Kind, tt.line)
		assert.Equal(t, tt.payload, tok.Payload, tt.line)
		assert.Equal(t, tt.line, tok.Raw)
	}
}

func TestParsePayload(t *testing.T) {
	values, err := protocol.ParsePayload("86, 80,-1.5,2e3")
	require.NoError(t, err)
	assert.Equal(t, []float64{86, 80, -1.5, 2000}, values)

	for _, bad := range []string{"", "  ", "1,,2", "1,abc", "1,NaN", "Inf", "1,2,"} {
		_, err := protocol.ParsePayload(bad)
		require.Error(t, err, bad)
		assert.Equal(t, protocol.ErrInvalidPayload, errors.CodeOf(err), bad)
	}
}

func TestDispatcherSessionSequence(t *testing.T) {
	d := protocol.NewDispatcher(logger.Nop())
	assert.Equal(t, protocol.StateIdle, d.State())

	ev := d.Dispatch("CMD:START_SWIPE")
	assert.Equal(t, protocol.EventSessionStarted, ev.Kind)
	assert.Equal(t, protocol.StateArmed, d.State())

	ev = d.Dispatch(sampleFrame)
	assert.Equal(t, protocol.EventFeatureFrame, ev.Kind)
	assert.Equal(t, protocol.StateCollecting, d.State())
	require.Len(t, ev.Features, 18)
	assert.Equal(t, 86.0, ev.Features[0])
	assert.Equal(t, 53.0, ev.Features[12])

	ev = d.Dispatch("CMD:DATA_SENT")
	assert.Equal(t, protocol.EventSessionEnded, ev.Kind)
	assert.Equal(t, protocol.StateIdle, d.State())
}

func TestDispatcherIgnoresUnknownTokens(t *testing.T) {
	d := protocol.NewDispatcher(logger.Nop())

	for _, line := range []string{"HELLO", "CMD:REBOOT", "CMD:DATA_SENT", sampleFrame} {
		ev := d.Dispatch(line)
		assert.Equal(t, protocol.EventIgnored, ev.Kind, line)
		assert.Equal(t, protocol.StateIdle, d.State(), line)
	}

	d.Dispatch("CMD:START_SWIPE")
	for _, line := range []string{"HELLO", "CMD:START_SWIPE", "CMD:DATA_SENT"} {
		ev := d.Dispatch(line)
		assert.Equal(t, protocol.EventIgnored, ev.Kind, line)
		assert.Equal(t, protocol.StateArmed, d.State(), line)
	}

	d.Dispatch(sampleFrame)
	for _, line := range []string{"HELLO", "CMD:START_SWIPE", sampleFrame} {
		ev := d.Dispatch(line)
		assert.Equal(t, protocol.EventIgnored, ev.Kind, line)
		assert.Nil(t, ev.Features)
		assert.Equal(t, protocol.StateCollecting, d.State(), line)
	}
}

func TestDispatcherLogsIgnoredLinesAtInfo(t *testing.T) {
	logger.SetLogLevel(logger.InfoLevel)
	defer logger.SetLogLevel(logger.DebugLevel)

	var buf bytes.Buffer
	d := protocol.NewDispatcher(logger.New(&buf))

	d.Dispatch("Sensor ready")
	d.Dispatch("CMD:DATA_SENT")

	dec := json.NewDecoder(&buf)
	var entries []map[string]any
	for dec.More() {
		var entry map[string]any
		require.NoError(t, dec.Decode(&entry))
		entries = append(entries, entry)
	}

	require.Len(t, entries, 2)
	assert.Equal(t, "info", entries[0]["level"])
	assert.Equal(t, "Device line ignored", entries[0]["message"])
	assert.Equal(t, "Sensor ready", entries[0]["line"])
	assert.Equal(t, "warn", entries[1]["level"])
	assert.Equal(t, "CMD:DATA_SENT", entries[1]["line"])
}

func TestDispatcherParseErrorKeepsState(t *testing.T) {
	d := protocol.NewDispatcher(logger.Nop())
	d.Dispatch("CMD:START_SWIPE")

	ev := d.Dispatch("DATA:1,two,3")
	assert.Equal(t, protocol.EventProtocolError, ev.Kind)
	assert.Equal(t, protocol.ErrInvalidPayload, errors.CodeOf(ev.Err))
	assert.Equal(t, protocol.StateArmed, d.State())

	ev = d.Dispatch("DATA:1,2,3")
	assert.Equal(t, protocol.EventFeatureFrame, ev.Kind, "a good frame after a bad one is accepted")
	assert.Equal(t, []float64{1, 2, 3}, ev.Features)
}

func TestDispatcherDoesNotCheckArity(t *testing.T) {
	d := protocol.NewDispatcher(logger.Nop())
	d.Dispatch("CMD:START_SWIPE")

	ev := d.Dispatch("DATA:1,2,3")
	assert.Equal(t, protocol.EventFeatureFrame, ev.Kind)
	assert.Len(t, ev.Features, 3)
}
