package forward

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/errors"
	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/logger"
	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBrokerDown = fmt.Errorf("broker down")

type fakeBroker struct {
	mu            sync.Mutex
	reachable     bool
	connected     bool
	connects      int
	failPublishes int // failures while staying connected
	dropPublishes int // failures that also drop the connection
	published     []string
	lost          chan error
}

func newFakeBroker(reachable bool) *fakeBroker {
	return &fakeBroker{
		reachable: reachable,
		lost:      make(chan error, 1),
	}
}

func (b *fakeBroker) Connect(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.reachable {
		return errBrokerDown
	}
	b.connects++
	b.connected = true
	return nil
}

func (b *fakeBroker) Publish(_ context.Context, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.connected {
		return errors.New().New(ErrNotConnected)
	}
	if b.dropPublishes > 0 {
		b.dropPublishes--
		b.connected = false
		select {
		case b.lost <- errBrokerDown:
		default:
		}
		return errBrokerDown
	}
	if b.failPublishes > 0 {
		b.failPublishes--
		return fmt.Errorf("rejected")
	}
	b.published = append(b.published, string(payload))
	return nil
}

func (b *fakeBroker) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *fakeBroker) Lost() <-chan error {
	return b.lost
}

func (b *fakeBroker) Disconnect() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = false
}

func (b *fakeBroker) setReachable(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reachable = v
}

func (b *fakeBroker) messages() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.published...)
}

type outcomes struct {
	mu   sync.Mutex
	recs []Record
	errs []error
}

func (o *outcomes) record(rec Record, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.recs = append(o.recs, rec)
	o.errs = append(o.errs, err)
}

func (o *outcomes) snapshot() ([]Record, []error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Record(nil), o.recs...), append([]error(nil), o.errs...)
}

func testPublisherConfig(out *outcomes) PublisherConfig {
	return PublisherConfig{
		QueueSize:       16,
		PublishAttempts: 3,
		Retry: retry.Policy{
			MaxAttempts:  2,
			InitialDelay: time.Millisecond,
			MaxDelay:     2 * time.Millisecond,
		},
		Cooldown:     5 * time.Millisecond,
		DrainTimeout: time.Second,
		OnOutcome:    out.record,
	}
}

func rec(seq uint64) Record {
	return Record{Seq: seq, Line: fmt.Sprintf("DATA:%d", seq)}
}

func TestPublisherDelivers(t *testing.T) {
	broker := newFakeBroker(true)
	out := &outcomes{}
	p := NewPublisher(broker, testPublisherConfig(out), logger.Nop())
	p.Start(context.Background())

	for i := uint64(1); i <= 3; i++ {
		require.NoError(t, p.Publish(rec(i)))
	}

	assert.Eventually(t, func() bool { return len(broker.messages()) == 3 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"DATA:1", "DATA:2", "DATA:3"}, broker.messages())
	assert.Equal(t, StateConnected, p.State())

	require.NoError(t, p.Stop())
	_, errs := out.snapshot()
	for _, err := range errs {
		assert.NoError(t, err)
	}
}

func TestPublisherResumesAfterOutage(t *testing.T) {
	broker := newFakeBroker(false)
	out := &outcomes{}
	p := NewPublisher(broker, testPublisherConfig(out), logger.Nop())
	p.Start(context.Background())

	for i := uint64(1); i <= 4; i++ {
		require.NoError(t, p.Publish(rec(i)))
	}

	// Several connect rounds fail before the broker comes back.
	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, broker.messages())
	assert.NotEqual(t, StateConnected, p.State())

	broker.setReachable(true)

	assert.Eventually(t, func() bool { return len(broker.messages()) == 4 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"DATA:1", "DATA:2", "DATA:3", "DATA:4"}, broker.messages())
	require.NoError(t, p.Stop())
}

func TestPublisherRedeliversAfterDrop(t *testing.T) {
	broker := newFakeBroker(true)
	broker.dropPublishes = 1
	out := &outcomes{}
	p := NewPublisher(broker, testPublisherConfig(out), logger.Nop())
	p.Start(context.Background())

	require.NoError(t, p.Publish(rec(1)))
	require.NoError(t, p.Publish(rec(2)))

	assert.Eventually(t, func() bool { return len(broker.messages()) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"DATA:1", "DATA:2"}, broker.messages())

	broker.mu.Lock()
	assert.Equal(t, 2, broker.connects)
	broker.mu.Unlock()

	require.NoError(t, p.Stop())
}

func TestPublisherGivesUpAfterAttempts(t *testing.T) {
	broker := newFakeBroker(true)
	broker.failPublishes = 3
	out := &outcomes{}
	p := NewPublisher(broker, testPublisherConfig(out), logger.Nop())
	p.Start(context.Background())

	require.NoError(t, p.Publish(rec(1)))
	require.NoError(t, p.Publish(rec(2)))

	assert.Eventually(t, func() bool {
		recs, _ := out.snapshot()
		return len(recs) == 2
	}, time.Second, time.Millisecond)

	recs, errs := out.snapshot()
	assert.Equal(t, uint64(1), recs[0].Seq)
	assert.True(t, errors.HasCode(errs[0], ErrPublishFailed))
	assert.Equal(t, uint64(2), recs[1].Seq)
	assert.NoError(t, errs[1])
	assert.Equal(t, []string{"DATA:2"}, broker.messages())

	require.NoError(t, p.Stop())
}

func TestPublisherQueueFull(t *testing.T) {
	out := &outcomes{}
	cfg := testPublisherConfig(out)
	cfg.QueueSize = 1
	p := NewPublisher(newFakeBroker(true), cfg, logger.Nop())

	require.NoError(t, p.Publish(rec(1)))
	assert.Equal(t, 1, p.QueueDepth())

	err := p.Publish(rec(2))
	assert.True(t, errors.HasCode(err, ErrQueueFull))

	// Never started: the queued record is reported undelivered.
	err = p.Stop()
	assert.True(t, errors.HasCode(err, ErrNotDelivered))

	recs, errs := out.snapshot()
	require.Len(t, recs, 1)
	assert.Equal(t, uint64(1), recs[0].Seq)
	assert.True(t, errors.HasCode(errs[0], ErrNotDelivered))

	err = p.Publish(rec(3))
	assert.True(t, errors.HasCode(err, ErrPublisherStopped))
}

func TestPublisherStopReportsUndelivered(t *testing.T) {
	broker := newFakeBroker(false)
	out := &outcomes{}
	cfg := testPublisherConfig(out)
	cfg.DrainTimeout = 20 * time.Millisecond
	p := NewPublisher(broker, cfg, logger.Nop())
	p.Start(context.Background())

	require.NoError(t, p.Publish(rec(1)))
	require.NoError(t, p.Publish(rec(2)))

	err := p.Stop()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrNotDelivered))

	recs, errs := out.snapshot()
	require.Len(t, recs, 2)
	for _, err := range errs {
		assert.True(t, errors.HasCode(err, ErrNotDelivered))
	}
	assert.Equal(t, StateDisconnected, p.State())
	assert.NoError(t, p.Stop())
}

func TestPublisherStopSurvivesCancelledStartContext(t *testing.T) {
	broker := newFakeBroker(true)
	out := &outcomes{}
	p := NewPublisher(broker, testPublisherConfig(out), logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	cancel()

	require.Eventually(t, func() bool { return p.State() == StateConnected }, time.Second, time.Millisecond)
	require.NoError(t, p.Publish(rec(1)))
	require.NoError(t, p.Stop())
	assert.Equal(t, []string{"DATA:1"}, broker.messages())
}

func TestPublisherStopWithoutSessionSkipsDrain(t *testing.T) {
	broker := newFakeBroker(false)
	out := &outcomes{}
	cfg := testPublisherConfig(out)
	cfg.DrainTimeout = 2 * time.Second
	p := NewPublisher(broker, cfg, logger.Nop())
	p.Start(context.Background())

	// Let a few connect rounds fail first.
	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	require.NoError(t, p.Stop())
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	recs, _ := out.snapshot()
	assert.Empty(t, recs)
	assert.Equal(t, StateDisconnected, p.State())
}

func TestPublisherStates(t *testing.T) {
	p := NewPublisher(newFakeBroker(true), testPublisherConfig(&outcomes{}), logger.Nop())
	assert.Equal(t, StateDisconnected, p.State())

	p.Start(context.Background())

	var seen []State
	timeout := time.After(time.Second)
	for len(seen) < 2 {
		select {
		case change := <-p.States():
			seen = append(seen, change.State)
		case <-timeout:
			t.Fatal("no state change")
		}
	}
	assert.Equal(t, []State{StateConnecting, StateConnected}, seen)
	assert.Equal(t, "connected", StateConnected.String())

	require.NoError(t, p.Stop())
}
