package forward

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/errors"
	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/logger"
	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/retry"
)

const stateBufferSize = 16

// State of the broker session as seen by the Publisher.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// StateChange is offered on States whenever the session state moves.
type StateChange struct {
	State State
	Err   error
	At    time.Time
}

type PublisherConfig struct {
	QueueSize       int
	PublishAttempts int           // tries per record while connected
	Retry           retry.Policy  // one connect round
	Cooldown        time.Duration // pause between exhausted rounds
	DrainTimeout    time.Duration // how long Stop waits for the queue to empty

	// OnOutcome is called from the worker goroutine once per record: nil on
	// delivery, otherwise the reason it was given up.
	OnOutcome func(Record, error)
}

// Publisher delivers records to a Broker from a single worker goroutine. The
// worker owns the connection: it connects, reconnects after a loss and keeps
// an undelivered record pending across reconnects.
type Publisher struct {
	broker Broker
	cfg    PublisherConfig
	log    logger.Logger

	queue  chan Record
	states chan StateChange
	state  atomic.Int32

	mu      sync.Mutex
	stopped bool
	started bool

	cancel      context.CancelFunc
	done        chan struct{}
	undelivered atomic.Int64
}

func NewPublisher(broker Broker, cfg PublisherConfig, log logger.Logger) *Publisher {
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	if cfg.PublishAttempts < 1 {
		cfg.PublishAttempts = 1
	}

	return &Publisher{
		broker: broker,
		cfg:    cfg,
		log:    log,
		queue:  make(chan Record, cfg.QueueSize),
		states: make(chan StateChange, stateBufferSize),
		done:   make(chan struct{}),
	}
}

// Start launches the worker. The worker keeps running after ctx is cancelled
// until Stop, so the queue can drain during shutdown.
func (p *Publisher) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started || p.stopped {
		return
	}
	p.started = true

	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel

	go p.run(workerCtx)
}

// Publish enqueues rec without blocking.
func (p *Publisher) Publish(rec Record) error {
	errFactory := errors.New()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return errFactory.WithData(ErrPublisherStopped, rec.Seq)
	}

	select {
	case p.queue <- rec:
		return nil
	default:
		return errFactory.WithData(ErrQueueFull, rec.Seq)
	}
}

func (p *Publisher) State() State {
	return State(p.state.Load())
}

// States delivers state changes. Changes are dropped when nobody reads.
func (p *Publisher) States() <-chan StateChange {
	return p.states
}

func (p *Publisher) QueueDepth() int {
	return len(p.queue)
}

// Stop closes the queue and, when the broker session is up, gives the worker
// DrainTimeout to deliver what is left. Without a session the worker is
// cancelled at once. Records still queued or pending after that are reported
// through OnOutcome and counted in the returned ErrNotDelivered error.
func (p *Publisher) Stop() error {
	errFactory := errors.New()

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.queue)
	started := p.started
	p.mu.Unlock()

	switch {
	case !started:
		p.abandon(nil)
	case p.State() != StateConnected:
		p.log.Debug().
			Str("state", p.State().String()).
			Int("queued", len(p.queue)).
			Msg("Broker session down, skipping drain")
		p.cancel()
		<-p.done
	default:
		timer := time.NewTimer(p.cfg.DrainTimeout)
		select {
		case <-p.done:
			timer.Stop()
		case <-timer.C:
			p.log.Warn().
				Dur("drain_timeout", p.cfg.DrainTimeout).
				Int("queued", len(p.queue)).
				Msg("Publish queue did not drain in time")
			p.cancel()
			<-p.done
		}
		p.cancel()
	}

	if n := p.undelivered.Load(); n > 0 {
		return errFactory.WithData(ErrNotDelivered, n)
	}
	return nil
}

func (p *Publisher) run(ctx context.Context) {
	defer close(p.done)
	defer p.broker.Disconnect()

	var pending *Record
	attempts := 0

	for {
		if p.State() != StateConnected {
			if err := p.connect(ctx); err != nil {
				p.abandon(pending)
				return
			}
		}

		if pending == nil {
			select {
			case rec, ok := <-p.queue:
				if !ok {
					p.setState(StateDisconnected, nil)
					return
				}
				pending = &rec
				attempts = 0
			case err := <-p.broker.Lost():
				p.setState(StateDisconnected, err)
				continue
			case <-ctx.Done():
				p.abandon(nil)
				return
			}
		}

		err := p.broker.Publish(ctx, pending.Payload())
		if err == nil {
			p.report(*pending, nil)
			pending = nil
			continue
		}

		if ctx.Err() != nil {
			p.abandon(pending)
			return
		}

		if !p.broker.IsConnected() {
			// Connection dropped mid-publish; keep the record for the next session.
			p.setState(StateDisconnected, err)
			continue
		}

		attempts++
		p.log.Debug().
			Err(err).
			Uint64("seq", pending.Seq).
			Int("attempt", attempts).
			Msg("Publish failed")

		if attempts >= p.cfg.PublishAttempts {
			p.report(*pending, errors.New().Wrap(ErrPublishFailed, err).WithData(pending.Seq))
			pending = nil
		}
	}
}

// connect runs retry rounds separated by the cooldown until the broker
// accepts the session or ctx is done.
func (p *Publisher) connect(ctx context.Context) error {
	for {
		p.setState(StateConnecting, nil)

		err := retry.Do(ctx, p.cfg.Retry, func(attempt int) error {
			p.log.Debug().Int("attempt", attempt).Msg("Connecting to broker")
			return p.broker.Connect(ctx)
		})
		if err == nil {
			p.drainLost()
			p.setState(StateConnected, nil)
			return nil
		}

		p.setState(StateDisconnected, err)
		if ctx.Err() != nil {
			return err
		}

		p.log.Warn().
			Err(err).
			Dur("cooldown", p.cfg.Cooldown).
			Msg("Broker unreachable, next connect round after cooldown")

		timer := time.NewTimer(p.cfg.Cooldown)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.New().Wrap(errors.ErrCancelled, ctx.Err())
		case <-timer.C:
		}
	}
}

// drainLost discards loss notices left over from an earlier session.
func (p *Publisher) drainLost() {
	for {
		select {
		case <-p.broker.Lost():
		default:
			return
		}
	}
}

// abandon reports pending and everything still queued as not delivered.
func (p *Publisher) abandon(pending *Record) {
	errFactory := errors.New()

	if pending != nil {
		p.report(*pending, errFactory.WithData(ErrNotDelivered, pending.Seq))
	}

	for {
		select {
		case rec, ok := <-p.queue:
			if !ok {
				return
			}
			p.report(rec, errFactory.WithData(ErrNotDelivered, rec.Seq))
		default:
			return
		}
	}
}

func (p *Publisher) report(rec Record, err error) {
	if errors.HasCode(err, ErrNotDelivered) {
		p.undelivered.Add(1)
	}
	if p.cfg.OnOutcome != nil {
		p.cfg.OnOutcome(rec, err)
	}
}

func (p *Publisher) setState(s State, err error) {
	if State(p.state.Swap(int32(s))) == s && err == nil {
		return
	}

	select {
	case p.states <- StateChange{State: s, Err: err, At: time.Now()}:
	default:
	}
}
