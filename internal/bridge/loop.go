// Package bridge runs the read, dispatch and classify-or-forward loop and owns
// the teardown order of everything it drives.
package bridge

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/config"
	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/errors"
	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/forward"
	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/journal"
	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/logger"
	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/pipeline"
	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/protocol"
	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/serial"
	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/telemetry"
)

const defaultPollInterval = 50 * time.Millisecond

// LineReader yields framed serial lines. ok is false on a read timeout.
type LineReader interface {
	Next() (line string, ok bool, err error)
	Close() error
}

// Classifier maps a feature vector to an identity label.
type Classifier interface {
	Predict(features []float64) (string, error)
}

// Forwarder persists and publishes accepted lines.
type Forwarder interface {
	Forward(line string) forward.Result
	StopPublishing() error
	Close() error
}

// Deps are the components a Loop drives. Classifier is required in predict
// mode, Forwarder in gateway mode. Journal, Metrics, States and QueueDepth
// are optional.
type Deps struct {
	Source     LineReader
	Classifier Classifier
	Forwarder  Forwarder
	States     <-chan forward.StateChange
	QueueDepth func() int
	Journal    journal.Recorder
	Metrics    *telemetry.Metrics
	Out        io.Writer
}

// Loop is single-threaded: Run, Step and Shutdown are called from one
// goroutine.
type Loop struct {
	mode       config.Mode
	poll       time.Duration
	source     LineReader
	dispatcher *protocol.Dispatcher
	classifier Classifier
	forwarder  Forwarder
	states     <-chan forward.StateChange
	queueDepth func() int
	journal    journal.Recorder
	metrics    *telemetry.Metrics
	out        io.Writer
	log        logger.Logger
}

func New(mode config.Mode, poll time.Duration, deps Deps, log logger.Logger) (*Loop, error) {
	errFactory := errors.New()

	if deps.Source == nil {
		return nil, errFactory.WithData(ErrMissingComponent, "line source")
	}
	switch mode {
	case config.ModePredict:
		if deps.Classifier == nil {
			return nil, errFactory.WithData(ErrMissingComponent, "classifier")
		}
	case config.ModeGateway:
		if deps.Forwarder == nil {
			return nil, errFactory.WithData(ErrMissingComponent, "forwarder")
		}
	default:
		return nil, errFactory.WithData(errors.ErrInvalidMode, mode)
	}

	if poll <= 0 {
		poll = defaultPollInterval
	}
	if deps.Journal == nil {
		deps.Journal = journal.Nop()
	}
	if deps.Out == nil {
		deps.Out = os.Stdout
	}

	return &Loop{
		mode:       mode,
		poll:       poll,
		source:     deps.Source,
		dispatcher: protocol.NewDispatcher(log.With("protocol")),
		classifier: deps.Classifier,
		forwarder:  deps.Forwarder,
		states:     deps.States,
		queueDepth: deps.QueueDepth,
		journal:    deps.Journal,
		metrics:    deps.Metrics,
		out:        deps.Out,
		log:        log,
	}, nil
}

// Run steps until ctx is done or the source fails fatally. A cancelled ctx is
// a clean stop and returns nil. The iteration in progress always completes.
func (l *Loop) Run(ctx context.Context) error {
	l.log.Info().
		Str("mode", string(l.mode)).
		Dur("poll_interval", l.poll).
		Msg("Bridge loop started")

	for {
		if ctx.Err() != nil {
			l.log.Info().Msg("Bridge loop stopping")
			return nil
		}

		progressed, err := l.Step()
		if err != nil {
			return err
		}
		if progressed {
			continue
		}

		timer := time.NewTimer(l.poll)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}
}

// Step handles at most one line. It reports whether a line was consumed; the
// error is non-nil only when the source can no longer be read, after any
// lines it still held have been handled.
func (l *Loop) Step() (bool, error) {
	l.drainStates()

	line, ok, err := l.source.Next()
	if err != nil {
		if serial.IsFatal(err) {
			l.log.Error().Err(err).Msg("Serial device lost")
			l.drainSource()
			return false, errors.New().Wrap(ErrSourceFailed, err)
		}
		l.log.Warn().Err(err).Msg("Serial read failed")
		return false, nil
	}
	if !ok {
		return false, nil
	}

	l.Handle(line)
	return true, nil
}

// drainSource handles the complete lines the source still holds after a
// fatal read.
func (l *Loop) drainSource() {
	for {
		line, ok, err := l.source.Next()
		if err != nil || !ok {
			return
		}
		l.Handle(line)
	}
}

// Handle dispatches one line and acts on the resulting event.
func (l *Loop) Handle(line string) {
	ev := l.dispatcher.Dispatch(line)
	l.metrics.ObserveLine(ev.Token.Kind.String())

	switch ev.Kind {
	case protocol.EventSessionStarted:
		l.log.Info().Msg("Swipe session started")

	case protocol.EventFeatureFrame:
		switch l.mode {
		case config.ModePredict:
			l.predict(ev)
		case config.ModeGateway:
			l.forward(ev)
		}

	case protocol.EventSessionEnded:
		l.log.Info().Msg("Swipe session complete")

	case protocol.EventProtocolError:
		l.metrics.ObserveFrame(string(l.mode), telemetry.OutcomeRejected)
		l.record(journal.Outcome{
			Kind:      journal.KindRejected,
			ErrorCode: errors.CodeOf(ev.Err),
			Line:      line,
		})

	case protocol.EventIgnored:
	}
}

func (l *Loop) predict(ev protocol.Event) {
	start := time.Now()
	label, err := l.classifier.Predict(ev.Features)
	l.metrics.ObservePrediction(time.Since(start))

	if err != nil {
		code := errors.CodeOf(err)
		if code == pipeline.ErrClassOutOfRange {
			l.log.Error().
				Err(err).
				Str("error_code", string(code)).
				Msg("Model predicted a class outside the label map")
		} else {
			l.log.Warn().
				Err(err).
				Str("error_code", string(code)).
				Msg("Swipe could not be identified")
		}

		fmt.Fprintln(l.out, "Swipe could not be identified")
		l.metrics.ObserveFrame(string(l.mode), telemetry.OutcomeUnidentified)
		l.record(journal.Outcome{
			Kind:      journal.KindUnidentified,
			ErrorCode: code,
			Line:      ev.Token.Raw,
		})
		return
	}

	l.log.Info().Str("label", label).Msg("Swipe identified")

	fmt.Fprintf(l.out, "Swipe performed by %s\n", label)
	l.metrics.ObserveFrame(string(l.mode), telemetry.OutcomeIdentified)
	l.record(journal.Outcome{
		Kind:  journal.KindIdentified,
		Label: label,
		Line:  ev.Token.Raw,
	})
}

func (l *Loop) forward(ev protocol.Event) {
	res := l.forwarder.Forward(ev.Token.Raw)
	seq := res.Record.Seq

	if res.PersistErr != nil {
		l.log.Error().
			Err(res.PersistErr).
			Uint64("seq", seq).
			Msg("Failed to persist swipe")
		l.metrics.ObserveFrame(string(l.mode), telemetry.OutcomePersistError)
		l.record(journal.Outcome{
			Seq:       seq,
			Kind:      journal.KindPersistFailed,
			ErrorCode: errors.CodeOf(res.PersistErr),
			Line:      ev.Token.Raw,
		})
	} else {
		l.log.Debug().Uint64("seq", seq).Msg("Swipe persisted")
		l.metrics.ObserveFrame(string(l.mode), telemetry.OutcomeForwarded)
		l.record(journal.Outcome{
			Seq:  seq,
			Kind: journal.KindPersisted,
			Line: ev.Token.Raw,
		})
	}

	if res.PublishErr != nil {
		l.log.Warn().
			Err(res.PublishErr).
			Uint64("seq", seq).
			Msg("Swipe not queued for publishing")
		result := telemetry.PublishFailed
		if errors.HasCode(res.PublishErr, forward.ErrQueueFull) {
			result = telemetry.PublishQueueFull
		}
		l.metrics.ObservePublish(result)
		l.record(journal.Outcome{
			Seq:       seq,
			Kind:      journal.KindPublishFailed,
			ErrorCode: errors.CodeOf(res.PublishErr),
			Line:      ev.Token.Raw,
		})
	}

	if l.queueDepth != nil {
		l.metrics.SetQueueDepth(l.queueDepth())
	}
}

// drainStates logs broker state changes without blocking.
func (l *Loop) drainStates() {
	if l.states == nil {
		return
	}

	for {
		select {
		case change := <-l.states:
			l.logState(change)
		default:
			return
		}
	}
}

func (l *Loop) logState(change forward.StateChange) {
	l.metrics.SetBrokerConnected(change.State == forward.StateConnected)

	switch change.State {
	case forward.StateConnected:
		l.log.Info().Msg("Broker connected")
	case forward.StateConnecting:
		l.log.Debug().Msg("Connecting to broker")
	case forward.StateDisconnected:
		if change.Err != nil {
			l.log.Warn().Err(change.Err).Msg("Broker disconnected")
			return
		}
		l.log.Info().Msg("Broker disconnected")
	}
}

func (l *Loop) record(o journal.Outcome) {
	o.Mode = string(l.mode)
	if o.At.IsZero() {
		o.At = time.Now()
	}
	if err := l.journal.Record(o); err != nil {
		l.log.Debug().Err(err).Msg("Journal write failed")
	}
}

// Shutdown stops publishing, then closes the serial source, the store and the
// journal, in that order. Every step runs even when an earlier one fails.
func (l *Loop) Shutdown() error {
	var errs []error

	if l.forwarder != nil {
		if err := l.forwarder.StopPublishing(); err != nil {
			if errors.HasCode(err, forward.ErrNotDelivered) {
				l.log.Warn().Err(err).Msg("Some swipes were not published before shutdown")
			} else {
				errs = append(errs, err)
			}
		}
	}
	l.drainStates()

	if err := l.source.Close(); err != nil {
		errs = append(errs, err)
	}

	if l.forwarder != nil {
		if err := l.forwarder.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if err := l.journal.Close(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.New().Wrap(errors.ErrTeardown, errors.Join(errs...))
	}

	l.log.Info().Msg("Bridge shut down")
	return nil
}
