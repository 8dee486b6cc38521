package forward

import (
	"sync"
	"time"

	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/errors"
)

// Persister is the durable half of the sink.
type Persister interface {
	Append(rec Record) error
	Close() error
}

// Enqueuer is the broker half of the sink.
type Enqueuer interface {
	Publish(rec Record) error
	Stop() error
}

// Result of forwarding one line. A persist failure never prevents the publish
// attempt and vice versa.
type Result struct {
	Record     Record
	PersistErr error
	PublishErr error
}

// Sink assigns receipt sequence numbers and fans each accepted line out to
// the store and the publisher. It is called from the loop goroutine only.
type Sink struct {
	store     Persister
	publisher Enqueuer
	seq       uint64
	now       func() time.Time
	closeOnce sync.Once
	stopOnce  sync.Once
}

func NewSink(store Persister, publisher Enqueuer) *Sink {
	return &Sink{
		store:     store,
		publisher: publisher,
		now:       time.Now,
	}
}

// Forward persists line and hands it to the publisher. Sequence numbers start
// at 1 and follow call order.
func (s *Sink) Forward(line string) Result {
	s.seq++
	rec := Record{
		Seq:        s.seq,
		Line:       line,
		ReceivedAt: s.now(),
	}

	return Result{
		Record:     rec,
		PersistErr: s.store.Append(rec),
		PublishErr: s.publisher.Publish(rec),
	}
}

// StopPublishing drains the publisher. It is the first shutdown step so no
// new records are accepted while the queue flushes.
func (s *Sink) StopPublishing() error {
	var err error
	s.stopOnce.Do(func() {
		err = s.publisher.Stop()
	})
	return err
}

// Close stops publishing if that has not happened yet, then closes the store.
func (s *Sink) Close() error {
	var err error
	s.closeOnce.Do(func() {
		stopErr := s.StopPublishing()
		closeErr := s.store.Close()
		if joined := errors.Join(stopErr, closeErr); joined != nil {
			err = errors.New().Wrap(errors.ErrTeardown, joined)
		}
	})
	return err
}
