package bridge

import (
	"time"

	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/config"
	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/errors"
	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/forward"
	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/journal"
	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/logger"
	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/telemetry"
)

// PublishReporter returns the publisher's outcome callback. It runs on the
// publisher's worker goroutine, so it only touches concurrency-safe sinks.
func PublishReporter(rec journal.Recorder, m *telemetry.Metrics, log logger.Logger) func(forward.Record, error) {
	if rec == nil {
		rec = journal.Nop()
	}

	return func(r forward.Record, err error) {
		o := journal.Outcome{
			At:   time.Now(),
			Seq:  r.Seq,
			Mode: string(config.ModeGateway),
			Kind: journal.KindPublished,
			Line: r.Line,
		}

		switch {
		case err == nil:
			log.Debug().Uint64("seq", r.Seq).Msg("Swipe published")
			m.ObservePublish(telemetry.PublishDelivered)
		case errors.HasCode(err, forward.ErrNotDelivered):
			log.Warn().Uint64("seq", r.Seq).Msg("Swipe not published before shutdown")
			m.ObservePublish(telemetry.PublishUndelivered)
			o.Kind = journal.KindPublishFailed
			o.ErrorCode = errors.CodeOf(err)
		default:
			log.Warn().Err(err).Uint64("seq", r.Seq).Msg("Swipe publish failed")
			m.ObservePublish(telemetry.PublishFailed)
			o.Kind = journal.KindPublishFailed
			o.ErrorCode = errors.CodeOf(err)
		}

		if jerr := rec.Record(o); jerr != nil {
			log.Debug().Err(jerr).Msg("Journal write failed")
		}
	}
}
