package spoke

import (
	"log/slog"

	"github.com/spinwheel/spinwheel/internal/bound"
)

// reportSink delivers bound reports to the hub. A failed delivery parks the
// report for retry on the next step, so a transient hub outage never loses a
// personal best.
type reportSink struct {
	reporter Reporter
	pending  *bound.Report
	log      *slog.Logger
}

// send parks r as the report to deliver and attempts delivery once.
func (s *reportSink) send(r bound.Report) {
	s.pending = &r
	s.flush()
}

// flush attempts delivery of the parked report. It returns true when a
// report was delivered.
func (s *reportSink) flush() bool {
	if s.pending == nil {
		return false
	}
	ack, err := s.reporter.Report(*s.pending)
	if err != nil {
		s.log.Warn("report delivery failed, will retry", "err", err)
		return false
	}
	s.log.Debug("report delivered",
		"value", s.pending.Value,
		"accepted", ack.Accepted,
		"based_on", s.pending.BasedOnVersion)
	s.pending = nil
	return true
}
