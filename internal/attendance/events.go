package attendance

import (
	"context"

	"go.uber.org/zap"

	"classroll/internal/metrics"
	"classroll/internal/queue"
)

// Consume handles queue events until ctx is done. The worker runs it against
// Redis; the API runs it in-process when the queue is in memory.
func (s *Service) Consume(ctx context.Context, q queue.Queue) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return err
	}
	for msg := range messages {
		s.HandleEvent(ctx, msg)
	}
	return nil
}

// HandleEvent rebuilds the cached report for a submitted session. Other event
// types are counted and skipped.
func (s *Service) HandleEvent(ctx context.Context, msg queue.Message) {
	if msg.Type != EventSubmitted {
		metrics.EventsProcessed.WithLabelValues(msg.Type, "skipped").Inc()
		return
	}
	var evt SubmittedEvent
	if err := msg.Decode(&evt); err != nil {
		metrics.EventsProcessed.WithLabelValues(msg.Type, "error").Inc()
		s.log.Warn("bad event body", zap.Error(err))
		return
	}
	report, err := s.RefreshReport(ctx, evt.SessionID)
	metrics.EventsProcessed.WithLabelValues(msg.Type, metrics.Result(err)).Inc()
	if err != nil {
		s.log.Error("refresh report failed",
			zap.String("submission_id", evt.SubmissionID),
			zap.Int64("session_id", evt.SessionID),
			zap.Error(err))
		return
	}
	s.log.Info("report refreshed",
		zap.String("submission_id", evt.SubmissionID),
		zap.Int64("session_id", evt.SessionID),
		zap.Int("unmarked", report.Unmarked),
		zap.Float64("percentage", report.Percentage))
}
