package sink

import (
	"context"

	"go.uber.org/zap"

	"github.com/okharin/mv-parser/internal/scrape"
)

// ProductSubmitter forwards a single parsed product to an external intake.
type ProductSubmitter interface {
	Submit(ctx context.Context, product scrape.Product) error
}

// Sink implements scrape.Sink. The JSON document is written first and never
// rolled back; API submission happens afterwards and its failures degrade
// the report instead of failing the delivery.
type Sink struct {
	writer    *Writer
	submitter ProductSubmitter
	logger    *zap.Logger
}

// New builds a Sink. A nil submitter disables API submission entirely.
func New(writer *Writer, submitter ProductSubmitter, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{writer: writer, submitter: submitter, logger: logger}
}

// Deliver persists the run and reports what reached each destination.
func (s *Sink) Deliver(ctx context.Context, result scrape.RunResult) (scrape.SinkReport, error) {
	var report scrape.SinkReport
	if err := s.writer.Write(result); err != nil {
		return report, scrape.NewSinkError(scrape.KindSinkWriteFailed, err)
	}
	report.JSONWritten = true

	if s.submitter == nil {
		return report, nil
	}
	for _, outcome := range result.Outcomes {
		if !outcome.Success() {
			continue
		}
		if err := s.submitter.Submit(ctx, *outcome.Record); err != nil {
			report.Rejected++
			s.logger.Warn("product card submission failed",
				zap.String("url", outcome.Record.URL),
				zap.String("code", outcome.Record.Code),
				zap.Error(err))
			continue
		}
		report.Submitted++
	}
	report.APIAccepted = report.Rejected == 0
	return report, nil
}
