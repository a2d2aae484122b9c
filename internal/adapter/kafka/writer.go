package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/oceanbio/occurrence-screening/internal/config"
	"github.com/oceanbio/occurrence-screening/internal/domain"
)

// ReportWriter publishes finished screening reports to a Kafka topic.
// It implements pipeline.ReportPublisher.
type ReportWriter struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewReportWriter creates a Kafka producer for the configured sink topic.
func NewReportWriter(cfg *config.Config, logger *slog.Logger) *ReportWriter {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &ReportWriter{writer: w, logger: logger}
}

// PublishReport serializes and publishes one screening report, keyed by
// screening id so replays of the same screening land in the same partition.
func (w *ReportWriter) PublishReport(ctx context.Context, report *domain.Report) error {
	msg, err := serializeToMessage(report)
	if err != nil {
		return err
	}
	return w.writer.WriteMessages(ctx, msg)
}

func (w *ReportWriter) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a Report into a Kafka message.
func serializeToMessage(report *domain.Report) (kafkago.Message, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize report: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(report.ScreeningID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "screening_id", Value: []byte(report.ScreeningID)},
			{Key: "generated_at", Value: []byte(report.GeneratedAt.Format(time.RFC3339))},
		},
	}, nil
}
