package kafka

import (
	"context"
	"fmt"

	"github.com/fileflow-platform/tracking-service/internal/domain"
	"github.com/fileflow-platform/tracking-service/pkg/cloudevents"
	"github.com/fileflow-platform/tracking-service/pkg/kafka"
	"github.com/fileflow-platform/tracking-service/pkg/logging"
)

// EscalationNotifier publishes SLA breach notifications to the escalations
// topic. Delivery is at-least-once: the caller marks escalation_sent only
// after Notify returns.
type EscalationNotifier struct {
	producer     *kafka.InstrumentedProducer
	eventFactory *cloudevents.EventFactory
	logger       *logging.Logger
}

// NewEscalationNotifier creates a new EscalationNotifier
func NewEscalationNotifier(producer *kafka.InstrumentedProducer, eventFactory *cloudevents.EventFactory, logger *logging.Logger) *EscalationNotifier {
	return &EscalationNotifier{
		producer:     producer,
		eventFactory: eventFactory,
		logger:       logger,
	}
}

// Notify publishes one breach to the escalations topic
func (n *EscalationNotifier) Notify(ctx context.Context, breach domain.Breach) error {
	event := n.eventFactory.CreateEscalationRaisedEvent(
		ctx,
		breach.FileID,
		string(breach.Stage),
		breach.EmployeeCode,
		breach.ElapsedMinutes,
		breach.EscalationMinutes,
		breach.FirstTrigger,
	)

	if err := n.producer.PublishEvent(ctx, kafka.Topics.EscalationEvents, event); err != nil {
		return fmt.Errorf("failed to publish escalation: %w", err)
	}

	n.logger.Info("Published escalation",
		"fileId", breach.FileID,
		"stage", string(breach.Stage),
		"elapsedMinutes", breach.ElapsedMinutes,
		"firstTrigger", breach.FirstTrigger)

	return nil
}
