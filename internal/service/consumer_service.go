package service

import (
	"context"
	"encoding/json"

	"llm-knowledge-be/internal/dto"
	"llm-knowledge-be/internal/pkg/logger"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// IConsumerService drains the resource.process topic into the pipeline.
type IConsumerService interface {
	Consume(ctx context.Context) error
}

type consumerService struct {
	pubSub    *gochannel.GoChannel
	topicName string
	pipeline  IPipelineService
	logger    logger.ILogger
}

func NewConsumerService(
	pubSub *gochannel.GoChannel,
	topicName string,
	pipeline IPipelineService,
	log logger.ILogger,
) IConsumerService {
	return &consumerService{
		pubSub:    pubSub,
		topicName: topicName,
		pipeline:  pipeline,
		logger:    log,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.pubSub.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	var payload dto.PublishProcessResourcesMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		cs.logger.Error("Consumer", "Failed to unmarshal message", map[string]interface{}{
			"message_id": msg.UUID,
			"error":      err.Error(),
		})
		// Redelivery cannot fix a malformed payload.
		msg.Ack()
		return
	}
	if len(payload.ResourceIds) == 0 {
		msg.Ack()
		return
	}

	report, err := cs.pipeline.Process(ctx, payload.ResourceIds)
	if err != nil {
		cs.logger.Error("Consumer", "Pipeline run failed", map[string]interface{}{
			"message_id": msg.UUID,
			"resources":  len(payload.ResourceIds),
			"error":      err.Error(),
		})
		msg.Nack()
		return
	}

	cs.logger.Info("Consumer", "Resources processed", map[string]interface{}{
		"message_id": msg.UUID,
		"embedded":   report.Embedded,
		"failures":   len(report.Failures),
		"skipped":    report.Skipped,
	})
	msg.Ack()
}
