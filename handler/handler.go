package handler

import (
	"context"
	"encoding/json"
	"errors"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"narration-pipeline/dto"
	"narration-pipeline/pkg/rabbitmq"
	"narration-pipeline/service"
)

var (
	ProcessTopology = rabbitmq.Topology{
		ExchangeName: "audio_pipeline_exchange",
		QueueName:    "audio_process_queue",
		RoutingKey:   "audio.process.request",
	}
	CutTopology = rabbitmq.Topology{
		ExchangeName: "audio_pipeline_exchange",
		QueueName:    "audio_cut_queue",
		RoutingKey:   "audio.cut.request",
	}
)

type ServiceDependencies struct {
	Pipeline service.PipelineService
	Library  service.LibraryService
	Mappings service.MappingService
}

func ProcessHandler(ctx context.Context, msg amqp.Delivery, deps ServiceDependencies) error {
	var message dto.ProcessMessage
	if err := json.Unmarshal(msg.Body, &message); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to unmarshal process message")
		return errors.Join(rabbitmq.ErrNonRetryable, err)
	}

	zerolog.Ctx(ctx).Info().
		Str("audio_file_id", message.AudioFileId.String()).
		Msg("received process message")

	_, err := deps.Pipeline.Process(ctx, message)
	return classifyQueueError(err)
}

func CutHandler(ctx context.Context, msg amqp.Delivery, deps ServiceDependencies) error {
	var message dto.CutMessage
	if err := json.Unmarshal(msg.Body, &message); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to unmarshal cut message")
		return errors.Join(rabbitmq.ErrNonRetryable, err)
	}

	zerolog.Ctx(ctx).Info().
		Str("audio_file_id", message.AudioFileId.String()).
		Msg("received cut message")

	_, err := deps.Pipeline.Cut(ctx, message)
	return classifyQueueError(err)
}

// classifyQueueError marks terminal pipeline outcomes non-retryable.
// Validation and concurrency rejections never succeed on redelivery, and a
// stage failure is already recorded on the file row. Everything else is
// treated as transient and goes back on the queue.
func classifyQueueError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, service.ErrNotFound),
		errors.Is(err, service.ErrAlreadyProcessing),
		errors.Is(err, service.ErrProcessingFailed):
		return errors.Join(rabbitmq.ErrNonRetryable, err)
	}
	return err
}
