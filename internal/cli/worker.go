package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/kmassidik/engagement/internal/common/kafka"
	"github.com/kmassidik/engagement/internal/rating"
	"github.com/spf13/cobra"
)

const consumeRetryDelay = 5 * time.Second

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run rating jobs requested over Kafka",
	Long: `Consume rating requests from the request topic and run each one. Only one
run executes at a time across workers when Redis is configured, and a request
that was already processed is skipped.`,
	Args: cobra.NoArgs,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	if !cfg.Kafka.Enabled() {
		return fmt.Errorf("KAFKA_BROKERS is required for the worker")
	}
	ctx := cmd.Context()

	stack, err := connectRating(ctx, true)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer stack.Close()

	consumeRunRequests(ctx, stack.service)
	return nil
}

// consumeRunRequests blocks until ctx is cancelled, retrying the consumer
// after errors.
func consumeRunRequests(ctx context.Context, service rating.Service) {
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Rating.RequestTopic, log)
	defer consumer.Close()

	log.Infof("Kafka consumer started on topic: %s", cfg.Rating.RequestTopic)
	for {
		select {
		case <-ctx.Done():
			log.Info("Kafka consumer stopped")
			return
		default:
		}

		err := consumer.Consume(ctx, func(ctx context.Context, key, value []byte) error {
			return service.ProcessKafkaEvent(ctx, value)
		})
		if err != nil && ctx.Err() == nil {
			log.Errorf("Error consuming Kafka message: %v", err)
			select {
			case <-ctx.Done():
			case <-time.After(consumeRetryDelay):
			}
		}
	}
}
