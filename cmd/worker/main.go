// worker consumes claim status-change events from Kafka and pushes them to Loki.
// Set KAFKA_BROKERS, CLAIM_EVENTS_KAFKA_TOPIC, KAFKA_GROUP_ID, and LOKI_URL.
package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"claims-portal/backend/internal/config"
	"claims-portal/backend/internal/events/loki"
)

const pushTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("worker: %v", err)
	}
	log.Println("worker: stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	brokers := cfg.KafkaBrokersList()
	if len(brokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}
	if cfg.LokiURL == "" {
		return fmt.Errorf("LOKI_URL is required")
	}

	topic := cfg.ClaimEventsKafkaTopic
	if topic == "" {
		topic = "claims-events"
	}
	groupID := cfg.KafkaGroupID
	if groupID == "" {
		groupID = "claims-events-worker"
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		CommitInterval: time.Second,
	})
	defer reader.Close()

	log.Printf("worker: consuming %s (group %s), pushing to %s", topic, groupID, cfg.LokiURL)

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("worker: kafka read: %v", err)
			continue
		}
		forward(ctx, cfg.LokiURL, msg.Value)
	}
}

// forward ships one event to Loki with a bounded deadline. Failures are logged
// and the offset is committed anyway; events are observability data, not state.
func forward(ctx context.Context, lokiURL string, payload []byte) {
	pushCtx, cancel := context.WithTimeout(ctx, pushTimeout)
	defer cancel()
	if err := loki.PushEventJSON(pushCtx, lokiURL, payload); err != nil {
		log.Printf("worker: loki push: %v", err)
	}
}
