// Package kafka announces newly stored launches to downstream consumers.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"launchscope/internal/model"
	"launchscope/internal/storage"
)

// Config holds Kafka producer settings.
type Config struct {
	Brokers []string
	Topic   string
}

// LaunchCreated is the message published for every inserted launch.
type LaunchCreated struct {
	LaunchID    string      `json:"launch_id"`
	Chain       model.Chain `json:"chain"`
	Token       string      `json:"token"`
	Creator     string      `json:"creator"`
	Title       string      `json:"title"`
	URL         string      `json:"url"`
	Description string      `json:"description"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Notifier wraps a LaunchPublisher and publishes a message after each insert.
// A failed publish is logged and does not undo the insert.
type Notifier struct {
	next   storage.LaunchPublisher
	writer messageWriter
	logger *zap.Logger
}

var _ storage.LaunchPublisher = (*Notifier)(nil)

// NewNotifier builds a Notifier producing to cfg.Topic.
func NewNotifier(next storage.LaunchPublisher, cfg Config, logger *zap.Logger) (*Notifier, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, fmt.Errorf("kafka brokers and topic are required")
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
	return newNotifier(next, writer, logger), nil
}

func newNotifier(next storage.LaunchPublisher, writer messageWriter, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{next: next, writer: writer, logger: logger}
}

// UpsertLaunch implements storage.LaunchPublisher.
func (n *Notifier) UpsertLaunch(ctx context.Context, rec model.LaunchRecord, overwrite bool) (bool, error) {
	inserted, err := n.next.UpsertLaunch(ctx, rec, overwrite)
	if err != nil || !inserted {
		return inserted, err
	}
	if err := n.publish(ctx, rec); err != nil {
		n.logger.Warn("publish launch notification", zap.String("id", rec.ID), zap.String("token", rec.Token), zap.Error(err))
	}
	return inserted, nil
}

// Exists implements storage.LaunchPublisher.
func (n *Notifier) Exists(ctx context.Context, chain model.Chain, token string) (bool, error) {
	return n.next.Exists(ctx, chain, token)
}

func (n *Notifier) publish(ctx context.Context, rec model.LaunchRecord) error {
	data, err := json.Marshal(LaunchCreated{
		LaunchID:    rec.ID,
		Chain:       rec.Chain,
		Token:       rec.Token,
		Creator:     rec.Creator,
		Title:       rec.Title,
		URL:         rec.URL,
		Description: rec.Description,
	})
	if err != nil {
		return err
	}
	// Keyed by token so every message of a launch lands on one partition.
	return n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(rec.Token),
		Value: data,
		Time:  time.Now(),
	})
}

func (n *Notifier) Close() error {
	return n.writer.Close()
}
