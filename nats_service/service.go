package nats_service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/karthikraju391/rag-chat-client/config"
	"github.com/karthikraju391/rag-chat-client/models"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
)

// NatsService mirrors conversation events into a JetStream stream.
type NatsService struct {
	js     jetstream.JetStream
	nc     *nats.Conn
	stream string
	prefix string
	log    *zap.Logger
}

// NewNatsService connects to NATS and makes sure the stream exists
func NewNatsService(cfg config.NatsConfig, log *zap.Logger) (*NatsService, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("nats")

	nc, err := nats.Connect(cfg.URL, nats.Name("ragchat"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create jetstream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := js.Stream(ctx, cfg.StreamName)
	if err != nil {
		log.Info("stream not found, creating", zap.String("stream", cfg.StreamName))
		stream, err = js.CreateStream(ctx, streamConfig(cfg))
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("failed to create stream '%s': %w", cfg.StreamName, err)
		}
		log.Info("stream created", zap.String("stream", cfg.StreamName))
	} else {
		log.Info("found existing stream", zap.String("stream", stream.CachedInfo().Config.Name))
	}

	return &NatsService{js: js, nc: nc, stream: cfg.StreamName, prefix: cfg.SubjectPrefix, log: log}, nil
}

func streamConfig(cfg config.NatsConfig) jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        cfg.StreamName,
		Description: "Mirrored ragchat conversations",
		Subjects:    []string{cfg.SubjectPrefix + ".*"},
		MaxAge:      24 * time.Hour,
		Storage:     jetstream.FileStorage,
	}
}

// Close NATS connection
func (s *NatsService) Close() {
	if s.nc != nil {
		s.nc.Close()
	}
}

// PublishEvent sends a conversation event to the conversation's subject
func (s *NatsService) PublishEvent(ctx context.Context, ev models.Event) error {
	subject := getSubject(s.prefix, ev.ConversationID)
	data, err := encodeEvent(ev)
	if err != nil {
		return err
	}

	if _, err := s.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish event to subject '%s': %w", subject, err)
	}
	s.log.Debug("published event", zap.String("subject", subject), zap.String("kind", string(ev.Kind)))
	return nil
}

// SubscribeToConversation delivers every mirrored event of a conversation,
// from the start of the stream, to handler. Stop the returned context to
// end the subscription.
func (s *NatsService) SubscribeToConversation(ctx context.Context, conversationID string, handler func(ev *models.Event)) (jetstream.ConsumeContext, error) {
	subject := getSubject(s.prefix, conversationID)
	// Ephemeral consumer replaying everything the stream still holds
	cons, err := s.js.CreateOrUpdateConsumer(ctx, s.stream, jetstream.ConsumerConfig{
		FilterSubject: subject,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckPolicy:     jetstream.AckNonePolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer for subject '%s': %w", subject, err)
	}

	s.log.Info("subscribing", zap.String("subject", subject))

	consumeCtx, err := cons.Consume(func(msg jetstream.Msg) {
		ev, err := decodeEvent(msg.Data())
		if err != nil {
			s.log.Warn("dropping undecodable event", zap.String("subject", msg.Subject()), zap.Error(err))
			return
		}
		handler(ev)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming from subject '%s': %w", subject, err)
	}
	return consumeCtx, nil
}

// getSubject generates the NATS subject for a conversation
func getSubject(prefix, conversationID string) string {
	return fmt.Sprintf("%s.%s", prefix, conversationID)
}

func encodeEvent(ev models.Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return data, nil
}

func decodeEvent(data []byte) (*models.Event, error) {
	var ev models.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return &ev, nil
}
