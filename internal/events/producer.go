// Package events publishes ticket lifecycle events. Delivery is best effort:
// a broker outage never fails the API call that produced the event.
package events

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/supportdesk/backend/internal/models"
)

const (
	ChatCreated   = "chat.created"
	ChatClaimed   = "chat.claimed"
	ChatEscalated = "chat.escalated"
	ChatClosed    = "chat.closed"
	RatingAdded   = "rating.added"
)

type Event struct {
	Type       string            `json:"event"`
	ChatID     int64             `json:"chat_id"`
	Status     models.ChatStatus `json:"status,omitempty"`
	OperatorID *int64            `json:"operator_id,omitempty"`
	ActorID    int64             `json:"actor_id,omitempty"`
	Score      *int              `json:"score,omitempty"`
	At         time.Time         `json:"at"`
}

// ForChat fills the chat-derived fields of an event.
func ForChat(kind string, c models.Chat, actor int64) Event {
	return Event{
		Type:       kind,
		ChatID:     c.ID,
		Status:     c.Status,
		OperatorID: c.AssignedOperatorID,
		ActorID:    actor,
		At:         c.UpdatedAt,
	}
}

type Publisher interface {
	Publish(ctx context.Context, e Event)
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) {}

// Producer writes events to a Kafka topic, keyed by chat id so that events of
// one chat stay ordered within a partition.
type Producer struct {
	writer *kafka.Writer
	log    zerolog.Logger
}

// NewProducer returns a Nop publisher when brokers or topic are empty.
func NewProducer(brokers []string, topic string, log zerolog.Logger) Publisher {
	if len(brokers) == 0 || topic == "" {
		return Nop{}
	}
	p := &Producer{log: log.With().Str("component", "events").Str("topic", topic).Logger()}
	p.writer = &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 5 * time.Second,
		Async:        true,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				p.log.Warn().Err(err).Int("count", len(msgs)).Msg("event delivery failed")
			}
		},
	}
	return p
}

func (p *Producer) Publish(ctx context.Context, e Event) {
	body, err := json.Marshal(e)
	if err != nil {
		p.log.Warn().Err(err).Str("event", e.Type).Msg("marshal event")
		return
	}
	msg := kafka.Message{Key: []byte(strconv.FormatInt(e.ChatID, 10)), Value: body}
	if err := p.writer.WriteMessages(context.WithoutCancel(ctx), msg); err != nil {
		p.log.Warn().Err(err).Str("event", e.Type).Msg("enqueue event")
	}
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// ParseBrokers splits "host1:9092,host2:9092" into addresses.
func ParseBrokers(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
