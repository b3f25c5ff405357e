package events

import (
	"allocation-service/internal/entity"
	"context"
	"encoding/json"
	"fmt"
	"github.com/segmentio/kafka-go"
	"time"
)

const (
	OrderConfirmed    = "confirmed"
	OrderCancelled    = "cancelled"
	AllocationBlocked = "allocation-blocked"
	AllocationUpdated = "allocation-updated"
)

// OrderEvent is published whenever allocation changes the course of an order.
type OrderEvent struct {
	Type       string                 `json:"type"`
	OrderID    int                    `json:"order_id"`
	State      entity.AllocationState `json:"allocation_state"`
	Message    string                 `json:"allocation_message"`
	Order      *entity.Order          `json:"order"`
	OccurredAt time.Time              `json:"occurred_at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaPublisher writes order events to the allocation topic.
type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(writer *kafka.Writer) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

func (p *KafkaPublisher) PublishOrderEvent(ctx context.Context, eventType string, order *entity.Order) error {
	event := OrderEvent{
		Type:       eventType,
		OrderID:    order.ID,
		State:      order.AllocationState,
		Message:    order.AllocationMessage,
		Order:      order,
		OccurredAt: time.Now().UTC(),
	}
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}

	// order-confirmed-1001 or order-allocation-blocked-1001
	msg := kafka.Message{
		Key:   []byte(fmt.Sprintf("order-%s-%d", eventType, order.ID)),
		Value: value,
	}

	return p.writer.WriteMessages(ctx, msg)
}

// NopPublisher drops events; used when ENV=test.
type NopPublisher struct{}

func (NopPublisher) PublishOrderEvent(context.Context, string, *entity.Order) error { return nil }
