package consumer

import (
	"allocation-service/internal/entity"
	"allocation-service/internal/metrics"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"strings"
)

type OrderUpdater interface {
	UpdateLines(ctx context.Context, id int, lines []entity.OrderLine) (*entity.Order, error)
	CancelOrder(ctx context.Context, id int) error
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// OrderLineEvent is sent by the sales front-end with the full line set of an order.
type OrderLineEvent struct {
	OrderID int `json:"order_id"`
	Lines   []struct {
		ProductID int             `json:"product_id"`
		Quantity  decimal.Decimal `json:"quantity"`
	} `json:"lines"`
}

type Consumer struct {
	reader  messageReader
	orders  OrderUpdater
	metrics *metrics.Metrics
}

func NewConsumer(reader *kafka.Reader, orders OrderUpdater, m *metrics.Metrics) *Consumer {
	return &Consumer{reader: reader, orders: orders, metrics: m}
}

// Start reads order line events until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info().Msg("Order line consumer stopped")
				return
			}
			log.Error().Msgf("Error reading message: %v", err)
			continue
		}

		if err := c.processMessage(ctx, msg); err != nil {
			c.metrics.EventsConsumed.WithLabelValues("error").Inc()
			log.Error().Msgf("Error processing message %s: %v", string(msg.Key), err)
			continue
		}
		c.metrics.EventsConsumed.WithLabelValues("ok").Inc()
	}
}

// processMessage handles one event. Keys look like "order.lines-updated.1001" or
// "order.cancelled.1001".
func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) error {
	listKey := strings.Split(string(msg.Key), ".")
	if len(listKey) < 2 {
		return fmt.Errorf("malformed message key %q", string(msg.Key))
	}
	eventType := listKey[1]

	var event OrderLineEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return err
	}
	if event.OrderID == 0 {
		return errors.New("message without order_id")
	}

	switch eventType {
	case "lines-updated":
		lines := make([]entity.OrderLine, 0, len(event.Lines))
		for _, l := range event.Lines {
			lines = append(lines, entity.OrderLine{Product: entity.Product{ID: l.ProductID}, Quantity: l.Quantity})
		}
		order, err := c.orders.UpdateLines(ctx, event.OrderID, lines)
		if err != nil {
			return err
		}
		log.Info().Msgf("Order %d recomputed from event, allocation %s", order.ID, order.AllocationState)
		return nil
	case "cancelled":
		return c.orders.CancelOrder(ctx, event.OrderID)
	default:
		return fmt.Errorf("unknown event type %s", eventType)
	}
}
