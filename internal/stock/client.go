package stock

import (
	"allocation-service/internal/entity"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"net/http"
	"os"
	"time"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Str("component", "stock-client").Logger()

var (
	ErrStockUnavailable   = errors.New("stock service unavailable")
	ErrFractionalQuantity = errors.New("stock can only be reserved in whole units")
)

// Client talks to the product catalog service for on-hand, incoming and
// reserved stock.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	settings := gobreaker.Settings{
		Name:        "stock-service",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
		},
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		cb:         gobreaker.NewCircuitBreaker(settings),
	}
}

// StockLevel returns on-hand stock plus stock expected within the next days.
func (c *Client) StockLevel(ctx context.Context, productID, days int) (entity.StockLevel, error) {
	level := entity.StockLevel{ProductID: productID, OnHand: decimal.Zero, Incoming: decimal.Zero}

	var onHand struct {
		Stock decimal.Decimal `json:"stock"`
	}
	if err := c.get(ctx, fmt.Sprintf("%s/products/%d/stock", c.baseURL, productID), &onHand); err != nil {
		return level, err
	}
	level.OnHand = onHand.Stock

	if days <= 0 {
		return level, nil
	}

	var incoming struct {
		Incoming decimal.Decimal `json:"incoming"`
	}
	if err := c.get(ctx, fmt.Sprintf("%s/products/%d/incoming?days=%d", c.baseURL, productID, days), &incoming); err != nil {
		return level, err
	}
	level.Incoming = incoming.Incoming

	return level, nil
}

// Reserve places a hard reservation on the product's stock. The inventory
// service counts whole units, so fractional quantities are refused.
func (c *Client) Reserve(ctx context.Context, productID int, quantity decimal.Decimal) error {
	return c.post(ctx, "/products/reserve", productID, quantity)
}

// Release returns a previously reserved quantity to the product's stock.
func (c *Client) Release(ctx context.Context, productID int, quantity decimal.Decimal) error {
	return c.post(ctx, "/products/release", productID, quantity)
}

func (c *Client) post(ctx context.Context, path string, productID int, quantity decimal.Decimal) error {
	if !quantity.IsInteger() {
		return fmt.Errorf("%w: product %d quantity %s", ErrFractionalQuantity, productID, quantity.String())
	}

	payload, err := json.Marshal(map[string]interface{}{
		"product_id": productID,
		"quantity":   quantity.IntPart(),
	})
	if err != nil {
		return err
	}

	_, err = c.cb.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("POST %s product %d: status %d", path, productID, resp.StatusCode)
		}
		return nil, nil
	})
	return c.wrap(err)
}

func (c *Client) get(ctx context.Context, url string, out interface{}) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
		}
		return nil, json.NewDecoder(resp.Body).Decode(out)
	})
	return c.wrap(err)
}

func (c *Client) wrap(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrStockUnavailable, err)
	}
	return err
}
