package service

import (
	"allocation-service/internal/entity"
	"context"
	"github.com/shopspring/decimal"
)

type RuleStore interface {
	ListRules(ctx context.Context, companyID int) ([]*entity.AllocationRule, error)
	GetRule(ctx context.Context, id int) (*entity.AllocationRule, error)
	CreateRule(ctx context.Context, rule *entity.AllocationRule) (*entity.AllocationRule, error)
	UpdateRule(ctx context.Context, rule *entity.AllocationRule) error
	DeleteRule(ctx context.Context, id int) error
}

type OrderStore interface {
	GetOrderByID(ctx context.Context, id int) (*entity.Order, error)
	CreateOrder(ctx context.Context, order *entity.Order) (*entity.Order, error)
	UpdateOrder(ctx context.Context, order *entity.Order) (*entity.Order, error)
	UpdateAllocation(ctx context.Context, id int, state entity.AllocationState, message string) error
	TransitionStatus(ctx context.Context, id int, to entity.OrderStatus, from ...entity.OrderStatus) (bool, error)
}

type MasterStore interface {
	GetCustomer(ctx context.Context, id int) (*entity.Customer, error)
	UpsertCustomer(ctx context.Context, customer *entity.Customer) error
	GetProducts(ctx context.Context, ids []int) (map[int]entity.Product, error)
	UpsertProduct(ctx context.Context, product *entity.Product) error
}

type SettingsStore interface {
	GetSettings(ctx context.Context) (entity.Settings, error)
	SaveSettings(ctx context.Context, settings entity.Settings) error
}

type ReservationStore interface {
	CreateReservations(ctx context.Context, reservations []entity.Reservation) error
	ListReservations(ctx context.Context, orderID int) ([]entity.Reservation, error)
	DeleteReservation(ctx context.Context, id string) error
	DeleteReservations(ctx context.Context, orderID int) error
}

// Cache is the Redis side of the service: rule cache, idempotency keys and ids.
type Cache interface {
	GetRules(ctx context.Context, companyID int) ([]*entity.AllocationRule, bool, error)
	SetRules(ctx context.Context, companyID int, rules []*entity.AllocationRule) error
	InvalidateRules(ctx context.Context) error
	ClaimIdempotentKey(ctx context.Context, key string) (bool, error)
	ReleaseIdempotentKey(ctx context.Context, key string) error
	NextOrderID(ctx context.Context) (int, error)
}

type StockChecker interface {
	StockLevel(ctx context.Context, productID, days int) (entity.StockLevel, error)
	Reserve(ctx context.Context, productID int, quantity decimal.Decimal) error
	Release(ctx context.Context, productID int, quantity decimal.Decimal) error
}

type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, eventType string, order *entity.Order) error
}
