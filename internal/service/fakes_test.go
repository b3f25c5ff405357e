package service

import (
	"allocation-service/internal/cache"
	"allocation-service/internal/entity"
	"allocation-service/internal/metrics"
	"allocation-service/internal/repository"
	"context"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"sync"
	"testing"
	"time"
)

type memRuleStore struct {
	mu     sync.Mutex
	nextID int
	rules  map[int]*entity.AllocationRule
	lists  int
}

func newMemRuleStore(rules ...*entity.AllocationRule) *memRuleStore {
	s := &memRuleStore{rules: make(map[int]*entity.AllocationRule)}
	for _, r := range rules {
		s.nextID++
		if r.ID == 0 {
			r.ID = s.nextID
		}
		s.rules[r.ID] = r
	}
	return s
}

func (s *memRuleStore) ListRules(_ context.Context, companyID int) ([]*entity.AllocationRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists++
	var out []*entity.AllocationRule
	for _, r := range s.rules {
		if r.CompanyID == 0 || r.CompanyID == companyID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memRuleStore) GetRule(_ context.Context, id int) (*entity.AllocationRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[id]
	if !ok {
		return nil, entity.ErrRuleNotFound
	}
	return r, nil
}

func (s *memRuleStore) CreateRule(_ context.Context, rule *entity.AllocationRule) (*entity.AllocationRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	rule.ID = s.nextID
	s.rules[rule.ID] = rule
	return rule, nil
}

func (s *memRuleStore) UpdateRule(_ context.Context, rule *entity.AllocationRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[rule.ID]; !ok {
		return entity.ErrRuleNotFound
	}
	s.rules[rule.ID] = rule
	return nil
}

func (s *memRuleStore) DeleteRule(_ context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[id]; !ok {
		return entity.ErrRuleNotFound
	}
	delete(s.rules, id)
	return nil
}

type memOrderStore struct {
	mu     sync.Mutex
	orders map[int]entity.Order
	// beforeTransition runs ahead of every status transition, standing in for a
	// request that gets there first.
	beforeTransition func(id int)
}

func newMemOrderStore() *memOrderStore {
	return &memOrderStore{orders: make(map[int]entity.Order)}
}

// stored orders keep only ids, like the database does
func strip(order entity.Order) entity.Order {
	order.Customer = entity.Customer{ID: order.Customer.ID}
	lines := make([]entity.OrderLine, len(order.Lines))
	for i, line := range order.Lines {
		lines[i] = entity.OrderLine{Product: entity.Product{ID: line.Product.ID}, Quantity: line.Quantity}
	}
	order.Lines = lines
	return order
}

func (s *memOrderStore) GetOrderByID(_ context.Context, id int) (*entity.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	order = strip(order)
	return &order, nil
}

func (s *memOrderStore) CreateOrder(_ context.Context, order *entity.Order) (*entity.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[order.ID] = strip(*order)
	return order, nil
}

func (s *memOrderStore) UpdateOrder(_ context.Context, order *entity.Order) (*entity.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[order.ID]; !ok {
		return nil, repository.ErrOrderNotFound
	}
	s.orders[order.ID] = strip(*order)
	return order, nil
}

func (s *memOrderStore) UpdateAllocation(_ context.Context, id int, state entity.AllocationState, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return repository.ErrOrderNotFound
	}
	order.AllocationState = state
	order.AllocationMessage = message
	s.orders[id] = order
	return nil
}

func (s *memOrderStore) TransitionStatus(_ context.Context, id int, to entity.OrderStatus, from ...entity.OrderStatus) (bool, error) {
	if hook := s.beforeTransition; hook != nil {
		s.beforeTransition = nil
		hook(id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return false, nil
	}
	for _, status := range from {
		if order.Status == status {
			order.Status = to
			s.orders[id] = order
			return true, nil
		}
	}
	return false, nil
}

// setStatus changes the stored status behind the service's back.
func (s *memOrderStore) setStatus(id int, status entity.OrderStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order := s.orders[id]
	order.Status = status
	s.orders[id] = order
}

func (s *memOrderStore) get(id int) entity.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[id]
}

type memMasterStore struct {
	customers map[int]entity.Customer
	products  map[int]entity.Product
}

func newMemMasterStore() *memMasterStore {
	return &memMasterStore{customers: make(map[int]entity.Customer), products: make(map[int]entity.Product)}
}

func (s *memMasterStore) GetCustomer(_ context.Context, id int) (*entity.Customer, error) {
	c, ok := s.customers[id]
	if !ok {
		return nil, repository.ErrCustomerNotFound
	}
	return &c, nil
}

func (s *memMasterStore) UpsertCustomer(_ context.Context, customer *entity.Customer) error {
	s.customers[customer.ID] = *customer
	return nil
}

func (s *memMasterStore) GetProducts(_ context.Context, ids []int) (map[int]entity.Product, error) {
	out := make(map[int]entity.Product)
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (s *memMasterStore) UpsertProduct(_ context.Context, product *entity.Product) error {
	s.products[product.ID] = *product
	return nil
}

type memSettingsStore struct {
	settings entity.Settings
}

func (s *memSettingsStore) GetSettings(context.Context) (entity.Settings, error) {
	return s.settings, nil
}

func (s *memSettingsStore) SaveSettings(_ context.Context, settings entity.Settings) error {
	s.settings = settings
	return nil
}

type memReservationStore struct {
	mu           sync.Mutex
	reservations []entity.Reservation
	createErr    error
}

func (s *memReservationStore) CreateReservations(_ context.Context, reservations []entity.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	s.reservations = append(s.reservations, reservations...)
	return nil
}

func (s *memReservationStore) ListReservations(_ context.Context, orderID int) ([]entity.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.Reservation
	for _, r := range s.reservations {
		if r.OrderID == orderID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memReservationStore) DeleteReservation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.reservations {
		if r.ID == id {
			s.reservations = append(s.reservations[:i], s.reservations[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *memReservationStore) DeleteReservations(_ context.Context, orderID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.reservations[:0]
	for _, r := range s.reservations {
		if r.OrderID != orderID {
			kept = append(kept, r)
		}
	}
	s.reservations = kept
	return nil
}

type mockStock struct {
	mock.Mock
}

func (m *mockStock) StockLevel(ctx context.Context, productID, days int) (entity.StockLevel, error) {
	args := m.Called(ctx, productID, days)
	return args.Get(0).(entity.StockLevel), args.Error(1)
}

func (m *mockStock) Reserve(ctx context.Context, productID int, quantity decimal.Decimal) error {
	args := m.Called(ctx, productID, quantity)
	return args.Error(0)
}

func (m *mockStock) Release(ctx context.Context, productID int, quantity decimal.Decimal) error {
	args := m.Called(ctx, productID, quantity)
	return args.Error(0)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishOrderEvent(ctx context.Context, eventType string, order *entity.Order) error {
	args := m.Called(ctx, eventType, order)
	return args.Error(0)
}

type fixture struct {
	rules        *memRuleStore
	orders       *memOrderStore
	master       *memMasterStore
	settings     *memSettingsStore
	reservations *memReservationStore
	stock        *mockStock
	publisher    *mockPublisher
	metrics      *metrics.Metrics
	ruleService  *RuleService
	service      *OrderService
}

const (
	sizeAttr = 1
	sizeS    = 11
	sizeM    = 12
	tshirt   = 100
	hoodie   = 200
)

func newFixture(t *testing.T, rules ...*entity.AllocationRule) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	redisCache := cache.NewRedisCache(rdb, time.Minute, time.Hour)

	f := &fixture{
		rules:        newMemRuleStore(rules...),
		orders:       newMemOrderStore(),
		master:       newMemMasterStore(),
		settings:     &memSettingsStore{},
		reservations: &memReservationStore{},
		stock:        &mockStock{},
		publisher:    &mockPublisher{},
		metrics:      metrics.New("allocation_test"),
	}
	f.publisher.On("PublishOrderEvent", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	f.ruleService = NewRuleService(f.rules, redisCache, f.metrics)
	f.service = NewOrderService(f.orders, f.master, f.settings, f.reservations, f.ruleService, redisCache, f.stock, f.publisher, f.metrics)

	f.master.customers[1] = entity.Customer{ID: 1, Name: "Boutique", TagIDs: []int{7}, CustomerTypeID: 2}
	f.master.customers[2] = entity.Customer{ID: 2, Name: "Outlet", CustomerTypeID: 3}
	f.master.products[1] = variant(1, tshirt, "T-Shirt", sizeS, "S")
	f.master.products[2] = variant(2, tshirt, "T-Shirt", sizeM, "M")
	f.master.products[3] = variant(3, hoodie, "Hoodie", sizeS, "S")
	return f
}

func variant(id, templateID int, templateName string, valueID int, size string) entity.Product {
	return entity.Product{
		ID:           id,
		Name:         templateName + " " + size,
		TemplateID:   templateID,
		TemplateName: templateName,
		AttributeValues: []entity.AttributeValue{
			{AttributeID: sizeAttr, ValueID: valueID, Name: size},
		},
	}
}

func orderLine(productID int, qty int64) entity.OrderLine {
	return entity.OrderLine{Product: entity.Product{ID: productID}, Quantity: decimal.NewFromInt(qty)}
}

func sizeRule(allowPartial bool) *entity.AllocationRule {
	return &entity.AllocationRule{
		Name:               "Tee sizes",
		Sequence:           10,
		ProductTemplateIDs: []int{tshirt},
		UseVariants:        true,
		AllowPartial:       allowPartial,
		ReservationMode:    entity.ReservationSoft,
		Lines: []entity.AllocationRuleLine{
			{SizeValueID: sizeS, SizeName: "S", MinQty: decimal.NewFromInt(5)},
			{SizeValueID: sizeM, SizeName: "M", MinQty: decimal.NewFromInt(5)},
		},
	}
}
