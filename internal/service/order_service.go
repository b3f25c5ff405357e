package service

import (
	"allocation-service/internal/allocation"
	"allocation-service/internal/entity"
	"allocation-service/internal/events"
	"allocation-service/internal/metrics"
	"allocation-service/internal/repository"
	"context"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"time"
)

var (
	ErrDuplicateRequest = errors.New("idempotent key already exists")
	ErrOrderClosed      = errors.New("order is cancelled")
	ErrOrderLocked      = errors.New("order lines can only be changed on quotations")
	ErrInvalidQuantity  = errors.New("quantity cannot be negative")
)

// OrderService runs orders through the allocation rules and gates confirmation.
type OrderService struct {
	orderRepo       OrderStore
	masterRepo      MasterStore
	settingsRepo    SettingsStore
	reservationRepo ReservationStore
	rules           *RuleService
	cache           Cache
	stock           StockChecker
	publisher       EventPublisher
	metrics         *metrics.Metrics
}

// NewOrderService creates a new instance of OrderService
func NewOrderService(orderRepo OrderStore, masterRepo MasterStore, settingsRepo SettingsStore, reservationRepo ReservationStore,
	rules *RuleService, cache Cache, stock StockChecker, publisher EventPublisher, m *metrics.Metrics) *OrderService {
	return &OrderService{
		orderRepo:       orderRepo,
		masterRepo:      masterRepo,
		settingsRepo:    settingsRepo,
		reservationRepo: reservationRepo,
		rules:           rules,
		cache:           cache,
		stock:           stock,
		publisher:       publisher,
		metrics:         m,
	}
}

// CreateOrder stores a new quotation with its allocation state already computed.
// A rejected request frees its idempotency key so a corrected retry can reuse it.
func (s *OrderService) CreateOrder(ctx context.Context, order *entity.Order) (*entity.Order, error) {
	key := order.IdempotentKey
	claimed, err := s.cache.ClaimIdempotentKey(ctx, key)
	if err != nil {
		logger.Error().Err(err).Msg("Error validating idempotent key")
		return nil, err
	}
	if !claimed {
		return nil, ErrDuplicateRequest
	}

	createdOrder, err := s.createOrder(ctx, order)
	if err != nil {
		if releaseErr := s.cache.ReleaseIdempotentKey(ctx, key); releaseErr != nil {
			logger.Error().Err(releaseErr).Msgf("Error releasing idempotent key %s", key)
		}
		return nil, err
	}

	logger.Info().Msgf("Created order %d, allocation %s", createdOrder.ID, createdOrder.AllocationState)
	return createdOrder, nil
}

func (s *OrderService) createOrder(ctx context.Context, order *entity.Order) (*entity.Order, error) {
	if err := s.hydrate(ctx, order); err != nil {
		return nil, err
	}

	id, err := s.cache.NextOrderID(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Error allocating order id")
		return nil, err
	}
	order.ID = id
	if order.IdempotentKey == "" {
		order.IdempotentKey = uuid.NewString()
	}
	order.Status = entity.OrderStatusDraft

	if _, err := s.evaluate(ctx, order); err != nil {
		return nil, err
	}

	createdOrder, err := s.orderRepo.CreateOrder(ctx, order)
	if err != nil {
		logger.Error().Err(err).Msg("Error creating order")
		return nil, err
	}
	return createdOrder, nil
}

// GetOrder loads an order with its customer and products resolved.
func (s *OrderService) GetOrder(ctx context.Context, id int) (*entity.Order, error) {
	order, err := s.orderRepo.GetOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.hydrate(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// UpdateLines replaces the lines of a quotation and recomputes its allocation.
func (s *OrderService) UpdateLines(ctx context.Context, id int, lines []entity.OrderLine) (*entity.Order, error) {
	order, err := s.orderRepo.GetOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.Status == entity.OrderStatusCancelled {
		return nil, ErrOrderClosed
	}
	if !order.Editable() {
		return nil, ErrOrderLocked
	}

	order.Lines = lines
	if err := s.hydrate(ctx, order); err != nil {
		return nil, err
	}

	previous := order.AllocationState
	if _, err := s.evaluate(ctx, order); err != nil {
		return nil, err
	}

	updatedOrder, err := s.orderRepo.UpdateOrder(ctx, order)
	if err != nil {
		logger.Error().Err(err).Msgf("Error updating lines of order %d", id)
		return nil, err
	}

	if previous != order.AllocationState {
		s.publish(ctx, events.AllocationUpdated, updatedOrder)
	}
	return updatedOrder, nil
}

// Recompute re-evaluates a stored order, persists the new state and returns the
// evaluation details.
func (s *OrderService) Recompute(ctx context.Context, id int) (*entity.Order, allocation.Evaluation, error) {
	order, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, allocation.Evaluation{}, err
	}
	evaluation, err := s.recompute(ctx, order)
	if err != nil {
		return nil, allocation.Evaluation{}, err
	}
	return order, evaluation, nil
}

func (s *OrderService) recompute(ctx context.Context, order *entity.Order) (allocation.Evaluation, error) {
	evaluation, err := s.evaluate(ctx, order)
	if err != nil {
		return evaluation, err
	}
	if err := s.orderRepo.UpdateAllocation(ctx, order.ID, order.AllocationState, order.AllocationMessage); err != nil {
		logger.Error().Err(err).Msgf("Error saving allocation of order %d", order.ID)
		return evaluation, err
	}
	// a confirmed order no longer meets its rules, e.g. after a rule change
	if order.Status == entity.OrderStatusSale && len(evaluation.Blocking()) > 0 {
		s.publish(ctx, events.AllocationBlocked, order)
	}
	return evaluation, nil
}

// ConfirmOrder turns a quotation into a sale. Unmet targets of rules that do not
// allow partial allocation abort with an *allocation.AllocationError.
func (s *OrderService) ConfirmOrder(ctx context.Context, id int) (*entity.Order, error) {
	order, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	switch order.Status {
	case entity.OrderStatusSale:
		return order, nil
	case entity.OrderStatusCancelled:
		return nil, ErrOrderClosed
	}

	evaluation, err := s.recompute(ctx, order)
	if err != nil {
		return nil, err
	}

	if err := evaluation.Err(); err != nil {
		s.metrics.Confirmations.WithLabelValues("blocked").Inc()
		logger.Warn().Msgf("Confirmation of order %d blocked: %s", order.ID, err.Error())
		s.publish(ctx, events.AllocationBlocked, order)
		return nil, err
	}

	rules, err := s.applicableRules(ctx, order)
	if err != nil {
		return nil, err
	}
	reservations := plannedReservations(order, rules)

	// claim the order before touching stock; a concurrent confirm or cancel loses here
	previous := order.Status
	moved, err := s.orderRepo.TransitionStatus(ctx, order.ID, entity.OrderStatusSale, entity.OrderStatusDraft, entity.OrderStatusSent)
	if err != nil {
		s.metrics.Confirmations.WithLabelValues("error").Inc()
		logger.Error().Err(err).Msgf("Error confirming order %d", order.ID)
		return nil, err
	}
	if !moved {
		return s.settled(ctx, order.ID)
	}

	var held []entity.Reservation
	for _, res := range reservations {
		if res.Mode != entity.ReservationHard {
			continue
		}
		if err := s.stock.Reserve(ctx, res.ProductID, res.Quantity); err != nil {
			logger.Error().Err(err).Msgf("Error reserving product %d for order %d", res.ProductID, order.ID)
			s.rollbackConfirm(ctx, order.ID, previous, held)
			return nil, err
		}
		held = append(held, res)
	}

	if err := s.reservationRepo.CreateReservations(ctx, reservations); err != nil {
		logger.Error().Err(err).Msgf("Error recording reservations of order %d", order.ID)
		s.rollbackConfirm(ctx, order.ID, previous, held)
		return nil, err
	}
	order.Status = entity.OrderStatusSale

	s.metrics.Confirmations.WithLabelValues("confirmed").Inc()
	s.publish(ctx, events.OrderConfirmed, order)
	return order, nil
}

// settled resolves a confirm that lost the status transition to whatever the
// winning request left behind.
func (s *OrderService) settled(ctx context.Context, id int) (*entity.Order, error) {
	order, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	switch order.Status {
	case entity.OrderStatusSale:
		return order, nil
	case entity.OrderStatusCancelled:
		return nil, ErrOrderClosed
	}
	return nil, ErrOrderLocked
}

// rollbackConfirm hands back the stock reserved so far and returns the order to
// its quotation status.
func (s *OrderService) rollbackConfirm(ctx context.Context, id int, previous entity.OrderStatus, held []entity.Reservation) {
	s.metrics.Confirmations.WithLabelValues("error").Inc()
	for _, res := range held {
		if err := s.stock.Release(ctx, res.ProductID, res.Quantity); err != nil {
			logger.Error().Err(err).Msgf("Error releasing product %d for order %d", res.ProductID, id)
		}
	}
	if previous == "" {
		previous = entity.OrderStatusDraft
	}
	if _, err := s.orderRepo.TransitionStatus(ctx, id, previous, entity.OrderStatusSale); err != nil {
		logger.Error().Err(err).Msgf("Error reverting status of order %d", id)
	}
}

// CancelOrder cancels the order, hands back its hard-reserved stock and clears its
// ledger. Calling it again on a cancelled order retries whatever release failed.
func (s *OrderService) CancelOrder(ctx context.Context, id int) error {
	order, err := s.orderRepo.GetOrderByID(ctx, id)
	if err != nil {
		return err
	}

	cancelled := false
	if order.Status != entity.OrderStatusCancelled {
		cancelled, err = s.orderRepo.TransitionStatus(ctx, id, entity.OrderStatusCancelled,
			entity.OrderStatusDraft, entity.OrderStatusSent, entity.OrderStatusSale)
		if err != nil {
			logger.Error().Err(err).Msgf("Error cancelling order %d", id)
			return err
		}
	}

	if err := s.releaseLedger(ctx, id); err != nil {
		return err
	}

	if cancelled {
		order.Status = entity.OrderStatusCancelled
		s.publish(ctx, events.OrderCancelled, order)
	}
	return nil
}

// releaseLedger releases hard reservations one entry at a time, so a failure
// leaves only the unreleased entries behind.
func (s *OrderService) releaseLedger(ctx context.Context, orderID int) error {
	reservations, err := s.reservationRepo.ListReservations(ctx, orderID)
	if err != nil {
		logger.Error().Err(err).Msgf("Error loading reservations of order %d", orderID)
		return err
	}

	for _, res := range reservations {
		if res.Mode != entity.ReservationHard {
			continue
		}
		if err := s.stock.Release(ctx, res.ProductID, res.Quantity); err != nil {
			logger.Error().Err(err).Msgf("Error releasing product %d for order %d", res.ProductID, orderID)
			return err
		}
		if err := s.reservationRepo.DeleteReservation(ctx, res.ID); err != nil {
			logger.Error().Err(err).Msgf("Error deleting reservation %s", res.ID)
			return err
		}
	}

	if err := s.reservationRepo.DeleteReservations(ctx, orderID); err != nil {
		logger.Error().Err(err).Msgf("Error releasing reservations of order %d", orderID)
		return err
	}
	return nil
}

// Reservations lists the ledger entries of an order.
func (s *OrderService) Reservations(ctx context.Context, id int) ([]entity.Reservation, error) {
	if _, err := s.orderRepo.GetOrderByID(ctx, id); err != nil {
		return nil, err
	}
	return s.reservationRepo.ListReservations(ctx, id)
}

// UpsertCustomer and UpsertProduct keep the master data the rules match on in sync.
func (s *OrderService) UpsertCustomer(ctx context.Context, customer *entity.Customer) error {
	return s.masterRepo.UpsertCustomer(ctx, customer)
}

func (s *OrderService) UpsertProduct(ctx context.Context, product *entity.Product) error {
	if product.TemplateID == 0 {
		return &ValidationError{Fields: map[string]string{"template_id": "template_id is required"}}
	}
	return s.masterRepo.UpsertProduct(ctx, product)
}

// evaluate computes the allocation state of the order in memory.
func (s *OrderService) evaluate(ctx context.Context, order *entity.Order) (allocation.Evaluation, error) {
	settings, err := s.settingsRepo.GetSettings(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Error loading allocation settings")
		return allocation.Evaluation{}, err
	}

	rules, err := s.applicableRules(ctx, order)
	if err != nil {
		return allocation.Evaluation{}, err
	}

	evaluator := allocation.NewEvaluator(settings)
	stock, err := s.snapshot(ctx, order, rules, evaluator)
	if err != nil {
		return allocation.Evaluation{}, err
	}

	evaluation := evaluator.Evaluate(order, rules, stock)
	order.AllocationState = evaluation.State
	order.AllocationMessage = evaluation.Message()

	s.metrics.Evaluations.WithLabelValues(string(evaluation.State)).Inc()
	return evaluation, nil
}

func (s *OrderService) applicableRules(ctx context.Context, order *entity.Order) ([]*entity.AllocationRule, error) {
	rules, err := s.rules.RulesForCompany(ctx, order.CompanyID)
	if err != nil {
		return nil, err
	}
	applicable := allocation.ApplicableRules(order, rules)
	allocation.SortRules(applicable)
	return applicable, nil
}

type stockResult struct {
	key   allocation.StockKey
	level entity.StockLevel
	err   error
}

// snapshot fetches, concurrently, the stock figures the fill-rate checks need.
// Nothing is fetched when no applicable rule has a fill-rate threshold.
func (s *OrderService) snapshot(ctx context.Context, order *entity.Order, rules []*entity.AllocationRule, evaluator *allocation.Evaluator) (allocation.StockSnapshot, error) {
	wanted := make(map[allocation.StockKey]bool)
	var keys []allocation.StockKey
	for _, rule := range rules {
		if !rule.HasFillRate() {
			continue
		}
		days := evaluator.IncomingDays(rule)
		for _, line := range order.Lines {
			if !allocation.CoversTemplate(rule, line.Product.TemplateID) {
				continue
			}
			key := allocation.StockKey{ProductID: line.Product.ID, Days: days}
			if wanted[key] {
				continue
			}
			wanted[key] = true
			keys = append(keys, key)
		}
	}

	snapshot := make(allocation.StockSnapshot, len(keys))
	if len(keys) == 0 {
		return snapshot, nil
	}

	stockCh := make(chan stockResult, len(keys))
	for _, key := range keys {
		go func(key allocation.StockKey) {
			level, err := s.stock.StockLevel(ctx, key.ProductID, key.Days)
			stockCh <- stockResult{key: key, level: level, err: err}
		}(key)
	}

	var firstErr error
	for range keys {
		result := <-stockCh
		if result.err != nil {
			logger.Error().Err(result.err).Msgf("Error fetching stock for product %d", result.key.ProductID)
			if firstErr == nil {
				firstErr = result.err
			}
			continue
		}
		snapshot[result.key] = result.level
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return snapshot, nil
}

// hydrate resolves the customer and products an order refers to by id.
func (s *OrderService) hydrate(ctx context.Context, order *entity.Order) error {
	customer, err := s.masterRepo.GetCustomer(ctx, order.Customer.ID)
	if err != nil {
		if !errors.Is(err, repository.ErrCustomerNotFound) {
			logger.Error().Err(err).Msgf("Error loading customer %d", order.Customer.ID)
		}
		return err
	}
	order.Customer = *customer

	ids := make([]int, 0, len(order.Lines))
	for _, line := range order.Lines {
		if line.Quantity.IsNegative() {
			return ErrInvalidQuantity
		}
		ids = append(ids, line.Product.ID)
	}

	products, err := s.masterRepo.GetProducts(ctx, ids)
	if err != nil {
		logger.Error().Err(err).Msg("Error loading order products")
		return err
	}
	for i, line := range order.Lines {
		product, ok := products[line.Product.ID]
		if !ok {
			return fmt.Errorf("%w: %d", repository.ErrProductNotFound, line.Product.ID)
		}
		order.Lines[i].Product = product
	}
	return nil
}

// plannedReservations assigns every line to the first rule, by sequence, that
// covers its template. Lines outside every rule are not reserved.
func plannedReservations(order *entity.Order, rules []*entity.AllocationRule) []entity.Reservation {
	now := time.Now().UTC()
	var reservations []entity.Reservation
	for _, line := range order.Lines {
		if !line.Quantity.IsPositive() {
			continue
		}
		for _, rule := range rules {
			if !allocation.CoversTemplate(rule, line.Product.TemplateID) {
				continue
			}
			reservations = append(reservations, entity.Reservation{
				ID:        uuid.NewString(),
				OrderID:   order.ID,
				RuleID:    rule.ID,
				ProductID: line.Product.ID,
				Quantity:  line.Quantity,
				Mode:      rule.ReservationMode,
				CreatedAt: now,
			})
			break
		}
	}
	return reservations
}

func (s *OrderService) publish(ctx context.Context, eventType string, order *entity.Order) {
	if err := s.publisher.PublishOrderEvent(ctx, eventType, order); err != nil {
		logger.Error().Err(err).Msgf("Error publishing %s event for order %d", eventType, order.ID)
	}
}
