package api

import (
	"allocation-service/internal/allocation"
	"allocation-service/internal/entity"
	"context"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"strconv"
)

type OrderService interface {
	CreateOrder(ctx context.Context, order *entity.Order) (*entity.Order, error)
	GetOrder(ctx context.Context, id int) (*entity.Order, error)
	UpdateLines(ctx context.Context, id int, lines []entity.OrderLine) (*entity.Order, error)
	Recompute(ctx context.Context, id int) (*entity.Order, allocation.Evaluation, error)
	ConfirmOrder(ctx context.Context, id int) (*entity.Order, error)
	CancelOrder(ctx context.Context, id int) error
	Reservations(ctx context.Context, id int) ([]entity.Reservation, error)
	UpsertCustomer(ctx context.Context, customer *entity.Customer) error
	UpsertProduct(ctx context.Context, product *entity.Product) error
}

type OrderHandler struct {
	orderService OrderService
}

func NewOrderHandler(orderService OrderService) *OrderHandler {
	return &OrderHandler{orderService: orderService}
}

type lineRequest struct {
	ProductID int             `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
}

type orderRequest struct {
	CompanyID  int           `json:"company_id"`
	CustomerID int           `json:"customer_id"`
	Lines      []lineRequest `json:"lines"`
}

func toLines(req []lineRequest) []entity.OrderLine {
	lines := make([]entity.OrderLine, 0, len(req))
	for _, l := range req {
		lines = append(lines, entity.OrderLine{Product: entity.Product{ID: l.ProductID}, Quantity: l.Quantity})
	}
	return lines
}

func paramID(c echo.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	return id, err == nil
}

// CreateOrder --> POST /orders
func (h *OrderHandler) CreateOrder(c echo.Context) error {
	req := orderRequest{}
	if err := c.Bind(&req); err != nil {
		return c.JSON(400, map[string]string{"error": "Invalid request payload"})
	}

	order := &entity.Order{
		CompanyID:     req.CompanyID,
		Customer:      entity.Customer{ID: req.CustomerID},
		Lines:         toLines(req.Lines),
		IdempotentKey: c.Request().Header.Get("Idempotent-Key"),
	}

	createdOrder, err := h.orderService.CreateOrder(c.Request().Context(), order)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(201, createdOrder)
}

// GetOrder --> GET /orders/:id
func (h *OrderHandler) GetOrder(c echo.Context) error {
	id, ok := paramID(c)
	if !ok {
		return c.JSON(400, map[string]string{"error": "Invalid ID"})
	}

	order, err := h.orderService.GetOrder(c.Request().Context(), id)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(200, order)
}

// UpdateLines --> PUT /orders/:id/lines
func (h *OrderHandler) UpdateLines(c echo.Context) error {
	id, ok := paramID(c)
	if !ok {
		return c.JSON(400, map[string]string{"error": "Invalid ID"})
	}

	req := struct {
		Lines []lineRequest `json:"lines"`
	}{}
	if err := c.Bind(&req); err != nil {
		return c.JSON(400, map[string]string{"error": "Invalid request payload"})
	}

	order, err := h.orderService.UpdateLines(c.Request().Context(), id, toLines(req.Lines))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(200, order)
}

// ConfirmOrder --> POST /orders/:id/confirm
func (h *OrderHandler) ConfirmOrder(c echo.Context) error {
	id, ok := paramID(c)
	if !ok {
		return c.JSON(400, map[string]string{"error": "Invalid ID"})
	}

	order, err := h.orderService.ConfirmOrder(c.Request().Context(), id)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(200, order)
}

// CancelOrder --> DELETE /orders/:id
func (h *OrderHandler) CancelOrder(c echo.Context) error {
	id, ok := paramID(c)
	if !ok {
		return c.JSON(400, map[string]string{"error": "Invalid ID"})
	}

	if err := h.orderService.CancelOrder(c.Request().Context(), id); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(200, map[string]string{"message": "Order cancelled"})
}

// GetAllocation re-evaluates the order --> GET /orders/:id/allocation
func (h *OrderHandler) GetAllocation(c echo.Context) error {
	id, ok := paramID(c)
	if !ok {
		return c.JSON(400, map[string]string{"error": "Invalid ID"})
	}

	order, evaluation, err := h.orderService.Recompute(c.Request().Context(), id)
	if err != nil {
		return errorResponse(c, err)
	}

	results := evaluation.Results
	if results == nil {
		results = []allocation.Result{}
	}
	return c.JSON(200, map[string]interface{}{
		"order_id":           order.ID,
		"allocation_state":   order.AllocationState,
		"allocation_message": order.AllocationMessage,
		"results":            results,
	})
}

// GetReservations --> GET /orders/:id/reservations
func (h *OrderHandler) GetReservations(c echo.Context) error {
	id, ok := paramID(c)
	if !ok {
		return c.JSON(400, map[string]string{"error": "Invalid ID"})
	}

	reservations, err := h.orderService.Reservations(c.Request().Context(), id)
	if err != nil {
		return errorResponse(c, err)
	}
	if reservations == nil {
		reservations = []entity.Reservation{}
	}
	return c.JSON(200, reservations)
}

// UpsertCustomer --> PUT /customers/:id
func (h *OrderHandler) UpsertCustomer(c echo.Context) error {
	id, ok := paramID(c)
	if !ok {
		return c.JSON(400, map[string]string{"error": "Invalid ID"})
	}

	customer := entity.Customer{}
	if err := c.Bind(&customer); err != nil {
		return c.JSON(400, map[string]string{"error": "Invalid request payload"})
	}
	customer.ID = id

	if err := h.orderService.UpsertCustomer(c.Request().Context(), &customer); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(200, customer)
}

// UpsertProduct --> PUT /products/:id
func (h *OrderHandler) UpsertProduct(c echo.Context) error {
	id, ok := paramID(c)
	if !ok {
		return c.JSON(400, map[string]string{"error": "Invalid ID"})
	}

	product := entity.Product{}
	if err := c.Bind(&product); err != nil {
		return c.JSON(400, map[string]string{"error": "Invalid request payload"})
	}
	product.ID = id

	if err := h.orderService.UpsertProduct(c.Request().Context(), &product); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(200, product)
}
