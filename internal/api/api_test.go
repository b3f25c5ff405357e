package api

import (
	"allocation-service/internal/allocation"
	"allocation-service/internal/entity"
	"allocation-service/internal/repository"
	"allocation-service/internal/service"
	"context"
	"encoding/json"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const testSecret = "test-secret"

type mockOrderService struct {
	mock.Mock
}

func (m *mockOrderService) CreateOrder(ctx context.Context, order *entity.Order) (*entity.Order, error) {
	args := m.Called(ctx, order)
	o, _ := args.Get(0).(*entity.Order)
	return o, args.Error(1)
}

func (m *mockOrderService) GetOrder(ctx context.Context, id int) (*entity.Order, error) {
	args := m.Called(ctx, id)
	o, _ := args.Get(0).(*entity.Order)
	return o, args.Error(1)
}

func (m *mockOrderService) UpdateLines(ctx context.Context, id int, lines []entity.OrderLine) (*entity.Order, error) {
	args := m.Called(ctx, id, lines)
	o, _ := args.Get(0).(*entity.Order)
	return o, args.Error(1)
}

func (m *mockOrderService) Recompute(ctx context.Context, id int) (*entity.Order, allocation.Evaluation, error) {
	args := m.Called(ctx, id)
	o, _ := args.Get(0).(*entity.Order)
	return o, args.Get(1).(allocation.Evaluation), args.Error(2)
}

func (m *mockOrderService) ConfirmOrder(ctx context.Context, id int) (*entity.Order, error) {
	args := m.Called(ctx, id)
	o, _ := args.Get(0).(*entity.Order)
	return o, args.Error(1)
}

func (m *mockOrderService) CancelOrder(ctx context.Context, id int) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockOrderService) Reservations(ctx context.Context, id int) ([]entity.Reservation, error) {
	args := m.Called(ctx, id)
	r, _ := args.Get(0).([]entity.Reservation)
	return r, args.Error(1)
}

func (m *mockOrderService) UpsertCustomer(ctx context.Context, customer *entity.Customer) error {
	return m.Called(ctx, customer).Error(0)
}

func (m *mockOrderService) UpsertProduct(ctx context.Context, product *entity.Product) error {
	return m.Called(ctx, product).Error(0)
}

type mockRuleService struct {
	mock.Mock
}

func (m *mockRuleService) CreateRule(ctx context.Context, rule *entity.AllocationRule) (*entity.AllocationRule, error) {
	args := m.Called(ctx, rule)
	r, _ := args.Get(0).(*entity.AllocationRule)
	return r, args.Error(1)
}

func (m *mockRuleService) UpdateRule(ctx context.Context, rule *entity.AllocationRule) (*entity.AllocationRule, error) {
	args := m.Called(ctx, rule)
	r, _ := args.Get(0).(*entity.AllocationRule)
	return r, args.Error(1)
}

func (m *mockRuleService) DeleteRule(ctx context.Context, id int) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockRuleService) GetRule(ctx context.Context, id int) (*entity.AllocationRule, error) {
	args := m.Called(ctx, id)
	r, _ := args.Get(0).(*entity.AllocationRule)
	return r, args.Error(1)
}

func (m *mockRuleService) ListRules(ctx context.Context, companyID int) ([]*entity.AllocationRule, error) {
	args := m.Called(ctx, companyID)
	r, _ := args.Get(0).([]*entity.AllocationRule)
	return r, args.Error(1)
}

type mockSettingsService struct {
	mock.Mock
}

func (m *mockSettingsService) GetSettings(ctx context.Context) (entity.Settings, error) {
	args := m.Called(ctx)
	return args.Get(0).(entity.Settings), args.Error(1)
}

func (m *mockSettingsService) UpdateSettings(ctx context.Context, settings entity.Settings) (entity.Settings, error) {
	args := m.Called(ctx, settings)
	return args.Get(0).(entity.Settings), args.Error(1)
}

type testServer struct {
	e        *echo.Echo
	orders   *mockOrderService
	rules    *mockRuleService
	settings *mockSettingsService
}

func newTestServer() *testServer {
	s := &testServer{
		e:        echo.New(),
		orders:   &mockOrderService{},
		rules:    &mockRuleService{},
		settings: &mockSettingsService{},
	}
	RegisterRoutes(s.e, NewOrderHandler(s.orders), NewRuleHandler(s.rules, s.settings), testSecret, nil)
	return s
}

func (s *testServer) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	out := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestCreateOrder_PassesIdempotentKeyAndLines(t *testing.T) {
	s := newTestServer()

	s.orders.On("CreateOrder", mock.Anything, mock.MatchedBy(func(o *entity.Order) bool {
		return o.IdempotentKey == "abc" && o.Customer.ID == 4 && len(o.Lines) == 1 &&
			o.Lines[0].Product.ID == 9 && o.Lines[0].Quantity.Equal(decimal.NewFromInt(12))
	})).Return(&entity.Order{ID: 1001, AllocationState: entity.AllocationReady}, nil)

	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"company_id":1,"customer_id":4,"lines":[{"product_id":9,"quantity":"12"}]}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("Idempotent-Key", "abc")
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)

	assert.Equal(t, 201, rec.Code)
	assert.Equal(t, float64(1001), decode(t, rec)["id"])
	s.orders.AssertExpectations(t)
}

func TestCreateOrder_InvalidPayload(t *testing.T) {
	s := newTestServer()

	rec := s.do(t, http.MethodPost, "/orders", `{"lines":`, "")
	assert.Equal(t, 400, rec.Code)
}

func TestConfirmOrder_BlockedReturns422(t *testing.T) {
	s := newTestServer()

	allocErr := &allocation.AllocationError{
		Rules:   []string{"Tee sizes"},
		Message: "Allocation rule 'Tee sizes' not satisfied:\nM requires 5 but only 3 planned",
	}
	s.orders.On("ConfirmOrder", mock.Anything, 1001).Return(nil, allocErr)

	rec := s.do(t, http.MethodPost, "/orders/1001/confirm", "", "")
	assert.Equal(t, 422, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, allocErr.Message, body["error"])
	assert.Equal(t, []interface{}{"Tee sizes"}, body["rules"])
}

func TestConfirmOrder_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"not found", repository.ErrOrderNotFound, 404},
		{"cancelled", service.ErrOrderClosed, 409},
		{"unexpected", assert.AnError, 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer()
			s.orders.On("ConfirmOrder", mock.Anything, 7).Return(nil, tt.err)

			rec := s.do(t, http.MethodPost, "/orders/7/confirm", "", "")
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}

func TestGetOrder_InvalidID(t *testing.T) {
	s := newTestServer()

	rec := s.do(t, http.MethodGet, "/orders/abc", "", "")
	assert.Equal(t, 400, rec.Code)
}

func TestGetAllocation(t *testing.T) {
	s := newTestServer()

	evaluation := allocation.Evaluation{
		State:    entity.AllocationReady,
		Messages: []string{"M requires 5 but only 3 planned"},
		Results:  []allocation.Result{{RuleID: 1, RuleName: "Tee sizes", Shortfalls: []string{"M requires 5 but only 3 planned"}}},
	}
	order := &entity.Order{ID: 1001, AllocationState: entity.AllocationReady, AllocationMessage: "M requires 5 but only 3 planned"}
	s.orders.On("Recompute", mock.Anything, 1001).Return(order, evaluation, nil)

	rec := s.do(t, http.MethodGet, "/orders/1001/allocation", "", "")
	require.Equal(t, 200, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "ready", body["allocation_state"])
	assert.Equal(t, "M requires 5 but only 3 planned", body["allocation_message"])
	assert.Len(t, body["results"], 1)
}

func TestUpdateLines(t *testing.T) {
	s := newTestServer()

	s.orders.On("UpdateLines", mock.Anything, 1001, mock.MatchedBy(func(lines []entity.OrderLine) bool {
		return len(lines) == 2 && lines[1].Product.ID == 3
	})).Return(&entity.Order{ID: 1001}, nil)

	rec := s.do(t, http.MethodPut, "/orders/1001/lines", `{"lines":[{"product_id":2,"quantity":1},{"product_id":3,"quantity":4}]}`, "")
	assert.Equal(t, 200, rec.Code)
	s.orders.AssertExpectations(t)
}

func TestUpsertProduct_UsesPathID(t *testing.T) {
	s := newTestServer()

	s.orders.On("UpsertProduct", mock.Anything, mock.MatchedBy(func(p *entity.Product) bool {
		return p.ID == 12 && p.TemplateID == 100 && len(p.AttributeValues) == 1
	})).Return(nil)

	rec := s.do(t, http.MethodPut, "/products/12", `{"id":99,"name":"Tee M","template_id":100,"attribute_values":[{"attribute_id":1,"value_id":12,"name":"M"}]}`, "")
	assert.Equal(t, 200, rec.Code)
	s.orders.AssertExpectations(t)
}

func TestRules_RequireAdminToken(t *testing.T) {
	s := newTestServer()
	s.rules.On("ListRules", mock.Anything, 0).Return([]*entity.AllocationRule{{ID: 1, Name: "Tee sizes"}}, nil)

	rec := s.do(t, http.MethodGet, "/rules", "", "")
	assert.Equal(t, 401, rec.Code)

	salesToken, err := IssueToken(testSecret, "sam", "sales")
	require.NoError(t, err)
	rec = s.do(t, http.MethodGet, "/rules", "", salesToken)
	assert.Equal(t, 403, rec.Code)

	forged, err := IssueToken("other-secret", "eve", RoleAdmin)
	require.NoError(t, err)
	rec = s.do(t, http.MethodGet, "/rules", "", forged)
	assert.Equal(t, 401, rec.Code)

	adminToken, err := IssueToken(testSecret, "ada", RoleAdmin)
	require.NoError(t, err)
	rec = s.do(t, http.MethodGet, "/rules", "", adminToken)
	assert.Equal(t, 200, rec.Code)
}

func TestCreateRule_ValidationError(t *testing.T) {
	s := newTestServer()
	token, err := IssueToken(testSecret, "ada", RoleAdmin)
	require.NoError(t, err)

	s.rules.On("CreateRule", mock.Anything, mock.Anything).
		Return(nil, &service.ValidationError{Fields: map[string]string{"lines": entity.ErrDuplicateSize.Error()}})

	rec := s.do(t, http.MethodPost, "/rules", `{"name":"dup","lines":[{"size_value_id":1,"min_qty":"2"},{"size_value_id":1,"min_qty":"3"}]}`, token)
	assert.Equal(t, 400, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "each size value can only appear once per rule")
}

func TestUpdateRule_NotFound(t *testing.T) {
	s := newTestServer()
	token, err := IssueToken(testSecret, "ada", RoleAdmin)
	require.NoError(t, err)

	s.rules.On("UpdateRule", mock.Anything, mock.MatchedBy(func(r *entity.AllocationRule) bool { return r.ID == 5 })).
		Return(nil, entity.ErrRuleNotFound)

	rec := s.do(t, http.MethodPut, "/rules/5", `{"name":"gone"}`, token)
	assert.Equal(t, 404, rec.Code)
}

func TestSettingsRoundTrip(t *testing.T) {
	s := newTestServer()
	token, err := IssueToken(testSecret, "ada", RoleAdmin)
	require.NoError(t, err)

	settings := entity.Settings{UseProductVariants: true, DefaultIncomingDays: 14}
	s.settings.On("UpdateSettings", mock.Anything, settings).Return(settings, nil)

	rec := s.do(t, http.MethodPut, "/settings", `{"use_product_variants":true,"default_incoming_days":14}`, token)
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, true, decode(t, rec)["use_product_variants"])
}

func TestHealth(t *testing.T) {
	s := newTestServer()

	rec := s.do(t, http.MethodGet, "/allocation/health", "", "")
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
}
