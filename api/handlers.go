/*
handlers.go - HTTP API handlers for the store-manager credit surface

PURPOSE:
  Exposes the credit ledger via REST API. Handles HTTP request/response,
  JSON serialization, request validation, and delegates to credit.Ledger.

ENDPOINTS (all under /api/store-manager, tenant headers required):
  Customers:
    GET    /customers                          List customers
    POST   /customers                          Create customer
    GET    /customers/{id}                     Customer with credit figures

  Credit ledger:
    GET    /customers/{id}/credit-history      Filtered transaction history
    POST   /customers/{id}/credit-payment      Record payment
    POST   /customers/{id}/credit-adjustment   Add/deduct adjustment
    PUT    /customers/{id}/credit-limit        Change credit limit
    POST   /customers/{id}/credit-sale         Sale on credit
    POST   /customers/{id}/credit-refund       Refund against credit
    POST   /customers/{id}/credit-writeoff     Write off outstanding credit

  Store-wide:
    GET    /credit/summary?period=30           Credit summary
    GET    /credit/audit                       Balance vs ledger audit
    POST   /staff                              Register staff member

HANDLER RULES (checked here, before the ledger is called):
  - Every amount must be > 0
  - Payment, refund and write-off cannot exceed the outstanding balance
  - A deduct adjustment cannot take the balance below zero
  - A sale cannot exceed the available credit
  The ledger re-checks the non-negative balance rule under its lock, so a
  request that races past these checks still cannot overdraw.

ERROR HANDLING:
  All failures go through writeLedgerError:
  - 400: Validation errors (with field list), negative balance
  - 404: Customer not found
  - 409: Concurrent modification, duplicate id
  - 500: Everything else (generic message, details only in logs)

SEE ALSO:
  - dto.go: Request/response data structures
  - middleware.go: Tenant context
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/pharmly/credit-ledger/credit"
	"github.com/shopspring/decimal"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger *credit.Ledger

	// Scheduler, when set, is reported alongside on-demand audits.
	Scheduler *AuditScheduler

	logger   *slog.Logger
	validate *validator.Validate

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler around the ledger.
func NewHandler(ledger *credit.Ledger, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{
		Ledger:   ledger,
		logger:   logger,
		validate: newValidator(),
	}
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// =============================================================================
// CUSTOMER ENDPOINTS
// =============================================================================

// ListCustomers returns the store's customers.
// GET /api/store-manager/customers
func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.Ledger.Store().ListCustomers(r.Context(), storeFrom(r.Context()))
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	dtos := make([]CustomerDTO, 0, len(customers))
	for _, c := range customers {
		dtos = append(dtos, customerDTO(c))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCustomer returns one customer with available credit and utilization.
// GET /api/store-manager/customers/{id}
func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	customer, ok := h.loadCustomer(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, customerDTO(customer))
}

// CreateCustomer registers a customer.
// POST /api/store-manager/customers
func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateCustomerRequest
	v, ok := h.decode(w, r, &req)
	if !ok {
		return
	}
	if req.CreditLimit.IsNegative() {
		v.Add("creditLimit", "creditLimit cannot be negative")
	}
	if req.OpeningBalance.IsNegative() {
		v.Add("openingBalance", "openingBalance cannot be negative")
	}
	if h.invalid(w, r, v) {
		return
	}

	customer, err := h.Ledger.RegisterCustomer(ctx, credit.CustomerInput{
		StoreID:        storeFrom(ctx),
		Name:           req.Name,
		Phone:          req.Phone,
		Email:          req.Email,
		CreditLimit:    req.CreditLimit,
		OpeningBalance: req.OpeningBalance,
		ProcessedBy:    staffFrom(ctx),
	})
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	writeJSONMessage(w, http.StatusCreated, "Customer created", customerDTO(customer))
}

// =============================================================================
// CREDIT HISTORY
// =============================================================================

// GetCreditHistory returns the customer's filtered ledger, newest first.
// GET /api/store-manager/customers/{id}/credit-history
//
// Query: startDate, endDate (RFC 3339 or YYYY-MM-DD; a bare endDate covers
// the whole day), transactionType, limit (default 100, max 1000).
func (h *Handler) GetCreditHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	v := &credit.ValidationError{}

	filter := credit.HistoryFilter{Type: credit.TransactionType(q.Get("transactionType"))}
	if s := q.Get("startDate"); s != "" {
		t, err := parseDateParam(s, false)
		if err != nil {
			v.Add("startDate", "startDate must be a date (YYYY-MM-DD) or RFC 3339 time")
		} else {
			filter.StartDate = &t
		}
	}
	if s := q.Get("endDate"); s != "" {
		t, err := parseDateParam(s, true)
		if err != nil {
			v.Add("endDate", "endDate must be a date (YYYY-MM-DD) or RFC 3339 time")
		} else {
			filter.EndDate = &t
		}
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			v.Add("limit", "limit must be a positive integer")
		} else {
			filter.Limit = n
		}
	}
	if h.invalid(w, r, v) {
		return
	}

	customer, entries, err := h.Ledger.CustomerHistory(ctx, storeFrom(ctx), credit.CustomerID(chi.URLParam(r, "id")), filter)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	txs := make([]TransactionDTO, 0, len(entries))
	for _, e := range entries {
		txs = append(txs, transactionDTO(e.Transaction, e.ProcessedByName))
	}
	writeJSON(w, http.StatusOK, CreditHistoryDTO{
		Customer:     customerDTO(customer),
		Transactions: txs,
		Count:        len(txs),
	})
}

// parseDateParam accepts RFC 3339 or a bare date. A bare date used as an
// upper bound is extended to the last instant of that day.
func parseDateParam(s string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

// =============================================================================
// CREDIT WRITES
// =============================================================================

// RecordPayment records a customer paying down their balance.
// POST /api/store-manager/customers/{id}/credit-payment
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req RecordPaymentRequest
	v, ok := h.decode(w, r, &req)
	if !ok {
		return
	}
	requirePositive(v, req.Amount)
	if h.invalid(w, r, v) {
		return
	}

	customer, ok := h.loadCustomer(w, r)
	if !ok {
		return
	}
	if req.Amount.GreaterThan(customer.CreditBalance) {
		h.invalid(w, r, credit.NewValidationError("amount", "payment amount cannot exceed outstanding balance"))
		return
	}

	h.record(w, r, "Payment recorded", credit.TransactionInput{
		StoreID:       customer.StoreID,
		CustomerID:    customer.ID,
		Type:          credit.TxPayment,
		Amount:        req.Amount,
		BalanceChange: req.Amount.Neg(),
		Reference:     credit.Reference{Type: credit.RefPayment, ID: req.TransactionID},
		Details: credit.PaymentDetails{
			Method:         credit.PaymentMethod(req.PaymentMethod),
			TransactionRef: req.TransactionID,
		},
		Notes:       req.Notes,
		ProcessedBy: staffFrom(r.Context()),
	})
}

// MakeAdjustment adds to or deducts from the balance with a reason.
// POST /api/store-manager/customers/{id}/credit-adjustment
func (h *Handler) MakeAdjustment(w http.ResponseWriter, r *http.Request) {
	var req AdjustmentRequest
	v, ok := h.decode(w, r, &req)
	if !ok {
		return
	}
	requirePositive(v, req.Amount)
	if h.invalid(w, r, v) {
		return
	}

	customer, ok := h.loadCustomer(w, r)
	if !ok {
		return
	}

	direction := credit.AdjustmentDirection(req.AdjustmentType)
	change := req.Amount
	if direction == credit.AdjustDeduct {
		if customer.CreditBalance.Sub(req.Amount).IsNegative() {
			h.invalid(w, r, credit.NewValidationError("amount", "deduction cannot exceed outstanding balance"))
			return
		}
		change = req.Amount.Neg()
	}

	h.record(w, r, "Adjustment recorded", credit.TransactionInput{
		StoreID:       customer.StoreID,
		CustomerID:    customer.ID,
		Type:          credit.TxAdjustment,
		Amount:        req.Amount,
		BalanceChange: change,
		Reference:     credit.Reference{Type: credit.RefAdjustment},
		Details:       credit.AdjustmentDetails{Direction: direction, Reason: req.Reason},
		Notes:         req.Notes,
		ProcessedBy:   staffFrom(r.Context()),
	})
}

// RecordSale puts a sale on the customer's credit account.
// POST /api/store-manager/customers/{id}/credit-sale
func (h *Handler) RecordSale(w http.ResponseWriter, r *http.Request) {
	var req SaleRequest
	v, ok := h.decode(w, r, &req)
	if !ok {
		return
	}
	requirePositive(v, req.Amount)
	if h.invalid(w, r, v) {
		return
	}

	customer, ok := h.loadCustomer(w, r)
	if !ok {
		return
	}
	if req.Amount.GreaterThan(customer.AvailableCredit()) {
		h.invalid(w, r, credit.NewValidationError("amount", "sale exceeds available credit"))
		return
	}

	h.record(w, r, "Credit sale recorded", credit.TransactionInput{
		StoreID:       customer.StoreID,
		CustomerID:    customer.ID,
		Type:          credit.TxSale,
		Amount:        req.Amount,
		BalanceChange: req.Amount,
		Reference:     credit.Reference{Type: credit.RefSale, ID: req.SaleID, Number: req.InvoiceNumber},
		Description:   req.Description,
		Notes:         req.Notes,
		ProcessedBy:   staffFrom(r.Context()),
	})
}

// RecordRefund credits a returned purchase back against the balance.
// POST /api/store-manager/customers/{id}/credit-refund
func (h *Handler) RecordRefund(w http.ResponseWriter, r *http.Request) {
	var req RefundRequest
	v, ok := h.decode(w, r, &req)
	if !ok {
		return
	}
	requirePositive(v, req.Amount)
	if h.invalid(w, r, v) {
		return
	}

	customer, ok := h.loadCustomer(w, r)
	if !ok {
		return
	}
	if req.Amount.GreaterThan(customer.CreditBalance) {
		h.invalid(w, r, credit.NewValidationError("amount", "refund cannot exceed outstanding balance"))
		return
	}

	ref := credit.Reference{Type: credit.RefRefund}
	if req.ReturnID != "" || req.ReturnNumber != "" {
		ref = credit.Reference{Type: credit.RefReturn, ID: req.ReturnID, Number: req.ReturnNumber}
	}

	h.record(w, r, "Refund recorded", credit.TransactionInput{
		StoreID:       customer.StoreID,
		CustomerID:    customer.ID,
		Type:          credit.TxRefund,
		Amount:        req.Amount,
		BalanceChange: req.Amount.Neg(),
		Reference:     ref,
		Notes:         req.Notes,
		ProcessedBy:   staffFrom(r.Context()),
	})
}

// WriteOff forgives part or all of the outstanding balance.
// POST /api/store-manager/customers/{id}/credit-writeoff
func (h *Handler) WriteOff(w http.ResponseWriter, r *http.Request) {
	var req WriteOffRequest
	v, ok := h.decode(w, r, &req)
	if !ok {
		return
	}
	requirePositive(v, req.Amount)
	if h.invalid(w, r, v) {
		return
	}

	customer, ok := h.loadCustomer(w, r)
	if !ok {
		return
	}
	if req.Amount.GreaterThan(customer.CreditBalance) {
		h.invalid(w, r, credit.NewValidationError("amount", "write-off cannot exceed outstanding balance"))
		return
	}

	h.record(w, r, "Write-off recorded", credit.TransactionInput{
		StoreID:       customer.StoreID,
		CustomerID:    customer.ID,
		Type:          credit.TxWriteOff,
		Amount:        req.Amount,
		BalanceChange: req.Amount.Neg(),
		Details:       credit.WriteOffDetails{Reason: req.Reason},
		Notes:         req.Notes,
		ProcessedBy:   staffFrom(r.Context()),
	})
}

// UpdateCreditLimit changes the customer's limit and recomputes status.
// PUT /api/store-manager/customers/{id}/credit-limit
func (h *Handler) UpdateCreditLimit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreditLimitRequest
	v, ok := h.decode(w, r, &req)
	if !ok {
		return
	}
	if req.CreditLimit != nil && req.CreditLimit.IsNegative() {
		v.Add("creditLimit", "creditLimit cannot be negative")
	}
	if h.invalid(w, r, v) {
		return
	}

	customer, err := h.Ledger.SetCreditLimit(ctx, storeFrom(ctx), credit.CustomerID(chi.URLParam(r, "id")), *req.CreditLimit)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	h.logger.InfoContext(ctx, "credit limit changed",
		"customer_id", customer.ID,
		"staff_id", staffFrom(ctx),
		"credit_limit", customer.CreditLimit.String(),
		"notes", req.Notes)
	writeJSONMessage(w, http.StatusOK, "Credit limit updated", customerDTO(customer))
}

// record runs a ledger write and answers with the entry and the customer.
func (h *Handler) record(w http.ResponseWriter, r *http.Request, message string, in credit.TransactionInput) {
	ctx := r.Context()

	tx, err := h.Ledger.CreateTransaction(ctx, in)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	customer, err := h.Ledger.Store().FindCustomer(ctx, in.StoreID, in.CustomerID)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	writeJSONMessage(w, http.StatusCreated, message, TransactionResultDTO{
		Transaction: transactionDTO(tx, ""),
		Customer:    customerDTO(customer),
	})
}

// =============================================================================
// STORE-WIDE ENDPOINTS
// =============================================================================

// GetCreditSummary returns the store's credit position.
// GET /api/store-manager/credit/summary?period=30
func (h *Handler) GetCreditSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	period := credit.DefaultSummaryPeriodDays
	if s := r.URL.Query().Get("period"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			h.invalid(w, r, credit.NewValidationError("period", "period must be a positive number of days"))
			return
		}
		period = n
	}

	summary, err := h.Ledger.Summary(ctx, storeFrom(ctx), period)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summaryDTO(summary))
}

// GetCreditAudit compares every balance with its ledger.
// GET /api/store-manager/credit/audit
func (h *Handler) GetCreditAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	report, err := h.Ledger.Audit(ctx, storeFrom(ctx))
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	dto := auditDTO(report)
	if h.Scheduler != nil {
		dto.Schedule = scheduleDTO(h.Scheduler.Schedule())
	}
	writeJSON(w, http.StatusOK, dto)
}

// CreateStaff registers a staff member so history can show names.
// POST /api/store-manager/staff
func (h *Handler) CreateStaff(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateStaffRequest
	v, ok := h.decode(w, r, &req)
	if !ok || h.invalid(w, r, v) {
		return
	}

	staff, err := h.Ledger.RegisterStaff(ctx, credit.Staff{
		ID:      credit.StaffID(req.ID),
		StoreID: storeFrom(ctx),
		Name:    req.Name,
		Email:   req.Email,
		Role:    req.Role,
	})
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSONMessage(w, http.StatusCreated, "Staff registered", StaffDTO{
		ID:    string(staff.ID),
		Name:  staff.Name,
		Email: staff.Email,
		Role:  staff.Role,
	})
}

// =============================================================================
// REQUEST HELPERS
// =============================================================================

// loadCustomer resolves {id} within the caller's store, writing 404 if absent.
func (h *Handler) loadCustomer(w http.ResponseWriter, r *http.Request) (credit.Customer, bool) {
	ctx := r.Context()
	customer, err := h.Ledger.Store().FindCustomer(ctx, storeFrom(ctx), credit.CustomerID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeLedgerError(w, r, err)
		return credit.Customer{}, false
	}
	return customer, true
}

// decode parses the JSON body and runs tag validation. Tag failures are
// returned for the caller to extend; malformed JSON is answered directly.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) (*credit.ValidationError, bool) {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeValidation(w, credit.NewValidationError("body", "Invalid request body"))
		return nil, false
	}

	v := &credit.ValidationError{}
	var verrs validator.ValidationErrors
	if err := h.validate.Struct(dst); errors.As(err, &verrs) {
		for _, fe := range verrs {
			v.Add(fe.Field(), fieldMessage(fe))
		}
	}
	return v, true
}

// invalid writes a 400 when v carries field problems.
func (h *Handler) invalid(w http.ResponseWriter, r *http.Request, v *credit.ValidationError) bool {
	if err := v.OrNil(); err != nil {
		h.writeLedgerError(w, r, err)
		return true
	}
	return false
}

func requirePositive(v *credit.ValidationError, amount decimal.Decimal) {
	if !amount.IsPositive() {
		v.Add("amount", "amount must be greater than 0")
	}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "email":
		return fe.Field() + " must be a valid email address"
	}
	return fe.Field() + " is invalid"
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

// writeLedgerError maps ledger errors to status codes.
func (h *Handler) writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *credit.ValidationError
	switch {
	case errors.As(err, &verr):
		writeValidation(w, verr)
	case errors.Is(err, credit.ErrNegativeBalance):
		writeError(w, http.StatusBadRequest, credit.ErrNegativeBalance.Error())
	case errors.Is(err, credit.ErrCustomerNotFound):
		writeError(w, http.StatusNotFound, "Customer not found")
	case errors.Is(err, credit.ErrConcurrentModification):
		writeError(w, http.StatusConflict, "Customer was modified concurrently, please retry")
	case errors.Is(err, credit.ErrDuplicateID):
		writeError(w, http.StatusConflict, "Resource already exists")
	default:
		h.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	writeEnvelope(w, status, Envelope{Success: true, Data: data})
}

func writeJSONMessage(w http.ResponseWriter, status int, message string, data any) {
	writeEnvelope(w, status, Envelope{Success: true, Message: message, Data: data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeEnvelope(w, status, Envelope{Success: false, Message: message})
}

func writeValidation(w http.ResponseWriter, verr *credit.ValidationError) {
	writeEnvelope(w, http.StatusBadRequest, Envelope{
		Success: false,
		Message: "Validation failed",
		Errors:  verr.Fields,
	})
}

func writeEnvelope(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(env)
}
