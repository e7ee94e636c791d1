/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the caller's store with
	realistic credit accounts for demos and manual testing. Every entry goes
	through the ledger, so balances and history stay consistent.

AVAILABLE SCENARIOS:

	regular-customers: Healthy accounts with sales and timely payments
	overdue-accounts:  Customers near and over their limits
	payment-plan:      Large balance paid down in instalments, then settled

HOW SCENARIOS WORK:
 1. Register the calling staff member (ignored if already known)
 2. Register each customer with a credit limit
 3. Replay their entries oldest first, dated relative to today

USAGE VIA API:

	POST /api/store-manager/scenarios/load
	{"scenario_id": "overdue-accounts"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Add its customers to 'scenarioData'

NOTE:

	Scenarios add customers to the store; they never delete existing data.
	Loading the same scenario twice creates a second set of customers.

SEE ALSO:
  - handlers.go: Request handling conventions
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/pharmly/credit-ledger/credit"
	"github.com/shopspring/decimal"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "regular-customers",
		Name:        "Regular Customers",
		Description: "Healthy accounts with credit sales and timely payments",
	},
	{
		ID:          "overdue-accounts",
		Name:        "Overdue Accounts",
		Description: "Customers near and over their credit limits",
	},
	{
		ID:          "payment-plan",
		Name:        "Payment Plan",
		Description: "Large balance paid in instalments, with a refund and a write-off",
	},
}

type scenarioEntry struct {
	daysAgo int
	kind    credit.TransactionType
	amount  string
	method  credit.PaymentMethod // payments
	deduct  bool                 // adjustments
	reason  string               // adjustments, write-offs
	invoice string               // sales
	notes   string
}

type scenarioCustomer struct {
	name    string
	phone   string
	limit   string
	entries []scenarioEntry // oldest first
}

var scenarioData = map[string][]scenarioCustomer{
	"regular-customers": {
		{
			name: "Meera Iyer", phone: "+91 98450 11223", limit: "5000",
			entries: []scenarioEntry{
				{daysAgo: 40, kind: credit.TxSale, amount: "1250.00", invoice: "INV-1001"},
				{daysAgo: 31, kind: credit.TxPayment, amount: "1250.00", method: credit.PaymentUPI},
				{daysAgo: 12, kind: credit.TxSale, amount: "860.50", invoice: "INV-1187"},
				{daysAgo: 3, kind: credit.TxPayment, amount: "500.00", method: credit.PaymentCash},
			},
		},
		{
			name: "Rahul Menon", phone: "+91 99000 44556", limit: "3000",
			entries: []scenarioEntry{
				{daysAgo: 20, kind: credit.TxSale, amount: "420.00", invoice: "INV-1120"},
				{daysAgo: 18, kind: credit.TxRefund, amount: "80.00", notes: "Returned unopened strip"},
				{daysAgo: 5, kind: credit.TxSale, amount: "315.75", invoice: "INV-1201"},
			},
		},
		{
			name: "Fatima Shaikh", phone: "+91 98200 77881", limit: "10000",
			entries: []scenarioEntry{
				{daysAgo: 60, kind: credit.TxSale, amount: "2400.00", invoice: "INV-0950"},
				{daysAgo: 45, kind: credit.TxPayment, amount: "2400.00", method: credit.PaymentBankTransfer},
			},
		},
	},
	"overdue-accounts": {
		{
			name: "Suresh Pillai", phone: "+91 97400 12121", limit: "2000",
			entries: []scenarioEntry{
				{daysAgo: 90, kind: credit.TxSale, amount: "1100.00", invoice: "INV-0801"},
				{daysAgo: 50, kind: credit.TxSale, amount: "650.00", invoice: "INV-0912"},
			},
		},
		{
			name: "Lakshmi Nair", phone: "+91 96330 45454", limit: "1500",
			entries: []scenarioEntry{
				{daysAgo: 75, kind: credit.TxSale, amount: "1400.00", invoice: "INV-0855"},
				{daysAgo: 30, kind: credit.TxAdjustment, amount: "250.00", reason: "Missed invoice from March"},
			},
		},
		{
			name: "Joseph D'Souza", phone: "+91 98860 32323", limit: "1000",
			entries: []scenarioEntry{
				{daysAgo: 120, kind: credit.TxSale, amount: "980.00", invoice: "INV-0700"},
				{daysAgo: 10, kind: credit.TxPayment, amount: "100.00", method: credit.PaymentCash, notes: "Promised balance next month"},
			},
		},
	},
	"payment-plan": {
		{
			name: "Anil Kulkarni", phone: "+91 90080 67676", limit: "15000",
			entries: []scenarioEntry{
				{daysAgo: 150, kind: credit.TxSale, amount: "12000.00", invoice: "INV-0601", notes: "Post-surgery medication"},
				{daysAgo: 120, kind: credit.TxPayment, amount: "3000.00", method: credit.PaymentCheque},
				{daysAgo: 90, kind: credit.TxPayment, amount: "3000.00", method: credit.PaymentCheque},
				{daysAgo: 75, kind: credit.TxRefund, amount: "600.00", notes: "Unused dressings returned"},
				{daysAgo: 60, kind: credit.TxPayment, amount: "3000.00", method: credit.PaymentBankTransfer},
				{daysAgo: 30, kind: credit.TxAdjustment, amount: "150.00", deduct: true, reason: "Loyalty discount applied"},
				{daysAgo: 15, kind: credit.TxPayment, amount: "2000.00", method: credit.PaymentBankTransfer},
				{daysAgo: 2, kind: credit.TxWriteOff, amount: "250.00", reason: "Balance forgiven on plan completion"},
			},
		},
	},
}

// =============================================================================
// SCENARIO HANDLERS
// =============================================================================

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the most recently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario loads a predefined scenario into the caller's store.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req LoadScenarioRequest
	v, ok := h.decode(w, r, &req)
	if !ok || h.invalid(w, r, v) {
		return
	}
	customers, found := scenarioData[req.ScenarioID]
	if !found {
		h.invalid(w, r, credit.NewValidationError("scenario_id", "Unknown scenario"))
		return
	}

	created, err := h.loadScenario(ctx, storeFrom(ctx), staffFrom(ctx), customers, time.Now().UTC())
	if err != nil {
		h.writeLedgerError(w, r, fmt.Errorf("loading scenario %s: %w", req.ScenarioID, err))
		return
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()

	h.logger.InfoContext(ctx, "scenario loaded",
		"scenario", req.ScenarioID, "store_id", storeFrom(ctx), "customers", len(created))
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "loaded",
		"scenario":  req.ScenarioID,
		"customers": created,
	})
}

// =============================================================================
// SCENARIO LOADER
// =============================================================================

func (h *Handler) loadScenario(ctx context.Context, storeID credit.StoreID, staffID credit.StaffID, customers []scenarioCustomer, now time.Time) ([]CustomerDTO, error) {
	_, err := h.Ledger.RegisterStaff(ctx, credit.Staff{
		ID:      staffID,
		StoreID: storeID,
		Name:    "Demo Pharmacist",
		Role:    "pharmacist",
	})
	if err != nil && !errors.Is(err, credit.ErrDuplicateID) {
		return nil, err
	}

	created := make([]CustomerDTO, 0, len(customers))
	for _, sc := range customers {
		customer, err := h.Ledger.RegisterCustomer(ctx, credit.CustomerInput{
			StoreID:     storeID,
			Name:        sc.name,
			Phone:       sc.phone,
			CreditLimit: decimal.RequireFromString(sc.limit),
		})
		if err != nil {
			return nil, err
		}

		for _, e := range sc.entries {
			in := e.input(customer, staffID, now)
			if _, err := h.Ledger.CreateTransaction(ctx, in); err != nil {
				return nil, fmt.Errorf("%s %s for %s: %w", e.kind, e.amount, sc.name, err)
			}
		}

		if customer, err = h.Ledger.Store().FindCustomer(ctx, storeID, customer.ID); err != nil {
			return nil, err
		}
		created = append(created, customerDTO(customer))
	}
	return created, nil
}

func (e scenarioEntry) input(c credit.Customer, staffID credit.StaffID, now time.Time) credit.TransactionInput {
	amount := decimal.RequireFromString(e.amount)
	in := credit.TransactionInput{
		StoreID:         c.StoreID,
		CustomerID:      c.ID,
		Type:            e.kind,
		Amount:          amount,
		Notes:           e.notes,
		ProcessedBy:     staffID,
		TransactionDate: now.AddDate(0, 0, -e.daysAgo),
	}

	switch e.kind {
	case credit.TxSale:
		in.BalanceChange = amount
		in.Reference = credit.Reference{Type: credit.RefSale, Number: e.invoice}
	case credit.TxPayment:
		in.BalanceChange = amount.Neg()
		in.Reference = credit.Reference{Type: credit.RefPayment}
		in.Details = credit.PaymentDetails{Method: e.method}
	case credit.TxRefund:
		in.BalanceChange = amount.Neg()
		in.Reference = credit.Reference{Type: credit.RefRefund}
	case credit.TxWriteOff:
		in.BalanceChange = amount.Neg()
		in.Details = credit.WriteOffDetails{Reason: e.reason}
	case credit.TxAdjustment:
		direction := credit.AdjustAdd
		in.BalanceChange = amount
		if e.deduct {
			direction = credit.AdjustDeduct
			in.BalanceChange = amount.Neg()
		}
		in.Reference = credit.Reference{Type: credit.RefAdjustment}
		in.Details = credit.AdjustmentDetails{Direction: direction, Reason: e.reason}
	}
	return in
}
