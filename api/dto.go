/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Field names are
  camelCase to match the store-manager frontend.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Amounts are decimal.Decimal internally. Requests accept a JSON number or
  string; responses emit Money, which is always a JSON number.

VALIDATION:
  Shape rules (required, enum membership) live in `validate` struct tags and
  run through go-playground/validator. Rules that need the customer record
  (amount vs balance) run in the handlers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/pharmly/credit-ledger/credit"
	"github.com/shopspring/decimal"
)

// Money marshals a decimal as a JSON number.
type Money decimal.Decimal

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(decimal.Decimal(m).String()), nil
}

// =============================================================================
// ENVELOPE
// =============================================================================

// Envelope wraps every response.
type Envelope struct {
	Success bool                `json:"success"`
	Message string              `json:"message,omitempty"`
	Data    any                 `json:"data,omitempty"`
	Errors  []credit.FieldError `json:"errors,omitempty"`
}

// =============================================================================
// CUSTOMERS
// =============================================================================

// CustomerDTO represents a customer with derived credit figures.
type CustomerDTO struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Phone             string `json:"phone,omitempty"`
	Email             string `json:"email,omitempty"`
	CreditBalance     Money  `json:"creditBalance"`
	CreditLimit       Money  `json:"creditLimit"`
	AvailableCredit   Money  `json:"availableCredit"`
	CreditUtilization int64  `json:"creditUtilization"`
	CreditStatus      string `json:"creditStatus"`
	UpdatedAt         string `json:"updatedAt"`
}

func customerDTO(c credit.Customer) CustomerDTO {
	return CustomerDTO{
		ID:                string(c.ID),
		Name:              c.Name,
		Phone:             c.Phone,
		Email:             c.Email,
		CreditBalance:     Money(c.CreditBalance),
		CreditLimit:       Money(c.CreditLimit),
		AvailableCredit:   Money(c.AvailableCredit()),
		CreditUtilization: c.CreditUtilization(),
		CreditStatus:      string(c.CreditStatus),
		UpdatedAt:         c.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// CreateCustomerRequest registers a customer. A positive OpeningBalance is
// booked as an add adjustment.
type CreateCustomerRequest struct {
	Name           string          `json:"name" validate:"required,max=200"`
	Phone          string          `json:"phone" validate:"max=32"`
	Email          string          `json:"email" validate:"omitempty,email"`
	CreditLimit    decimal.Decimal `json:"creditLimit"`
	OpeningBalance decimal.Decimal `json:"openingBalance"`
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

type ReferenceDTO struct {
	Type   string `json:"type"`
	ID     string `json:"id,omitempty"`
	Number string `json:"number,omitempty"`
}

type PaymentDetailsDTO struct {
	PaymentMethod string `json:"paymentMethod"`
	TransactionID string `json:"transactionId,omitempty"`
}

type AdjustmentDetailsDTO struct {
	AdjustmentType string `json:"adjustmentType"`
	Reason         string `json:"reason"`
}

type WriteOffDetailsDTO struct {
	Reason string `json:"reason"`
}

type StaffRefDTO struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// TransactionDTO represents a ledger entry in API responses.
type TransactionDTO struct {
	ID                string                `json:"id"`
	CustomerID        string                `json:"customerId"`
	TransactionType   string                `json:"transactionType"`
	Amount            Money                 `json:"amount"`
	BalanceChange     Money                 `json:"balanceChange"`
	PreviousBalance   Money                 `json:"previousBalance"`
	NewBalance        Money                 `json:"newBalance"`
	Reference         *ReferenceDTO         `json:"reference,omitempty"`
	PaymentDetails    *PaymentDetailsDTO    `json:"paymentDetails,omitempty"`
	AdjustmentDetails *AdjustmentDetailsDTO `json:"adjustmentDetails,omitempty"`
	WriteOffDetails   *WriteOffDetailsDTO   `json:"writeOffDetails,omitempty"`
	Description       string                `json:"description"`
	Notes             string                `json:"notes,omitempty"`
	ProcessedBy       StaffRefDTO           `json:"processedBy"`
	Status            string                `json:"status"`
	FiscalYear        string                `json:"fiscalYear"`
	Quarter           int                   `json:"quarter"`
	Month             string                `json:"month"`
	TransactionDate   string                `json:"transactionDate"`
	CreatedAt         string                `json:"createdAt"`
}

func transactionDTO(tx credit.Transaction, processedByName string) TransactionDTO {
	dto := TransactionDTO{
		ID:              string(tx.ID),
		CustomerID:      string(tx.CustomerID),
		TransactionType: string(tx.Type),
		Amount:          Money(tx.Amount),
		BalanceChange:   Money(tx.BalanceChange),
		PreviousBalance: Money(tx.PreviousBalance),
		NewBalance:      Money(tx.NewBalance),
		Description:     tx.Description,
		Notes:           tx.Notes,
		ProcessedBy:     StaffRefDTO{ID: string(tx.ProcessedBy), Name: processedByName},
		Status:          string(tx.Status),
		FiscalYear:      tx.FiscalYear,
		Quarter:         tx.Quarter,
		Month:           tx.Month,
		TransactionDate: tx.TransactionDate.UTC().Format(time.RFC3339),
		CreatedAt:       tx.CreatedAt.UTC().Format(time.RFC3339),
	}
	if tx.Reference.Type != "" {
		dto.Reference = &ReferenceDTO{
			Type:   string(tx.Reference.Type),
			ID:     tx.Reference.ID,
			Number: tx.Reference.Number,
		}
	}

	switch d := tx.Details.(type) {
	case credit.PaymentDetails:
		dto.PaymentDetails = &PaymentDetailsDTO{PaymentMethod: string(d.Method), TransactionID: d.TransactionRef}
	case credit.AdjustmentDetails:
		dto.AdjustmentDetails = &AdjustmentDetailsDTO{AdjustmentType: string(d.Direction), Reason: d.Reason}
	case credit.WriteOffDetails:
		dto.WriteOffDetails = &WriteOffDetailsDTO{Reason: d.Reason}
	}
	return dto
}

// TransactionResultDTO is returned by every write endpoint.
type TransactionResultDTO struct {
	Transaction TransactionDTO `json:"transaction"`
	Customer    CustomerDTO    `json:"customer"`
}

// CreditHistoryDTO is the credit-history response.
type CreditHistoryDTO struct {
	Customer     CustomerDTO      `json:"customer"`
	Transactions []TransactionDTO `json:"transactions"`
	Count        int              `json:"count"`
}

// RecordPaymentRequest is the body of POST credit-payment.
type RecordPaymentRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"paymentMethod" validate:"required,oneof=cash card upi bank_transfer cheque other"`
	TransactionID string          `json:"transactionId" validate:"max=100"`
	Notes         string          `json:"notes" validate:"max=500"`
}

// AdjustmentRequest is the body of POST credit-adjustment.
type AdjustmentRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	AdjustmentType string          `json:"adjustmentType" validate:"required,oneof=add deduct"`
	Reason         string          `json:"reason" validate:"required,max=200"`
	Notes          string          `json:"notes" validate:"max=500"`
}

// CreditLimitRequest is the body of PUT credit-limit.
type CreditLimitRequest struct {
	CreditLimit *decimal.Decimal `json:"creditLimit" validate:"required"`
	Notes       string           `json:"notes" validate:"max=500"`
}

// SaleRequest is the body of POST credit-sale.
type SaleRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	SaleID        string          `json:"saleId" validate:"max=100"`
	InvoiceNumber string          `json:"invoiceNumber" validate:"max=100"`
	Description   string          `json:"description" validate:"max=200"`
	Notes         string          `json:"notes" validate:"max=500"`
}

// RefundRequest is the body of POST credit-refund.
type RefundRequest struct {
	Amount       decimal.Decimal `json:"amount"`
	ReturnID     string          `json:"returnId" validate:"max=100"`
	ReturnNumber string          `json:"returnNumber" validate:"max=100"`
	Notes        string          `json:"notes" validate:"max=500"`
}

// WriteOffRequest is the body of POST credit-writeoff.
type WriteOffRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason" validate:"required,max=200"`
	Notes  string          `json:"notes" validate:"max=500"`
}

// =============================================================================
// SUMMARY & AUDIT
// =============================================================================

type TypeStatsDTO struct {
	TransactionType string `json:"transactionType"`
	Count           int    `json:"count"`
	TotalAmount     Money  `json:"totalAmount"`
}

// CreditSummaryDTO is the store-wide credit summary.
type CreditSummaryDTO struct {
	TotalOutstanding      Money            `json:"totalOutstanding"`
	TotalCreditLimit      Money            `json:"totalCreditLimit"`
	AvailableCredit       Money            `json:"availableCredit"`
	UtilizationPercentage int64            `json:"utilizationPercentage"`
	CustomersWithCredit   int              `json:"customersWithCredit"`
	Period                int              `json:"period"`
	PeriodStart           string           `json:"periodStart"`
	PeriodEnd             string           `json:"periodEnd"`
	RecentTransactions    []TransactionDTO `json:"recentTransactions"`
	ByType                []TypeStatsDTO   `json:"transactionsByType"`
}

func summaryDTO(s credit.Summary) CreditSummaryDTO {
	dto := CreditSummaryDTO{
		TotalOutstanding:      Money(s.TotalOutstanding),
		TotalCreditLimit:      Money(s.TotalCreditLimit),
		AvailableCredit:       Money(s.AvailableCredit),
		UtilizationPercentage: s.UtilizationPercentage,
		CustomersWithCredit:   s.CustomersWithCredit,
		Period:                s.PeriodDays,
		PeriodStart:           s.PeriodStart.UTC().Format(time.RFC3339),
		PeriodEnd:             s.PeriodEnd.UTC().Format(time.RFC3339),
		RecentTransactions:    make([]TransactionDTO, 0, len(s.RecentTransactions)),
		ByType:                make([]TypeStatsDTO, 0, len(s.ByType)),
	}
	for _, tx := range s.RecentTransactions {
		dto.RecentTransactions = append(dto.RecentTransactions, transactionDTO(tx, ""))
	}
	for _, st := range s.ByType {
		dto.ByType = append(dto.ByType, TypeStatsDTO{
			TransactionType: string(st.Type),
			Count:           st.Count,
			TotalAmount:     Money(st.TotalAmount),
		})
	}
	return dto
}

type DiscrepancyDTO struct {
	CustomerID    string `json:"customerId"`
	CustomerName  string `json:"customerName"`
	StoredBalance Money  `json:"storedBalance"`
	LedgerBalance Money  `json:"ledgerBalance"`
	Difference    Money  `json:"difference"`
}

// AuditReportDTO is the balance-vs-ledger audit result.
type AuditReportDTO struct {
	CheckedAt        string            `json:"checkedAt"`
	CustomersChecked int               `json:"customersChecked"`
	Consistent       bool              `json:"consistent"`
	Discrepancies    []DiscrepancyDTO  `json:"discrepancies"`
	Schedule         *AuditScheduleDTO `json:"schedule,omitempty"`
}

// AuditScheduleDTO shows when the background audit last ran and runs next.
type AuditScheduleDTO struct {
	Running         bool   `json:"running"`
	IntervalSeconds int64  `json:"intervalSeconds"`
	LastRunAt       string `json:"lastRunAt,omitempty"`
	NextRunAt       string `json:"nextRunAt,omitempty"`
}

func scheduleDTO(s AuditSchedule) *AuditScheduleDTO {
	dto := &AuditScheduleDTO{
		Running:         s.Running,
		IntervalSeconds: int64(s.Interval / time.Second),
	}
	if !s.LastRun.IsZero() {
		dto.LastRunAt = s.LastRun.UTC().Format(time.RFC3339)
	}
	if !s.NextRun.IsZero() {
		dto.NextRunAt = s.NextRun.UTC().Format(time.RFC3339)
	}
	return dto
}

func auditDTO(r credit.AuditReport) AuditReportDTO {
	dto := AuditReportDTO{
		CheckedAt:        r.CheckedAt.UTC().Format(time.RFC3339),
		CustomersChecked: r.CustomersChecked,
		Consistent:       r.Consistent(),
		Discrepancies:    make([]DiscrepancyDTO, 0, len(r.Discrepancies)),
	}
	for _, d := range r.Discrepancies {
		dto.Discrepancies = append(dto.Discrepancies, DiscrepancyDTO{
			CustomerID:    string(d.CustomerID),
			CustomerName:  d.CustomerName,
			StoredBalance: Money(d.StoredBalance),
			LedgerBalance: Money(d.LedgerBalance),
			Difference:    Money(d.Difference),
		})
	}
	return dto
}

// =============================================================================
// STAFF & SCENARIOS
// =============================================================================

// CreateStaffRequest registers a staff member for name resolution.
type CreateStaffRequest struct {
	ID    string `json:"id" validate:"max=100"`
	Name  string `json:"name" validate:"required,max=200"`
	Email string `json:"email" validate:"omitempty,email"`
	Role  string `json:"role" validate:"max=50"`
}

type StaffDTO struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the request to load a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}
