package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pharmly/credit-ledger/credit"
	"github.com/pharmly/credit-ledger/credit/store"
	"github.com/pharmly/credit-ledger/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedStore registers one customer in storeID with an opening balance.
func seedStore(t *testing.T, ledger *credit.Ledger, storeID credit.StoreID, balance string) credit.Customer {
	t.Helper()
	ctx := context.Background()

	c, err := ledger.RegisterCustomer(ctx, credit.CustomerInput{StoreID: storeID, Name: "Vikram Joshi", CreditLimit: d("5000")})
	require.NoError(t, err)
	_, err = ledger.CreateTransaction(ctx, credit.TransactionInput{
		StoreID:       storeID,
		CustomerID:    c.ID,
		Type:          credit.TxSale,
		Amount:        d(balance),
		BalanceChange: d(balance),
		ProcessedBy:   testStaff,
	})
	require.NoError(t, err)

	c, err = ledger.Store().FindCustomer(ctx, storeID, c.ID)
	require.NoError(t, err)
	return c
}

func TestAuditScheduler_RunNowAuditsEveryStore(t *testing.T) {
	// GIVEN: Three stores, one with a balance changed outside the ledger
	// WHEN: Running the audit with no store filter
	// THEN: Every store is audited and only the tampered one drifts

	ctx := context.Background()
	metrics := observability.NewMetrics(nil)
	ledger := credit.NewLedger(store.NewTxMemory(),
		credit.WithClock(stepClock(march15())),
		credit.WithObserver(metrics))

	seedStore(t, ledger, "store-a", "100")
	seedStore(t, ledger, "store-c", "300")
	bad := seedStore(t, ledger, "store-b", "200")
	require.NoError(t, ledger.Store().UpdateBalance(ctx, credit.BalanceUpdate{
		StoreID: "store-b", CustomerID: bad.ID, ExpectedVersion: bad.Version,
		Balance: d("150"), Status: bad.CreditStatus, At: march15(),
	}))

	runs := NewAuditScheduler(ledger, nil).RunNow(ctx)

	require.Len(t, runs, 3)
	assert.Equal(t, []credit.StoreID{"store-a", "store-b", "store-c"},
		[]credit.StoreID{runs[0].StoreID, runs[1].StoreID, runs[2].StoreID})
	for _, run := range runs {
		require.NoError(t, run.Err)
		assert.Equal(t, run.StoreID != "store-b", run.Report.Consistent(), run.StoreID)
	}
	assert.True(t, runs[1].Report.Discrepancies[0].Difference.Equal(d("-50")))

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, `credit_ledger_audit_discrepancies{store="store-b"} 1`)
	assert.Contains(t, body, `credit_ledger_audit_discrepancies{store="store-a"} 0`)
}

func TestAuditScheduler_ConfiguredStoresOnly(t *testing.T) {
	ledger := credit.NewLedger(store.NewTxMemory(), credit.WithClock(stepClock(march15())))
	seedStore(t, ledger, "store-a", "100")
	seedStore(t, ledger, "store-b", "100")

	s := NewAuditScheduler(ledger, nil)
	s.Stores = []credit.StoreID{"store-b"}
	runs := s.RunNow(context.Background())

	require.Len(t, runs, 1)
	assert.Equal(t, credit.StoreID("store-b"), runs[0].StoreID)
	assert.Equal(t, 1, runs[0].Report.CustomersChecked)
}

func TestAuditScheduler_StartStop(t *testing.T) {
	// GIVEN: A scheduler with a short interval
	// WHEN: Started and stopped
	// THEN: The immediate run happens and Stop returns; repeated Stop is a no-op

	metrics := observability.NewMetrics(nil)
	ledger := credit.NewLedger(store.NewTxMemory(),
		credit.WithClock(stepClock(march15())),
		credit.WithObserver(metrics))
	seedStore(t, ledger, "store-a", "100")

	s := NewAuditScheduler(ledger, nil)
	s.Interval = 10 * time.Millisecond
	s.Start()
	s.Start()

	assert.Eventually(t, func() bool {
		rec := httptest.NewRecorder()
		metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		return strings.Contains(rec.Body.String(), `credit_ledger_audits_total{store="store-a"}`)
	}, time.Second, 5*time.Millisecond)

	s.Stop()
	s.Stop()
}

func TestAuditScheduler_DisabledDoesNotStart(t *testing.T) {
	ledger := credit.NewLedger(store.NewTxMemory())

	s := NewAuditScheduler(ledger, nil)
	s.Enabled = false
	s.Start()
	s.Stop()
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	metrics := observability.NewMetrics(nil)
	ledger := credit.NewLedger(store.NewTxMemory(), credit.WithObserver(metrics))
	router := NewRouter(NewHandler(ledger, nil), RouterOptions{Metrics: metrics.Handler()})

	c := seedStore(t, ledger, testStore, "40")

	req := httptest.NewRequest(http.MethodPost, customerPath(string(c.ID), "/credit-payment"),
		strings.NewReader(`{"amount": 15, "paymentMethod": "cash"}`))
	req.Header.Set(HeaderStoreID, testStore)
	req.Header.Set(HeaderStaffID, testStaff)
	router.ServeHTTP(httptest.NewRecorder(), req)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `credit_ledger_transactions_total{type="credit_sale"} 1`)
	assert.Contains(t, body, `credit_ledger_transactions_total{type="credit_payment"} 1`)
}

func TestAuditScheduler_ScheduleTracksRuns(t *testing.T) {
	// GIVEN: A scheduler with an hourly interval
	// WHEN: Started, after its immediate run, and after Stop
	// THEN: NextRun is one interval after start, LastRun is recorded, and Stop clears NextRun

	ledger := credit.NewLedger(store.NewTxMemory(), credit.WithClock(stepClock(march15())))
	seedStore(t, ledger, "store-a", "100")

	s := NewAuditScheduler(ledger, nil)
	assert.Equal(t, AuditSchedule{Interval: time.Hour}, s.Schedule())

	before := time.Now()
	s.Start()
	after := time.Now()

	require.Eventually(t, func() bool { return !s.Schedule().LastRun.IsZero() }, time.Second, 5*time.Millisecond)
	got := s.Schedule()
	assert.True(t, got.Running)
	assert.False(t, got.NextRun.Before(before.Add(time.Hour)))
	assert.False(t, got.NextRun.After(after.Add(time.Hour)))
	assert.False(t, got.LastRun.Before(before))

	s.Stop()
	stopped := s.Schedule()
	assert.False(t, stopped.Running)
	assert.True(t, stopped.NextRun.IsZero())
	assert.Equal(t, got.LastRun, stopped.LastRun)
}

func TestGetCreditAudit_IncludesSchedule(t *testing.T) {
	s := newTestServer(t)
	s.createCustomer("100", "1000")

	code, env := s.do(http.MethodGet, "/api/store-manager/credit/audit", nil)
	require.Equal(t, http.StatusOK, code)
	assert.NotContains(t, string(env.Data), `"schedule"`)

	scheduler := NewAuditScheduler(s.ledger, nil)
	scheduler.Start()
	defer scheduler.Stop()
	require.Eventually(t, func() bool { return !scheduler.Schedule().LastRun.IsZero() }, time.Second, 5*time.Millisecond)
	s.handler.Scheduler = scheduler

	_, env = s.do(http.MethodGet, "/api/store-manager/credit/audit", nil)
	var report struct {
		Schedule AuditScheduleDTO `json:"schedule"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &report))
	assert.True(t, report.Schedule.Running)
	assert.Equal(t, int64(3600), report.Schedule.IntervalSeconds)
	assert.NotEmpty(t, report.Schedule.LastRunAt)
	assert.NotEmpty(t, report.Schedule.NextRunAt)
}
