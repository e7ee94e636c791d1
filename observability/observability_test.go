package observability

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pharmly/credit-ledger/credit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_JSONRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "warn", Format: "json", Output: &buf})

	logger.Info("hidden")
	logger.Warn("shown", "customer_id", "c1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["msg"])
	assert.Equal(t, "c1", line["customer_id"])
}

func TestNewLogger_TextIsDefault(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(LogConfig{Output: &buf}).Info("hello")
	assert.Contains(t, buf.String(), "msg=hello")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("chatty"))
}

func TestMetrics_ObserverCallbacks(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.TransactionRecorded(credit.Transaction{Type: credit.TxPayment, Amount: decimal.NewFromFloat(12.5)}, 3*time.Millisecond)
	m.TransactionRecorded(credit.Transaction{Type: credit.TxPayment, Amount: decimal.NewFromInt(10)}, time.Millisecond)
	m.TransactionRejected(credit.TxAdjustment, "negative_balance")
	m.TransactionRejected("credit_gift", "validation")
	m.AuditCompleted("store-1", credit.AuditReport{Discrepancies: make([]credit.Discrepancy, 2)})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.transactions.WithLabelValues("credit_payment")))
	assert.Equal(t, 22.5, testutil.ToFloat64(m.amounts.WithLabelValues("credit_payment")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rejections.WithLabelValues("credit_adjustment", "negative_balance")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rejections.WithLabelValues("unknown", "validation")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.discrepancies.WithLabelValues("store-1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.audits.WithLabelValues("store-1")))
}

func TestMetrics_HandlerExposesCollectors(t *testing.T) {
	m := NewMetrics(nil)
	m.TransactionRecorded(credit.Transaction{Type: credit.TxSale, Amount: decimal.NewFromInt(1)}, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `credit_ledger_transactions_total{type="credit_sale"} 1`)
}
