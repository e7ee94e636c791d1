package credit_test

import (
	"testing"

	"github.com/pharmly/credit-ledger/credit"
	"github.com/stretchr/testify/assert"
)

func TestDescriber_Describe(t *testing.T) {
	desc := credit.NewDescriber("en")

	tests := []struct {
		name    string
		typ     credit.TransactionType
		amount  string
		details credit.Details
		want    string
	}{
		{"sale", credit.TxSale, "1250.5", nil, "Credit sale of 1,250.50"},
		{"payment with method", credit.TxPayment, "1000", credit.PaymentDetails{Method: credit.PaymentUPI}, "Credit payment of 1,000.00 via upi"},
		{"payment without details", credit.TxPayment, "20", nil, "Credit payment of 20.00"},
		{"adjustment add", credit.TxAdjustment, "2000", credit.AdjustmentDetails{Direction: credit.AdjustAdd, Reason: "goodwill"}, "Credit adjustment (add) of 2,000.00: goodwill"},
		{"adjustment deduct", credit.TxAdjustment, "5", credit.AdjustmentDetails{Direction: credit.AdjustDeduct, Reason: "typo"}, "Credit adjustment (deduct) of 5.00: typo"},
		{"refund", credit.TxRefund, "75", nil, "Credit refund of 75.00"},
		{"write-off", credit.TxWriteOff, "10", credit.WriteOffDetails{Reason: "bad debt"}, "Credit write-off of 10.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, desc.Describe(tt.typ, d(tt.amount), tt.details))
		})
	}
}

func TestNewDescriber_InvalidLocaleFallsBackToEnglish(t *testing.T) {
	desc := credit.NewDescriber("not a locale!")
	assert.Equal(t, "1,234.57", desc.FormatAmount(d("1234.567")))
}

func TestDescriber_FormatAmount(t *testing.T) {
	en := credit.NewDescriber("en")
	de := credit.NewDescriber("de")

	tests := []struct {
		name   string
		desc   *credit.Describer
		amount string
		want   string
	}{
		{"small", en, "7", "7.00"},
		{"rounds half away from zero", en, "0.125", "0.13"},
		{"negative", en, "-200", "-200.00"},
		{"beyond float precision", en, "123456789012345678.91", "123,456,789,012,345,678.91"},
		{"german marks", de, "1234567.891", "1.234.567,89"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.desc.FormatAmount(d(tt.amount)))
		})
	}
}
