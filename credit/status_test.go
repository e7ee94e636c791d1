package credit_test

import (
	"testing"

	"github.com/pharmly/credit-ledger/credit"
	"github.com/stretchr/testify/assert"
)

func TestRecomputeStatus(t *testing.T) {
	tests := []struct {
		name    string
		balance string
		limit   string
		want    credit.CreditStatus
	}{
		{"zero balance", "0", "1000", credit.CreditGood},
		{"below threshold", "799.99", "1000", credit.CreditGood},
		{"at threshold", "800", "1000", credit.CreditNearLimit},
		{"at limit", "1000", "1000", credit.CreditNearLimit},
		{"over limit", "1000.01", "1000", credit.CreditOverLimit},
		{"no limit no balance", "0", "0", credit.CreditGood},
		{"no limit with balance", "5", "0", credit.CreditOverLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, credit.RecomputeStatus(d(tt.balance), d(tt.limit)))
		})
	}
}

func TestCustomer_AvailableCreditAndUtilization(t *testing.T) {
	c := credit.Customer{CreditBalance: d("333"), CreditLimit: d("1000")}
	assert.True(t, c.AvailableCredit().Equal(d("667")))
	assert.Equal(t, int64(33), c.CreditUtilization())

	c = credit.Customer{CreditBalance: d("1200"), CreditLimit: d("1000")}
	assert.True(t, c.AvailableCredit().IsZero())
	assert.Equal(t, int64(120), c.CreditUtilization())

	c = credit.Customer{CreditBalance: d("1"), CreditLimit: d("0")}
	assert.Equal(t, int64(0), c.CreditUtilization())

	c = credit.Customer{CreditBalance: d("2"), CreditLimit: d("3")}
	assert.Equal(t, int64(67), c.CreditUtilization())
}
