package credit

import "github.com/shopspring/decimal"

type CreditStatus string

const (
	CreditGood      CreditStatus = "good"
	CreditNearLimit CreditStatus = "near-limit"
	CreditOverLimit CreditStatus = "over-limit"
)

// NearLimitThreshold is the utilization (balance/limit) at which a customer
// is flagged near-limit.
var NearLimitThreshold = decimal.NewFromFloat(0.8)

var hundred = decimal.NewFromInt(100)

// RecomputeStatus derives the credit status from balance and limit.
// It has no side effects and is the only place status is decided.
func RecomputeStatus(balance, limit decimal.Decimal) CreditStatus {
	switch {
	case balance.GreaterThan(limit):
		return CreditOverLimit
	case limit.IsPositive() && balance.GreaterThanOrEqual(limit.Mul(NearLimitThreshold)):
		return CreditNearLimit
	default:
		return CreditGood
	}
}

// AvailableCredit is how much more the customer may owe before hitting the limit.
func (c Customer) AvailableCredit() decimal.Decimal {
	return decimal.Max(decimal.Zero, c.CreditLimit.Sub(c.CreditBalance))
}

// CreditUtilization is the balance as a rounded percentage of the limit.
func (c Customer) CreditUtilization() int64 {
	return utilization(c.CreditBalance, c.CreditLimit)
}

func utilization(outstanding, limit decimal.Decimal) int64 {
	if !limit.IsPositive() {
		return 0
	}
	return outstanding.Mul(hundred).Div(limit).Round(0).IntPart()
}
