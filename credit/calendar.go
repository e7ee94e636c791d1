package credit

import (
	"fmt"
	"time"
)

// FiscalPeriod is the calendar bucket a transaction is reported under.
type FiscalPeriod struct {
	FiscalYear string
	Quarter    int
	Month      string
}

// FiscalPeriodOf buckets a transaction date. The fiscal year is labelled
// "<year>-<year+1>" after the date's calendar year.
func FiscalPeriodOf(t time.Time) FiscalPeriod {
	year := t.Year()
	month := int(t.Month())
	return FiscalPeriod{
		FiscalYear: fmt.Sprintf("%d-%d", year, year+1),
		Quarter:    (month + 2) / 3,
		Month:      t.Month().String(),
	}
}
