package credit

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Describer renders default transaction descriptions with locale-aware
// amount formatting ("1,000.00" in English, "1.000,00" in German).
type Describer struct {
	printer *message.Printer
	group   string
	point   string
}

// NewDescriber parses a BCP 47 tag. An invalid tag falls back to English.
func NewDescriber(locale string) *Describer {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	p := message.NewPrinter(tag)
	group, point := separators(p)
	return &Describer{printer: p, group: group, point: point}
}

// separators reads the locale's grouping and decimal marks off a formatted
// sample. Locales that do not print "1<g>234<g>567<p>8" get English marks.
func separators(p *message.Printer) (group, point string) {
	sample := p.Sprint(number.Decimal(1234567.8, number.Scale(1)))
	i := strings.Index(sample, "234")
	j := strings.Index(sample, "567")
	if !strings.HasPrefix(sample, "1") || !strings.HasSuffix(sample, "8") || i < 1 || j < i+3 || j+3 > len(sample)-1 {
		return ",", "."
	}
	return sample[1:i], sample[j+3 : len(sample)-1]
}

// FormatAmount renders an amount rounded to two decimals with grouping.
// Digits come from the decimal itself, so large amounts stay exact.
func (d *Describer) FormatAmount(amount decimal.Decimal) string {
	whole, frac, _ := strings.Cut(amount.StringFixed(2), ".")

	var b strings.Builder
	if strings.HasPrefix(whole, "-") {
		b.WriteByte('-')
		whole = whole[1:]
	}
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteString(d.group)
		}
		b.WriteRune(r)
	}
	b.WriteString(d.point)
	b.WriteString(frac)
	return b.String()
}

// Describe returns the default description for a transaction type.
func (d *Describer) Describe(t TransactionType, amount decimal.Decimal, details Details) string {
	formatted := d.FormatAmount(amount)
	switch t {
	case TxSale:
		return d.printer.Sprintf("Credit sale of %s", formatted)
	case TxPayment:
		if p, ok := details.(PaymentDetails); ok && p.Method != "" {
			return d.printer.Sprintf("Credit payment of %s via %s", formatted, string(p.Method))
		}
		return d.printer.Sprintf("Credit payment of %s", formatted)
	case TxAdjustment:
		if a, ok := details.(AdjustmentDetails); ok {
			if a.Direction == AdjustDeduct {
				return d.printer.Sprintf("Credit adjustment (deduct) of %s: %s", formatted, a.Reason)
			}
			return d.printer.Sprintf("Credit adjustment (add) of %s: %s", formatted, a.Reason)
		}
		return d.printer.Sprintf("Credit adjustment of %s", formatted)
	case TxRefund:
		return d.printer.Sprintf("Credit refund of %s", formatted)
	case TxWriteOff:
		return d.printer.Sprintf("Credit write-off of %s", formatted)
	}
	return formatted
}
