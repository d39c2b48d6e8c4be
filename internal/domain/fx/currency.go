package fx

import "github.com/shopspring/decimal"

// Currency represents a currency code (ISO 4217 style; ZWG per RBZ 2024 redenomination)
type Currency string

const (
	USD Currency = "USD" // US Dollar
	ZWG Currency = "ZWG" // Zimbabwe Gold
)

// DefaultCurrency is the quote currency for all cached rates
const DefaultCurrency = ZWG

// IsValid reports whether the currency is one the register can transact in.
func (c Currency) IsValid() bool {
	return c == USD || c == ZWG
}

// CentTolerance is the epsilon used for all money comparisons. Monetary
// equality is never tested exactly; two amounts within one cent are equal.
var CentTolerance = decimal.NewFromFloat(0.01)

// WithinCent reports whether two amounts differ by at most one cent.
func WithinCent(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(CentTolerance)
}

// USDToZWG converts a USD amount using the given ZWG-per-USD rate.
// No rounding is applied; callers round at display time only.
func USDToZWG(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate)
}

// ZWGToUSD converts a ZWG amount using the given ZWG-per-USD rate.
func ZWGToUSD(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Div(rate)
}
