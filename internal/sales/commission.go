// Package sales implements referral attribution and the salesperson
// commission ledger.
package sales

// CommissionRatePercent is the flat commission share of gross revenue.
const CommissionRatePercent = 20

// CommissionCents computes the commission on a gross amount in cents,
// rounded half away from zero so refunds (negative gross) mirror charges.
func CommissionCents(grossCents int64) int64 {
	scaled := grossCents * CommissionRatePercent
	if scaled >= 0 {
		return (scaled + 50) / 100
	}
	return (scaled - 50) / 100
}
