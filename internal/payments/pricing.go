// Package payments implements the payment status reconciler and the
// pricing rules shared by the lifecycle services: the lawn-size price
// table, the platform fee split, and the dispute-sensitive payout rate.
package payments

import (
	"math"
	"time"

	"yardlink/internal/types"
)

// Base prices in JMD by lawn size. Autopay-generated jobs are priced
// from this table; customer-created jobs may override via an offer.
var lawnSizePrices = map[types.LawnSize]float64{
	types.LawnSmall:  3500,
	types.LawnMedium: 5500,
	types.LawnLarge:  8000,
	types.LawnXLarge: 12000,
}

const (
	// StandardPayoutRate is the provider's share of final_price on a
	// normal completion.
	StandardPayoutRate = 0.70

	// DisputedPayoutRate is the floor applied when a provider has
	// accumulated DisputeThreshold or more disputes in the calendar
	// month of completion.
	DisputedPayoutRate = 0.60

	// DisputeThreshold is the monthly dispute count at which the
	// reduced payout rate kicks in.
	DisputeThreshold = 3

	// PlatformFeeRate is the platform's cut of base_price when a job
	// is priced at creation (autopay path).
	PlatformFeeRate = 0.30
)

// RoundJMD rounds to the nearest whole Jamaican dollar.
func RoundJMD(amount float64) float64 {
	return math.Round(amount)
}

// BasePriceFor returns the table price for a lawn size. Unknown sizes
// resolve to the medium price so a bad row never produces a free job.
func BasePriceFor(size types.LawnSize) float64 {
	if p, ok := lawnSizePrices[size]; ok {
		return p
	}
	return lawnSizePrices[types.LawnMedium]
}

// SplitAtCreation computes the fee split applied when a job is priced
// up front: platform_fee = round(base * 0.30), provider_payout is the
// remainder, so the parts always sum back to base.
func SplitAtCreation(basePrice float64) (platformFee, providerPayout float64) {
	platformFee = RoundJMD(basePrice * PlatformFeeRate)
	providerPayout = basePrice - platformFee
	return platformFee, providerPayout
}

// PayoutRateFor picks the provider's share based on their dispute
// count in the month of completion.
func PayoutRateFor(disputesThisMonth int) float64 {
	if disputesThisMonth >= DisputeThreshold {
		return DisputedPayoutRate
	}
	return StandardPayoutRate
}

// MonthWindow returns the [start, end) bounds of the calendar month
// containing t, in UTC. Dispute counts are always taken over this
// window.
func MonthWindow(t time.Time) (start, end time.Time) {
	t = t.UTC()
	start = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	end = start.AddDate(0, 1, 0)
	return start, end
}

// SplitAtCompletion computes the final split over final_price using
// the dispute-adjusted rate. provider_payout is rounded; platform_fee
// is the remainder so final_price == platform_fee + provider_payout.
func SplitAtCompletion(finalPrice float64, disputesThisMonth int) (platformFee, providerPayout float64) {
	rate := PayoutRateFor(disputesThisMonth)
	providerPayout = RoundJMD(finalPrice * rate)
	platformFee = finalPrice - providerPayout
	return platformFee, providerPayout
}
