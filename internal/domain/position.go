package domain

import (
	"autotrader/pkg/quant"
	"autotrader/pkg/safe"
)

// Position represents aggregated net exposure for one instrument.
// All monetary values are strictly int64. Mutated only by fill application.
type Position struct {
	Symbol              string
	QtySats             quant.QtySats     // Positive for Long, Negative for Short.
	AvgEntryPriceMicros quant.PriceMicros // Volume-weighted average entry price.
	RealizedPnLMicros   int64
}

// IsLong checks if the position is Long.
func (p *Position) IsLong() bool {
	return p.QtySats > 0
}

// IsShort checks if the position is Short.
func (p *Position) IsShort() bool {
	return p.QtySats < 0
}

// IsFlat checks if there is no exposure.
func (p *Position) IsFlat() bool {
	return p.QtySats == 0
}

// ApplyFill folds one execution into the position. Buys add signed
// quantity, sells subtract. Fills in the direction of the position move
// the volume-weighted entry price; fills against it realize PnL at the
// current average, and a fill large enough to flip the position opens the
// remainder at the fill price.
func (p *Position) ApplyFill(side Side, qty quant.QtySats, price quant.PriceMicros) {
	signed := int64(qty)
	if side == SideSell {
		signed = -signed
	}

	oldQty := int64(p.QtySats)
	newQty := safe.SafeAdd(oldQty, signed)

	switch {
	case oldQty == 0 || sameSign(oldQty, signed):
		// Extending (or opening): weighted average entry. The qty*price
		// products exceed int64 on realistic fills, so the average is
		// computed with a wide intermediate.
		oldAbs := abs(oldQty)
		addAbs := abs(signed)
		p.AvgEntryPriceMicros = quant.PriceMicros(safe.MulAddDiv(
			oldAbs, int64(p.AvgEntryPriceMicros),
			addAbs, int64(price),
			oldAbs+addAbs,
		))

	case abs(signed) <= abs(oldQty):
		// Reducing: realize PnL on the closed quantity, entry unchanged.
		closeQty := abs(signed)
		p.RealizedPnLMicros = safe.SafeAdd(p.RealizedPnLMicros, realized(oldQty, closeQty, p.AvgEntryPriceMicros, price))
		if newQty == 0 {
			p.AvgEntryPriceMicros = 0
		}

	default:
		// Flipping: close the whole old position, open remainder at fill price.
		closeQty := abs(oldQty)
		p.RealizedPnLMicros = safe.SafeAdd(p.RealizedPnLMicros, realized(oldQty, closeQty, p.AvgEntryPriceMicros, price))
		p.AvgEntryPriceMicros = price
	}

	p.QtySats = quant.QtySats(newQty)
}

// UnrealizedPnLMicros derives open PnL against a mark price. Not stored.
func (p *Position) UnrealizedPnLMicros(mark quant.PriceMicros) int64 {
	if p.QtySats == 0 {
		return 0
	}
	diff := safe.SafeSub(int64(mark), int64(p.AvgEntryPriceMicros))
	return safe.MulDiv(diff, int64(p.QtySats), quant.QtyScale)
}

// realized computes PnL for closing closeQty sats of a position with the
// given direction at price, relative to entry. Long closes profit when
// price > entry; short closes profit when price < entry.
func realized(posQty, closeQty int64, entry, price quant.PriceMicros) int64 {
	diff := safe.SafeSub(int64(price), int64(entry))
	if posQty < 0 {
		diff = -diff
	}
	return safe.MulDiv(diff, closeQty, quant.QtyScale)
}

func sameSign(a, b int64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
