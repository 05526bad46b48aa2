package invoices

import "strings"

const (
	gstRateBasisPoints  = 1800
	halfRateBasisPoints = gstRateBasisPoints / 2
)

type Supply int

const (
	IntraState Supply = iota
	InterState
)

type GSTBreakdown struct {
	Subtotal   Paise
	CGST       Paise
	SGST       Paise
	IGST       Paise
	TotalTax   Paise
	GrandTotal Paise
	Exempt     bool
	Supply     Supply
}

// ComputeGST splits 18% GST into CGST and SGST for an intra-state sale.
func ComputeGST(subtotal Paise, isExempt bool) GSTBreakdown {
	return ComputeGSTForSupply(subtotal, isExempt, IntraState)
}

func ComputeGSTForSupply(subtotal Paise, isExempt bool, supply Supply) GSTBreakdown {
	b := GSTBreakdown{Subtotal: subtotal, Exempt: isExempt, Supply: supply}

	if !isExempt && subtotal > 0 {
		switch supply {
		case InterState:
			b.IGST = percentOf(subtotal, gstRateBasisPoints)
		default:
			b.CGST = percentOf(subtotal, halfRateBasisPoints)
			b.SGST = percentOf(subtotal, halfRateBasisPoints)
		}
	}

	b.TotalTax = b.CGST + b.SGST + b.IGST
	b.GrandTotal = b.Subtotal + b.TotalTax
	return b
}

// percentOf rounds half up; amount must be non-negative.
func percentOf(amount Paise, basisPoints int64) Paise {
	return Paise((int64(amount)*basisPoints + 5000) / 10000)
}

// SupplyFor picks inter-state supply when the buyer's GSTIN is registered in another state.
func SupplyFor(customerGSTIN, sellerStateCode string) Supply {
	gstin := strings.TrimSpace(customerGSTIN)
	if len(gstin) < 2 || sellerStateCode == "" {
		return IntraState
	}
	state := gstin[:2]
	if state[0] < '0' || state[0] > '9' || state[1] < '0' || state[1] > '9' {
		return IntraState
	}
	if state != sellerStateCode {
		return InterState
	}
	return IntraState
}
