package invoices

import (
	"fmt"
	"math"
)

// Paise is an amount of Indian rupees in its smallest unit.
type Paise int64

func FromRupees(rupees float64) Paise {
	return Paise(math.Round(rupees * 100))
}

func (p Paise) Rupees() float64 {
	return float64(p) / 100
}

func (p Paise) String() string {
	sign := ""
	if p < 0 {
		sign = "-"
		p = -p
	}
	return fmt.Sprintf("%s%d.%02d", sign, p/100, p%100)
}
