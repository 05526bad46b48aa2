package invoices

import (
	"strings"
	"time"
)

type Draft struct {
	Number   string
	IsTest   bool
	IssuedAt time.Time
	Tax      GSTBreakdown
}

// Composer turns a verified payment amount into invoice figures. It never fails.
type Composer struct {
	numberer        *Numberer
	exempt          bool
	sellerStateCode string
}

func NewComposer(numberer *Numberer, exempt bool, sellerStateCode string) *Composer {
	return &Composer{numberer: numberer, exempt: exempt, sellerStateCode: sellerStateCode}
}

func (c *Composer) Compose(subtotal Paise, customerGSTIN string, isTest bool) Draft {
	return Draft{
		Number:   c.numberer.Next(isTest),
		IsTest:   isTest,
		IssuedAt: c.numberer.now(),
		Tax:      c.Tax(subtotal, customerGSTIN),
	}
}

// Tax is the breakdown Compose would print, without drawing an invoice number.
func (c *Composer) Tax(subtotal Paise, customerGSTIN string) GSTBreakdown {
	return ComputeGSTForSupply(subtotal, c.exempt, SupplyFor(customerGSTIN, c.sellerStateCode))
}

type Party struct {
	Name    string
	Email   string
	Phone   string
	Company string
	GSTIN   string
	Address string
}

// Data is everything printed on an invoice PDF.
type Data struct {
	Number      string
	IssuedAt    time.Time
	Seller      Party
	Customer    Party
	Description string
	OrderID     string
	PaymentID   string
	Currency    string
	Tax         GSTBreakdown
	IsTest      bool
}

func (d Data) IssuedOn() string {
	return d.IssuedAt.In(istZone).Format("02 Jan 2006")
}

func (d Data) InterState() bool {
	return d.Tax.Supply == InterState
}

// FileName is a filesystem and URL safe name for the PDF.
func (d Data) FileName() string {
	return strings.ReplaceAll(d.Number, "/", "-") + ".pdf"
}
