package invoices

import (
	"fmt"
	"sync"
	"time"
)

var istZone = time.FixedZone("IST", 5*60*60+30*60)

const (
	livePrefix = "PCA"
	testPrefix = "TEST/PCA"
)

// Numberer hands out invoice numbers that increase within a process:
// PREFIX/FY/yyMMdd/<milliseconds since IST midnight>.
type Numberer struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

func NewNumberer(now func() time.Time) *Numberer {
	if now == nil {
		now = time.Now
	}
	return &Numberer{now: now}
}

func (n *Numberer) Next(isTest bool) string {
	n.mu.Lock()
	t := n.now().In(istZone).Truncate(time.Millisecond)
	if !t.After(n.last) {
		t = n.last.Add(time.Millisecond)
	}
	n.last = t
	n.mu.Unlock()

	return FormatInvoiceNumber(t, isTest)
}

func FormatInvoiceNumber(t time.Time, isTest bool) string {
	t = t.In(istZone)
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, istZone)
	millis := t.Sub(midnight).Milliseconds()

	prefix := livePrefix
	if isTest {
		prefix = testPrefix
	}
	return fmt.Sprintf("%s/%s/%s/%08d", prefix, FinancialYear(t), t.Format("060102"), millis)
}

// FinancialYear returns the Indian financial year (April to March) containing t, e.g. "2026-27".
func FinancialYear(t time.Time) string {
	start := t.Year()
	if t.Month() < time.April {
		start--
	}
	return fmt.Sprintf("%d-%02d", start, (start+1)%100)
}

func IsTestInvoiceNumber(number string) bool {
	return len(number) > len(testPrefix) && number[:len(testPrefix)] == testPrefix
}
