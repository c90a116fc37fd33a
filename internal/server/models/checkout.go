package models

// Processor-reported session payment states.
const (
	SessionPaid              = "paid"
	SessionUnpaid            = "unpaid"
	SessionNoPaymentRequired = "no_payment_required"
)

// CheckoutSession is the processor's view of one purchase attempt. It is never
// stored locally.
type CheckoutSession struct {
	ID            string
	URL           string
	Status        string
	PaymentStatus string
	TransactionID string
	AmountTotal   int64
	Currency      string
	CustomerEmail string
	Metadata      map[string]string
}

// IsPaid reports whether the processor considers the money moved.
func (s *CheckoutSession) IsPaid() bool {
	return s.PaymentStatus == SessionPaid
}
