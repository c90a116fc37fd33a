package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment is a ledger entry for a confirmed processor transaction. There is at
// most one per TransactionID.
type Payment struct {
	ID              string
	TransactionID   string
	SessionID       string
	ApplicationID   string
	ScholarshipID   string
	ScholarshipName string
	UniversityName  string
	PayerEmail      string
	Amount          decimal.Decimal
	Currency        string
	TrackingID      string
	PaidAt          time.Time
}
