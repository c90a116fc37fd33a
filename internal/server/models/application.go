// Package models defines server-side data models persisted in the database
// or exchanged with the payment processor.
package models

import "time"

// Application review states. Orthogonal to payment.
const (
	ApplicationPending     = "pending"
	ApplicationUnderReview = "under-review"
	ApplicationApproved    = "approved"
	ApplicationRejected    = "rejected"
)

// Application payment states. The only transition is unpaid -> paid.
const (
	PaymentUnpaid = "unpaid"
	PaymentPaid   = "paid"
)

// Application is a user's submission to a scholarship.
//
// TrackingID and PaidAt are set together with PaymentStatus = paid and are
// empty otherwise.
type Application struct {
	ID                string
	UserEmail         string
	ScholarshipID     string
	ApplicationStatus string
	PaymentStatus     string
	TrackingID        string
	CreatedAt         time.Time
	PaidAt            *time.Time
}

// IsPaid reports whether the application fee has been recorded.
func (a *Application) IsPaid() bool {
	return a.PaymentStatus == PaymentPaid
}
