package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/dmitrijs2005/scholarstream/internal/server/models"
	"github.com/dmitrijs2005/scholarstream/internal/server/processor"
	"github.com/dmitrijs2005/scholarstream/internal/server/services"
	"github.com/gin-gonic/gin"
)

type CheckoutInitiator interface {
	Initiate(ctx context.Context, principal string, in services.CheckoutInput) (*services.CheckoutResult, error)
}

type PaymentConfirmer interface {
	Confirm(ctx context.Context, sessionID string) (*services.Result, error)
}

type PaymentHistory interface {
	List(ctx context.Context, principal string) ([]*models.Payment, error)
}

type ReceiptIssuer interface {
	ReceiptURL(ctx context.Context, principal, transactionID string) (string, error)
}

type ApplicationDesk interface {
	Submit(ctx context.Context, principal, scholarshipID string) (*models.Application, error)
	Get(ctx context.Context, principal, id string) (*models.Application, error)
	List(ctx context.Context, principal string) ([]*models.Application, error)
}

type WebhookVerifier interface {
	ParseWebhook(payload []byte, signature string) (*processor.WebhookEvent, error)
}

// Services are the operations the API exposes.
type Services struct {
	Checkout     CheckoutInitiator
	Confirmer    PaymentConfirmer
	History      PaymentHistory
	Receipts     ReceiptIssuer
	Applications ApplicationDesk
	Webhooks     WebhookVerifier
}

type checkoutRequest struct {
	ApplicationID   string      `json:"applicationId" binding:"required"`
	ScholarshipID   string      `json:"scholarshipId"`
	Amount          json.Number `json:"amount" binding:"required"`
	ScholarshipName string      `json:"scholarshipName"`
	UniversityName  string      `json:"universityName"`
	UserEmail       string      `json:"userEmail" binding:"required,email"`
}

type checkoutResponse struct {
	RedirectURL string `json:"redirectUrl"`
	SessionID   string `json:"sessionId"`
}

type confirmRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
}

type confirmResponse struct {
	Success bool             `json:"success"`
	Payment *paymentResponse `json:"payment,omitempty"`
}

type paymentResponse struct {
	TransactionID   string      `json:"transactionId"`
	ApplicationID   string      `json:"applicationId"`
	ScholarshipID   string      `json:"scholarshipId,omitempty"`
	ScholarshipName string      `json:"scholarshipName,omitempty"`
	UniversityName  string      `json:"universityName,omitempty"`
	PayerEmail      string      `json:"payerEmail"`
	Amount          json.Number `json:"amount"`
	Currency        string      `json:"currency"`
	TrackingID      string      `json:"trackingId"`
	PaidAt          time.Time   `json:"paidAt"`
}

type applicationRequest struct {
	ScholarshipID string `json:"scholarshipId" binding:"required"`
}

type applicationResponse struct {
	ID                string     `json:"id"`
	ScholarshipID     string     `json:"scholarshipId"`
	UserEmail         string     `json:"userEmail"`
	ApplicationStatus string     `json:"applicationStatus"`
	PaymentStatus     string     `json:"paymentStatus"`
	TrackingID        string     `json:"trackingId,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	PaidAt            *time.Time `json:"paidAt,omitempty"`
}

type receiptResponse struct {
	URL string `json:"url"`
}

func toPaymentResponse(p *models.Payment) *paymentResponse {
	return &paymentResponse{
		TransactionID:   p.TransactionID,
		ApplicationID:   p.ApplicationID,
		ScholarshipID:   p.ScholarshipID,
		ScholarshipName: p.ScholarshipName,
		UniversityName:  p.UniversityName,
		PayerEmail:      p.PayerEmail,
		Amount:          json.Number(p.Amount.StringFixed(2)),
		Currency:        p.Currency,
		TrackingID:      p.TrackingID,
		PaidAt:          p.PaidAt,
	}
}

func toApplicationResponse(a *models.Application) applicationResponse {
	return applicationResponse{
		ID:                a.ID,
		ScholarshipID:     a.ScholarshipID,
		UserEmail:         a.UserEmail,
		ApplicationStatus: a.ApplicationStatus,
		PaymentStatus:     a.PaymentStatus,
		TrackingID:        a.TrackingID,
		CreatedAt:         a.CreatedAt,
		PaidAt:            a.PaidAt,
	}
}

type handlers struct {
	svc Services
}

func (h *handlers) createCheckoutSession(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	res, err := h.svc.Checkout.Initiate(c.Request.Context(), principal(c), services.CheckoutInput{
		ApplicationID:   req.ApplicationID,
		ScholarshipID:   req.ScholarshipID,
		Amount:          req.Amount.String(),
		ScholarshipName: req.ScholarshipName,
		UniversityName:  req.UniversityName,
		UserEmail:       req.UserEmail,
	})
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, checkoutResponse{RedirectURL: res.RedirectURL, SessionID: res.SessionID})
}

// confirmPayment needs no principal: the processor's answer decides.
func (h *handlers) confirmPayment(c *gin.Context) {
	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	res, err := h.svc.Confirmer.Confirm(c.Request.Context(), req.SessionID)
	if err != nil {
		fail(c, err)
		return
	}

	out := confirmResponse{Success: res.Success}
	if res.Payment != nil {
		out.Payment = toPaymentResponse(res.Payment)
	}
	c.JSON(http.StatusOK, out)
}

func (h *handlers) listPayments(c *gin.Context) {
	list, err := h.svc.History.List(c.Request.Context(), principal(c))
	if err != nil {
		fail(c, err)
		return
	}

	out := make([]*paymentResponse, 0, len(list))
	for _, p := range list {
		out = append(out, toPaymentResponse(p))
	}
	c.JSON(http.StatusOK, out)
}

func (h *handlers) paymentReceipt(c *gin.Context) {
	url, err := h.svc.Receipts.ReceiptURL(c.Request.Context(), principal(c), c.Param("transactionId"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, receiptResponse{URL: url})
}

func (h *handlers) submitApplication(c *gin.Context) {
	var req applicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	app, err := h.svc.Applications.Submit(c.Request.Context(), principal(c), req.ScholarshipID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toApplicationResponse(app))
}

func (h *handlers) getApplication(c *gin.Context) {
	app, err := h.svc.Applications.Get(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toApplicationResponse(app))
}

func (h *handlers) listApplications(c *gin.Context) {
	list, err := h.svc.Applications.List(c.Request.Context(), principal(c))
	if err != nil {
		fail(c, err)
		return
	}

	out := make([]applicationResponse, 0, len(list))
	for _, a := range list {
		out = append(out, toApplicationResponse(a))
	}
	c.JSON(http.StatusOK, out)
}

func (h *handlers) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
