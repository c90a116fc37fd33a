package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/scholarstream/internal/common"
	"github.com/dmitrijs2005/scholarstream/internal/logging"
	sc "github.com/dmitrijs2005/scholarstream/internal/server/config"
	"github.com/dmitrijs2005/scholarstream/internal/server/models"
	"github.com/dmitrijs2005/scholarstream/internal/server/repositories/repomanager"
)

const receiptURLValidity = 15 * time.Minute

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in, optFns...)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

// Receipt is the document stored for a recorded payment.
type Receipt struct {
	ReceiptNumber   string `json:"receiptNumber"`
	TransactionID   string `json:"transactionId"`
	ApplicationID   string `json:"applicationId"`
	ScholarshipID   string `json:"scholarshipId,omitempty"`
	ScholarshipName string `json:"scholarshipName,omitempty"`
	UniversityName  string `json:"universityName,omitempty"`
	PayerEmail      string `json:"payerEmail"`
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
	PaidAt          string `json:"paidAt"`
}

// ReceiptService renders receipts into object storage and hands out
// short-lived download links.
type ReceiptService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	config      *sc.Config
	logger      logging.Logger
}

func NewReceiptService(db *sql.DB, repomanager repomanager.RepositoryManager, config *sc.Config, logger logging.Logger) *ReceiptService {
	return &ReceiptService{
		db:          db,
		repomanager: repomanager,
		config:      config,
		logger:      logger.With("module", "receipts"),
	}
}

func ReceiptKey(transactionID string) string {
	return "receipts/" + transactionID + ".json"
}

func NewReceipt(p *models.Payment) Receipt {
	return Receipt{
		ReceiptNumber:   p.TrackingID,
		TransactionID:   p.TransactionID,
		ApplicationID:   p.ApplicationID,
		ScholarshipID:   p.ScholarshipID,
		ScholarshipName: p.ScholarshipName,
		UniversityName:  p.UniversityName,
		PayerEmail:      p.PayerEmail,
		Amount:          p.Amount.StringFixed(minorUnitExponent(p.Currency)),
		Currency:        strings.ToUpper(p.Currency),
		PaidAt:          p.PaidAt.UTC().Format(time.RFC3339),
	}
}

func (s *ReceiptService) getClients() (*s3.Client, *s3.PresignClient, error) {
	cfg, err := loadDefaultAWSConfig(context.Background(),
		config.WithRegion(s.config.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3RootUser,
			s.config.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
		o.UsePathStyle = true
	})

	return client, newS3PresignClient(client), nil
}

// ReceiptURL writes the receipt for transactionID (overwriting any earlier
// copy) and returns a presigned GET URL. Only the payer may ask.
func (s *ReceiptService) ReceiptURL(ctx context.Context, principal, transactionID string) (string, error) {
	p, err := s.repomanager.Payments(s.db).GetByTransactionID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return "", fmt.Errorf("payment %w", common.ErrNotFound)
		}
		return "", common.Unavailable("load payment", err)
	}
	if !strings.EqualFold(p.PayerEmail, principal) {
		return "", fmt.Errorf("%w: payment belongs to another user", common.ErrForbidden)
	}

	body, err := json.MarshalIndent(NewReceipt(p), "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode receipt: %w", err)
	}

	client, presignClient, err := s.getClients()
	if err != nil {
		return "", common.Unavailable("object storage", err)
	}

	bucket := s.config.S3Bucket
	key := ReceiptKey(transactionID)

	if _, err := putObject(client, ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	}); err != nil {
		return "", common.Unavailable("store receipt", err)
	}

	req, err := presignGetObject(presignClient, ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(receiptURLValidity))
	if err != nil {
		return "", common.Unavailable("presign receipt", err)
	}

	s.logger.Info(ctx, "receipt issued", "transaction_id", transactionID, "key", key)
	return req.URL, nil
}
