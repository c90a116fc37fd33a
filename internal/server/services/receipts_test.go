package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/scholarstream/internal/common"
	"github.com/dmitrijs2005/scholarstream/internal/logging"
	sc "github.com/dmitrijs2005/scholarstream/internal/server/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReceiptEnv(t *testing.T) (*ReceiptService, *fakeLedger) {
	t.Helper()
	ledger := newFakeLedger()
	seedLedger(t, ledger, ledgerEntry("pi_1", "student@example.com"))
	cfg := &sc.Config{
		S3Region:       "us-east-1",
		S3RootUser:     "minioadmin",
		S3RootPassword: "minioadmin",
		S3BaseEndpoint: "http://127.0.0.1:9000",
		S3Bucket:       "receipts",
	}
	return NewReceiptService(nil, &fakeRepoManager{ledger: ledger}, cfg, logging.Nop{}), ledger
}

// stubS3 swaps the S3 seams for the duration of the test.
func stubS3(t *testing.T) {
	t.Helper()
	origLoad, origNewS3, origNewPre := loadDefaultAWSConfig, newS3ClientFromConfig, newS3PresignClient
	origPut, origPresign := putObject, presignGetObject
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNewS3
		newS3PresignClient = origNewPre
		putObject = origPut
		presignGetObject = origPresign
	})

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, nil
	}
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client { return &s3.Client{} }
	newS3PresignClient = func(c *s3.Client) *s3.PresignClient { return &s3.PresignClient{} }
}

func TestGetClients_AppliesConfig(t *testing.T) {
	svc, _ := newReceiptEnv(t)
	stubS3(t)

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		var lo awsconfig.LoadOptions
		for _, fn := range optFns {
			require.NoError(t, fn(&lo))
		}
		assert.Equal(t, "us-east-1", lo.Region)
		assert.NotNil(t, lo.Credentials)
		return aws.Config{}, nil
	}

	var opts s3.Options
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		for _, fn := range optFns {
			fn(&opts)
		}
		return &s3.Client{}
	}

	client, pc, err := svc.getClients()
	require.NoError(t, err)
	assert.NotNil(t, client)
	assert.NotNil(t, pc)
	require.NotNil(t, opts.BaseEndpoint)
	assert.Equal(t, "http://127.0.0.1:9000", *opts.BaseEndpoint)
	assert.True(t, opts.UsePathStyle)

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("load-fail")
	}
	_, _, err = svc.getClients()
	require.EqualError(t, err, "load-fail")
}

func TestReceiptURL_StoresReceiptAndPresigns(t *testing.T) {
	svc, _ := newReceiptEnv(t)
	stubS3(t)

	var stored Receipt
	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		assert.Equal(t, "receipts", *in.Bucket)
		assert.Equal(t, "receipts/pi_1.json", *in.Key)
		assert.Equal(t, "application/json", *in.ContentType)
		body, err := io.ReadAll(in.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &stored))
		return &s3.PutObjectOutput{}, nil
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		assert.Equal(t, "receipts/pi_1.json", *in.Key)
		var po s3.PresignOptions
		for _, fn := range optFns {
			fn(&po)
		}
		assert.Equal(t, 15*time.Minute, po.Expires)
		return &v4.PresignedHTTPRequest{URL: "https://s3.test/receipts/pi_1.json?sig=1"}, nil
	}

	url, err := svc.ReceiptURL(context.Background(), "student@example.com", "pi_1")
	require.NoError(t, err)
	assert.Equal(t, "https://s3.test/receipts/pi_1.json?sig=1", url)

	assert.Equal(t, "PRCL-20260314-ABCDEF", stored.ReceiptNumber)
	assert.Equal(t, "50.00", stored.Amount)
	assert.Equal(t, "USD", stored.Currency)
	assert.Equal(t, "2026-03-14T09:30:00Z", stored.PaidAt)
}

func TestReceiptURL_Rejections(t *testing.T) {
	svc, ledger := newReceiptEnv(t)
	stubS3(t)
	putObject = func(*s3.Client, context.Context, *s3.PutObjectInput, ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		t.Fatal("nothing should be stored")
		return nil, nil
	}

	_, err := svc.ReceiptURL(context.Background(), "mallory@example.com", "pi_1")
	require.ErrorIs(t, err, common.ErrForbidden)

	_, err = svc.ReceiptURL(context.Background(), "student@example.com", "pi_404")
	require.ErrorIs(t, err, common.ErrNotFound)

	ledger.lookupErr = errors.New("conn reset")
	_, err = svc.ReceiptURL(context.Background(), "student@example.com", "pi_1")
	require.ErrorIs(t, err, common.ErrUpstreamUnavailable)
}

func TestReceiptURL_StorageFailures(t *testing.T) {
	svc, _ := newReceiptEnv(t)
	stubS3(t)

	putObject = func(*s3.Client, context.Context, *s3.PutObjectInput, ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return nil, errors.New("put-fail")
	}
	_, err := svc.ReceiptURL(context.Background(), "student@example.com", "pi_1")
	require.ErrorIs(t, err, common.ErrUpstreamUnavailable)
	assert.Contains(t, err.Error(), "put-fail")

	putObject = func(*s3.Client, context.Context, *s3.PutObjectInput, ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return &s3.PutObjectOutput{}, nil
	}
	presignGetObject = func(*s3.PresignClient, context.Context, *s3.GetObjectInput, ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return nil, errors.New("presign-fail")
	}
	_, err = svc.ReceiptURL(context.Background(), "student@example.com", "pi_1")
	require.ErrorIs(t, err, common.ErrUpstreamUnavailable)
	assert.Contains(t, err.Error(), "presign-fail")
}

func TestNewReceipt_ZeroDecimalCurrency(t *testing.T) {
	p := ledgerEntry("pi_9", "student@example.com")
	p.Amount = MajorUnits(500, "jpy")
	p.Currency = "jpy"

	r := NewReceipt(p)
	assert.Equal(t, "500", r.Amount)
	assert.Equal(t, "JPY", r.Currency)
}
