package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/scholarstream/internal/flagx"
	"github.com/dmitrijs2005/scholarstream/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Duration fields accept
// "10s"-style strings or integer nanoseconds. Absent keys leave the current
// value untouched.
type JsonConfig struct {
	EndpointAddrHTTP    *string         `json:"endpoint_addr_http"`
	EndpointAddrGRPC    *string         `json:"endpoint_addr_grpc"`
	DatabaseDSN         *string         `json:"database_dsn"`
	SecretKey           *string         `json:"secret_key"`
	StripeSecretKey     *string         `json:"stripe_secret_key"`
	StripeWebhookSecret *string         `json:"stripe_webhook_secret"`
	Currency            *string         `json:"currency"`
	ClientBaseURL       *string         `json:"client_base_url"`
	ProcessorTimeout    *timex.Duration `json:"processor_timeout"`
	RedisAddr           *string         `json:"redis_addr"`
	HistoryCacheTTL     *timex.Duration `json:"history_cache_ttl"`
	KafkaBrokers        []string        `json:"kafka_brokers"`
	PaymentsTopic       *string         `json:"payments_topic"`
	S3RootUser          *string         `json:"s3_root_user"`
	S3RootPassword      *string         `json:"s3_root_password"`
	S3Bucket            *string         `json:"s3_bucket"`
	S3Region            *string         `json:"s3_region"`
	S3BaseEndpoint      *string         `json:"s3_base_endpoint"`
}

// parseJson overlays values from the file named by -c/-config. Without the
// flag nothing is loaded. An unreadable or malformed file panics: the server
// must not start on a config it did not understand.
func parseJson(config *Config, args []string) {
	path := flagx.ConfigFileFlag(args)
	if path == "" {
		return
	}

	file, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.StripeSecretKey, c.StripeSecretKey)
	setString(&config.StripeWebhookSecret, c.StripeWebhookSecret)
	setString(&config.Currency, c.Currency)
	setString(&config.ClientBaseURL, c.ClientBaseURL)
	if c.ProcessorTimeout != nil {
		config.ProcessorTimeout = c.ProcessorTimeout.Duration
	}
	setString(&config.RedisAddr, c.RedisAddr)
	if c.HistoryCacheTTL != nil {
		config.HistoryCacheTTL = c.HistoryCacheTTL.Duration
	}
	if c.KafkaBrokers != nil {
		config.KafkaBrokers = c.KafkaBrokers
	}
	setString(&config.PaymentsTopic, c.PaymentsTopic)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
