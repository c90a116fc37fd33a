package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/dmitrijs2005/scholarstream/internal/flagx"
	"github.com/joho/godotenv"
)

// EnvPrefix namespaces every environment variable read by the server.
const EnvPrefix = "SCHOLARSTREAM_"

// parseEnv overlays SCHOLARSTREAM_* variables. A dotenv file (-env-file, or
// ".env" in the working directory) is loaded first; variables already set in
// the process environment win over the file. A missing default file is fine,
// a missing explicit one panics.
func parseEnv(config *Config, args []string) {
	envFile := flagx.EnvFileFlag(args)
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			panic(err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic(err)
	}

	envString(&config.EndpointAddrHTTP, "HTTP_ADDR")
	envString(&config.EndpointAddrGRPC, "GRPC_ADDR")
	envString(&config.DatabaseDSN, "DATABASE_DSN")
	envString(&config.SecretKey, "SECRET_KEY")
	envString(&config.StripeSecretKey, "STRIPE_SECRET_KEY")
	envString(&config.StripeWebhookSecret, "STRIPE_WEBHOOK_SECRET")
	envString(&config.Currency, "CURRENCY")
	envString(&config.ClientBaseURL, "CLIENT_BASE_URL")
	envDuration(&config.ProcessorTimeout, "PROCESSOR_TIMEOUT")
	envString(&config.RedisAddr, "REDIS_ADDR")
	envDuration(&config.HistoryCacheTTL, "HISTORY_CACHE_TTL")
	if v, ok := os.LookupEnv(EnvPrefix + "KAFKA_BROKERS"); ok {
		config.KafkaBrokers = splitList(v)
	}
	envString(&config.PaymentsTopic, "PAYMENTS_TOPIC")
	envString(&config.S3RootUser, "S3_ROOT_USER")
	envString(&config.S3RootPassword, "S3_ROOT_PASSWORD")
	envString(&config.S3Bucket, "S3_BUCKET")
	envString(&config.S3Region, "S3_REGION")
	envString(&config.S3BaseEndpoint, "S3_BASE_ENDPOINT")
}

func envString(dst *string, name string) {
	if v, ok := os.LookupEnv(EnvPrefix + name); ok {
		*dst = v
	}
}

func envDuration(dst *time.Duration, name string) {
	v, ok := os.LookupEnv(EnvPrefix + name)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		panic(err)
	}
	*dst = d
}

// splitList turns "a:9092, b:9092" into its non-empty, trimmed parts.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
