package config

import (
	"flag"
	"time"

	"github.com/dmitrijs2005/scholarstream/internal/flagx"
)

// serverFlags lists the flags handled by parseFlags; everything else on the
// command line belongs to other layers and is filtered out first.
var serverFlags = []string{
	"-a", "-grpc", "-d", "-s", "-k", "-w", "-currency", "-client-url", "-pt",
	"-redis", "-history-ttl", "-kafka", "-topic",
	"-u", "-p", "-b", "-g", "-e",
}

// parseFlags populates Config fields from command-line flags.
//
// Supported flags:
//
//	-a string            HTTP bind address (e.g. ":8080")
//	-grpc string         gRPC health bind address (e.g. ":50051")
//	-d string            PostgreSQL DSN
//	-s string            JWT HMAC secret key
//	-k string            Stripe secret key
//	-w string            Stripe webhook signing secret
//	-currency string     fee currency for checkout sessions
//	-client-url string   front-end base URL for redirects
//	-pt int              processor timeout, seconds
//	-redis string        Redis address for the history cache
//	-history-ttl int     history cache TTL, seconds
//	-kafka string        comma-separated Kafka brokers
//	-topic string        Kafka topic for payment.recorded events
//	-u, -p, -b, -g, -e   S3 user, password, bucket, region, endpoint
func parseFlags(config *Config, args []string) {
	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to serve HTTP")
	fs.StringVar(&config.EndpointAddrGRPC, "grpc", config.EndpointAddrGRPC, "address and port to serve gRPC health")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.StripeSecretKey, "k", config.StripeSecretKey, "Stripe secret key")
	fs.StringVar(&config.StripeWebhookSecret, "w", config.StripeWebhookSecret, "Stripe webhook secret")
	fs.StringVar(&config.Currency, "currency", config.Currency, "fee currency")
	fs.StringVar(&config.ClientBaseURL, "client-url", config.ClientBaseURL, "client base URL")

	processorTimeout := fs.Int("pt", int(config.ProcessorTimeout.Seconds()), "processor timeout (in seconds)")

	fs.StringVar(&config.RedisAddr, "redis", config.RedisAddr, "Redis address")

	historyTTL := fs.Int("history-ttl", int(config.HistoryCacheTTL.Seconds()), "history cache TTL (in seconds)")

	var brokers string
	fs.StringVar(&brokers, "kafka", "", "Kafka brokers, comma separated")
	fs.StringVar(&config.PaymentsTopic, "topic", config.PaymentsTopic, "payments topic")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	if err := fs.Parse(flagx.FilterArgs(args, serverFlags)); err != nil {
		panic(err)
	}

	// Second-granularity flags only override when given, so sub-second values
	// from earlier layers survive.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "pt":
			config.ProcessorTimeout = time.Duration(*processorTimeout) * time.Second
		case "history-ttl":
			config.HistoryCacheTTL = time.Duration(*historyTTL) * time.Second
		case "kafka":
			config.KafkaBrokers = splitList(brokers)
		}
	})
}
