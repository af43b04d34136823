//go:build !dev
// +build !dev

package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"logforwarder/pkg/config"
	"logforwarder/pkg/flags"
	"logforwarder/pkg/metrics"
	"logforwarder/pkg/pipeline"
	"logforwarder/pkg/queueevents"
	"logforwarder/pkg/retry"
	"logforwarder/pkg/rules"
	"logforwarder/pkg/shipper"
	"logforwarder/pkg/storage"
	"logforwarder/pkg/stream"
	"logforwarder/pkg/utils"

	myaws "logforwarder/pkg/aws"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// Version information injected at build time
	version = "dev"
	commit  = "unknown"
	date    = "unknown"

	// Global initialization for Lambda cold start optimization
	awsCfg         aws.Config
	configLoader   config.ConfigLoader
	cachedRules    *rules.CachedConfiguration
	cwMetrics      *metrics.CloudWatchMetrics
	s3Client       *s3.Client
	awsConnection  *myaws.Connection
	connOnce       sync.Once
	lastConfigLoad time.Time
	configMutex    sync.RWMutex
	processorCfg   flags.S3Processor
	sqsProcessor   *queueevents.Processor
	pipelineInst   *pipeline.Pipeline
	initError      error
	initOnce       sync.Once
)

// Initialize components once during cold start
//
// This init() function implements critical cold start optimizations for AWS Lambda:
// 1. Synchronous initialization of lightweight components (logging, config)
// 2. Asynchronous initialization of heavy components (AWS clients, ES client)
//
// The async initialization runs in a goroutine to avoid blocking the Lambda runtime
// initialization. The main handler will wait for this to complete if needed.
func init() {
	initializeLogger()

	log.Info().
		Str("version", version).
		Str("commit", commit).
		Str("build_date", date).
		Str("go_version", runtime.Version()).
		Str("os_arch", fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH)).
		Msg("log forwarder starting")

	processorCfg = loadProcessorConfig()

	go performAsyncInitialization()
}

func initializeLogger() {
	logLevelStr := getEnv("LOG_LEVEL", "warn")
	logLevel, err := zerolog.ParseLevel(logLevelStr)
	if err != nil {
		logLevel = zerolog.WarnLevel
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.TimestampFunc = func() time.Time { return time.Now().In(time.UTC) }
	zerolog.SetGlobalLevel(logLevel)
	zerolog.ErrorFieldName = "error"
	zerolog.MessageFieldName = "msg"

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	log.Logger = logger
}

func loadProcessorConfig() flags.S3Processor {
	sqsQueueURL := getEnv("SQS_QUEUE_URL", "")
	if sqsQueueURL == "" {
		log.Fatal().Msg("SQS_QUEUE_URL is required: it is also the replay queue a deadline-aware invocation republishes unread work onto")
	}

	cfg := flags.S3Processor{
		SQSQueueURL:      sqsQueueURL,
		SNSTopicArn:      getEnv("SNS_TOPIC_ARN", ""),
		ElasticsearchURL: getEnv("ELASTICSEARCH_URL", ""),
		ElasticCloudID:   getEnv("ELASTIC_CLOUD_ID", ""),
		ESUsername:       getEnv("ES_USERNAME", ""),
		ESPassword:       getEnv("ES_PASSWORD", ""),
		ESAPIKey:         getEnv("ES_API_KEY", ""),
		ESNamespace:      getEnv("ES_NAMESPACE", "default"),
		ESTags:           getEnvList("ES_TAGS", nil),
		BatchMaxActions:  getEnvInt("BATCH_MAX_ACTIONS", shipper.DefaultBatchMaxActions),
		BatchMaxBytes:    getEnvInt("BATCH_MAX_BYTES", shipper.DefaultBatchMaxBytes),

		JSONContentType:          getEnv("JSON_CONTENT_TYPE", string(stream.JSONNDJSON)),
		ExpandEventListFromField: getEnv("EXPAND_EVENT_LIST_FROM_FIELD", ""),
	}

	return cfg
}

func performAsyncInitialization() {
	initOnce.Do(func() {
		ctx := context.Background()

		var err error
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(os.Getenv("AWS_REGION")),
			awsconfig.WithEC2IMDSRegion(),
			awsconfig.WithRetryMode(aws.RetryModeAdaptive),
			awsconfig.WithRetryMaxAttempts(3),
		)
		if err != nil {
			initError = fmt.Errorf("failed to load AWS configuration: %w", err)
			return
		}

		s3Client = s3.NewFromConfig(awsCfg)

		conn, err := getOrCreateAWSConnection()
		if err != nil {
			initError = fmt.Errorf("failed to build AWS connection: %w", err)
			return
		}

		// Drop-rules configuration is an optional pre-ingest filter, not
		// a fatal dependency: a missing or unloadable rules source just
		// means nothing is filtered.
		configLoader = config.CreateLoaderFromEnv(&awsCfg)
		if cachedLoader, ok := configLoader.(*config.CachedConfigLoader); ok {
			cachedConfig, err := cachedLoader.LoadCached(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("failed to pre-load drop-rules configuration, continuing unfiltered")
			} else {
				cachedRules = cachedConfig
				lastConfigLoad = time.Now()
			}
		}

		if getEnv("METRICS_ENABLED", "true") == "true" {
			cwClient := cloudwatch.NewFromConfig(awsCfg)
			cwMetrics = metrics.NewCloudWatchMetrics(
				cwClient,
				getEnv("METRICS_NAMESPACE", "LogForwarder"),
			)
		}

		esClient, err := newElasticsearchClient(processorCfg)
		if err != nil {
			initError = fmt.Errorf("failed to build elasticsearch client: %w", err)
			return
		}

		sh, err := shipper.New(esClient, shipper.Config{
			ElasticsearchURL: processorCfg.ElasticsearchURL,
			CloudID:          processorCfg.ElasticCloudID,
			Username:         processorCfg.ESUsername,
			Password:         processorCfg.ESPassword,
			APIKey:           processorCfg.ESAPIKey,
			Namespace:        processorCfg.ESNamespace,
			Tags:             processorCfg.ESTags,
			BatchMaxActions:  processorCfg.BatchMaxActions,
			BatchMaxBytes:    processorCfg.BatchMaxBytes,
			MaxRetries:       shipper.DefaultMaxRetries,
		})
		if err != nil {
			initError = fmt.Errorf("failed to build shipper: %w", err)
			return
		}
		if cwMetrics != nil {
			sh.SetMetrics(cwMetrics)
		}

		pipelineInst = pipeline.New(sh, conn)
		if cachedRules != nil {
			pipelineInst.SetRules(cachedRules)
		}

		sqsProcessor = queueevents.NewProcessor(processorCfg, pipelineInst, s3ReaderFactory(processorCfg))
	})
}

// newElasticsearchClient configures the client's own transport retry:
// 10 retries, retry on the status codes that indicate a transient
// cluster or gateway problem, with timeout-retry enabled, matching the
// original shipper's client construction.
func newElasticsearchClient(cfg flags.S3Processor) (*elasticsearch.Client, error) {
	esCfg := elasticsearch.Config{
		Addresses:            addressesFor(cfg.ElasticsearchURL),
		CloudID:              cfg.ElasticCloudID,
		Username:             cfg.ESUsername,
		Password:             cfg.ESPassword,
		APIKey:               cfg.ESAPIKey,
		RetryOnStatus:        []int{429, 502, 503, 504},
		MaxRetries:           shipper.DefaultMaxRetries,
		EnableRetryOnTimeout: true,
	}
	return elasticsearch.NewClient(esCfg)
}

func addressesFor(url string) []string {
	if url == "" {
		return nil
	}
	return []string{url}
}

// s3ReaderFactory builds the ReaderFactory queueevents.Processor drives
// to construct a storage.Reader for each referenced S3 object.
func s3ReaderFactory(cfg flags.S3Processor) queueevents.ReaderFactory {
	caps := queueevents.DefaultCapabilities(cfg)
	return func(bucket, key string) storage.Reader {
		return storage.NewS3Reader(s3Client, bucket, key, caps)
	}
}

// Handler decodes and ships every S3 object referenced by the triggering
// SQS event, whether it is a primary S3 event notification or a replay
// this function previously published to its own queue.
func Handler(ctx context.Context, event events.SQSEvent) ([]byte, error) {
	start := time.Now()

	if initError != nil {
		return nil, fmt.Errorf("initialization failed: %w", initError)
	}
	initOnce.Do(func() {})

	requestID := getRequestID(ctx)
	ctx = log.With().Str("requestId", requestID).Logger().WithContext(ctx)

	log.Ctx(ctx).Debug().Int("records", len(event.Records)).Msg("processing sqs event")

	if cwMetrics != nil {
		defer func() {
			cwMetrics.RecordLambdaDuration(time.Since(start), map[string]string{"RequestId": requestID})
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			cwMetrics.RecordMemoryUsed(float64(m.Alloc)/1024/1024, map[string]string{"RequestId": requestID})
		}()
	}

	if err := refreshConfigurationIfNeeded(ctx); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("failed to refresh drop-rules configuration, continuing unfiltered")
	}

	eventBytes, err := utils.Marshal(event)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to marshal event")
		if cwMetrics != nil {
			cwMetrics.RecordError("EventMarshal", map[string]string{"RequestId": requestID})
		}
		return nil, err
	}

	result, err := retry.DoTyped(ctx, func() ([]byte, error) {
		return sqsProcessor.Handler(ctx, eventBytes)
	},
		retry.WithMaxRetries(2),
		retry.WithBaseDelay(100*time.Millisecond),
		retry.WithRetryableError(retry.IsRetryable),
	)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to process event")
		if cwMetrics != nil {
			cwMetrics.RecordError("EventProcessing", map[string]string{"RequestId": requestID})
		}
		return nil, err
	}

	log.Ctx(ctx).Info().Dur("duration", time.Since(start)).Msg("event processed successfully")

	if cwMetrics != nil {
		if err := cwMetrics.Flush(ctx); err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("failed to flush metrics")
		}
	}

	return result, nil
}

func refreshConfigurationIfNeeded(ctx context.Context) error {
	if configLoader == nil {
		return nil
	}

	configMutex.RLock()
	timeSinceLoad := time.Since(lastConfigLoad)
	configMutex.RUnlock()

	refreshInterval, _ := time.ParseDuration(getEnv("CONFIG_REFRESH_INTERVAL", "5m"))
	if timeSinceLoad < refreshInterval && cachedRules != nil {
		return nil
	}

	configMutex.Lock()
	defer configMutex.Unlock()

	if time.Since(lastConfigLoad) < refreshInterval && cachedRules != nil {
		return nil
	}

	log.Ctx(ctx).Debug().Msg("refreshing drop-rules configuration")
	loadStart := time.Now()

	var cfg *rules.Configuration
	err := retry.Do(ctx, func() error {
		var loadErr error
		cfg, loadErr = configLoader.Load(ctx)
		return loadErr
	}, retry.WithMaxRetries(3))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	newCachedRules, err := rules.PrepareConfiguration(cfg)
	if err != nil {
		return fmt.Errorf("failed to prepare cached rules: %w", err)
	}

	cachedRules = newCachedRules
	lastConfigLoad = time.Now()
	if pipelineInst != nil {
		pipelineInst.SetRules(cachedRules)
	}

	if cwMetrics != nil {
		cwMetrics.RecordConfigLoadTime(time.Since(loadStart), configLoader.String(), map[string]string{})
	}

	return nil
}

func getOrCreateAWSConnection() (*myaws.Connection, error) {
	var err error
	connOnce.Do(func() {
		awsConnection, err = myaws.New(&awsCfg, processorCfg.SQSQueueURL, processorCfg.SNSTopicArn)
	})
	return awsConnection, err
}

func getRequestID(_ context.Context) string {
	return fmt.Sprintf("req-%d-%d", time.Now().Unix(), time.Now().Nanosecond())
}

func getEnv(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvList splits a comma-separated environment variable into its
// non-empty, trimmed elements, e.g. ES_TAGS="team:platform, staging".
func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		log.Warn().Str("key", key).Str("value", val).Msg("invalid integer environment variable, using default")
		return defaultVal
	}
	return n
}

func main() {
	lambda.StartWithOptions(Handler, lambda.WithContext(context.Background()))
}
