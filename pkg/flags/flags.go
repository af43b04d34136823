package flags

// S3Processor is the pipeline's environment-driven configuration, grown
// from the teacher's SNS/SQS topic and queue flags to cover the
// Elasticsearch shipper and the decoding stack's content-type toggles.
type S3Processor struct {
	SNSTopicArn string
	SQSQueueURL string

	// Elasticsearch Shipper
	ElasticsearchURL string
	ElasticCloudID   string
	ESUsername       string
	ESPassword       string
	ESAPIKey         string
	ESNamespace      string
	ESTags           []string
	BatchMaxActions  int
	BatchMaxBytes    int

	// Storage Reader / JSON Collector toggles
	JSONContentType          string
	ExpandEventListFromField string
}
