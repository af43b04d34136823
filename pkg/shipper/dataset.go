package shipper

import "strings"

// datasetRule is one entry of the ordered substring-match table that
// classifies a source object key into a dataset name. Rules are
// evaluated in order; the first whose Contains substring appears in the
// object key wins.
type datasetRule struct {
	Contains string
	Dataset  string
}

// datasetTable mirrors the original classifier's substring table.
// Order matters: more specific substrings are listed before the
// general ones they could otherwise be shadowed by.
var datasetTable = []datasetRule{
	{Contains: "/CloudTrail/", Dataset: "aws.cloudtrail"},
	{Contains: "/CloudTrail-Digest/", Dataset: "aws.cloudtrail"},
	{Contains: "/CloudTrail-Insight/", Dataset: "aws.cloudtrail"},
	{Contains: "exportedlogs", Dataset: "aws.cloudwatch_logs"},
	{Contains: "awslogs", Dataset: "aws.cloudwatch_logs"},
	{Contains: "/elasticloadbalancing/", Dataset: "aws.elb_logs"},
	{Contains: "/network-firewall/", Dataset: "aws.firewall_logs"},
	{Contains: "lambda", Dataset: "aws.lambda"},
	{Contains: "/SMSUsageReports/", Dataset: "aws.sns"},
	{Contains: "/StorageLens/", Dataset: "aws.s3_storage_lens"},
	{Contains: "/vpcflowlogs/", Dataset: "aws.vpcflow"},
	{Contains: "/WAFLogs/", Dataset: "aws.waf"},
}

// defaultDataset is used when the object key matches none of the
// classification rules.
const defaultDataset = "generic"

// ClassifyDataset maps a source object key to a dataset name used to
// build the destination index: "logs-<dataset>-<namespace>".
func ClassifyDataset(objectKey string) string {
	for _, rule := range datasetTable {
		if strings.Contains(objectKey, rule.Contains) {
			return rule.Dataset
		}
	}
	return defaultDataset
}

// IndexName builds the destination data-stream-style index name for a
// dataset and namespace.
func IndexName(dataset, namespace string) string {
	return "logs-" + dataset + "-" + namespace
}
