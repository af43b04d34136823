package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

type Connection struct {
	sqs *sqs.Client
	sns *sns.Client

	queueURL string
	topicARN string
}

func New(awscfg *aws.Config, queueURL, topicARN string) (*Connection, error) {
	return &Connection{
		sqs:      sqs.NewFromConfig(*awscfg),
		sns:      sns.NewFromConfig(*awscfg),
		queueURL: queueURL,
		topicARN: topicARN,
	}, nil
}

func (c *Connection) SendSQSMessage(ctx context.Context, message string) error {
	if c.queueURL == "" {
		return fmt.Errorf("SQS queue URL is not configured")
	}

	_, err := c.sqs.SendMessage(ctx, &sqs.SendMessageInput{
		MessageBody: &message,
		QueueUrl:    &c.queueURL,
	})

	return err
}

// SendSQSMessageWithAttributes sends a message carrying string message
// attributes, used to mark replay messages (originalEventSource) so the
// trigger classifier can tell them apart from primary notifications
// on the next invocation.
func (c *Connection) SendSQSMessageWithAttributes(ctx context.Context, message string, attrs map[string]string) error {
	if c.queueURL == "" {
		return fmt.Errorf("SQS queue URL is not configured")
	}

	msgAttrs := make(map[string]types.MessageAttributeValue, len(attrs))
	for k, v := range attrs {
		msgAttrs[k] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(v),
		}
	}

	_, err := c.sqs.SendMessage(ctx, &sqs.SendMessageInput{
		MessageBody:       &message,
		QueueUrl:          &c.queueURL,
		MessageAttributes: msgAttrs,
	})

	return err
}

func (c *Connection) PublishSNSMessage(ctx context.Context, message string) error {
	if c.topicARN == "" {
		return fmt.Errorf("SNS topic ARN is not configured")
	}
	
	_, err := c.sns.Publish(ctx, &sns.PublishInput{
		Message:  &message,
		TopicArn: &c.topicARN,
	})

	return err
}

func (c *Connection) BroadCastEvent(ctx context.Context, message string) error {
	if c.queueURL != "" {
		err := c.SendSQSMessage(ctx, message)
		if err != nil {
			return err
		}
	}

	if c.topicARN != "" {
		err := c.PublishSNSMessage(ctx, message)
		if err != nil {
			return err
		}
	}

	return nil
}
