package sns

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// API is the subset of the SNS client the publisher uses.
type API interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
	GetTopicAttributes(ctx context.Context, in *sns.GetTopicAttributesInput, optFns ...func(*sns.Options)) (*sns.GetTopicAttributesOutput, error)
}

// NewClient creates an SNS client, pointing it at endpoint when set (LocalStack).
func NewClient(awsCfg aws.Config, endpoint string) *sns.Client {
	var opts []func(*sns.Options)
	if endpoint != "" {
		opts = append(opts, func(o *sns.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}
	return sns.NewFromConfig(awsCfg, opts...)
}

// Publisher posts messages to a single topic for downstream delivery.
type Publisher struct {
	client   API
	topicARN string
}

func NewPublisher(client API, topicARN string) *Publisher {
	return &Publisher{client: client, topicARN: topicARN}
}

// Publish sends body to the topic. String attributes are attached as
// message attributes so subscribers can filter on them.
func (p *Publisher) Publish(ctx context.Context, subject, body string, attrs map[string]string) (string, error) {
	in := &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Message:  aws.String(body),
	}
	if subject != "" {
		in.Subject = aws.String(subject)
	}
	if len(attrs) > 0 {
		in.MessageAttributes = make(map[string]types.MessageAttributeValue, len(attrs))
		for k, v := range attrs {
			in.MessageAttributes[k] = types.MessageAttributeValue{
				DataType:    aws.String("String"),
				StringValue: aws.String(v),
			}
		}
	}
	out, err := p.client.Publish(ctx, in)
	if err != nil {
		return "", fmt.Errorf("sns publish: %w", err)
	}
	return aws.ToString(out.MessageId), nil
}

// Check verifies the topic exists and is reachable.
func (p *Publisher) Check(ctx context.Context) error {
	if p.topicARN == "" {
		return fmt.Errorf("sns topic arn not configured")
	}
	_, err := p.client.GetTopicAttributes(ctx, &sns.GetTopicAttributesInput{
		TopicArn: aws.String(p.topicARN),
	})
	if err != nil {
		return fmt.Errorf("sns topic attributes: %w", err)
	}
	return nil
}
