package sns

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSNS struct{ mock.Mock }

func (m *mockSNS) Publish(ctx context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*sns.PublishOutput)
	return out, args.Error(1)
}

func (m *mockSNS) GetTopicAttributes(ctx context.Context, in *sns.GetTopicAttributesInput, _ ...func(*sns.Options)) (*sns.GetTopicAttributesOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*sns.GetTopicAttributesOutput)
	return out, args.Error(1)
}

const topic = "arn:aws:sns:us-east-1:000000000000:otp-delivery"

func TestPublish(t *testing.T) {
	client := &mockSNS{}
	client.On("Publish", mock.Anything, mock.MatchedBy(func(in *sns.PublishInput) bool {
		attr, ok := in.MessageAttributes["event"]
		return aws.ToString(in.TopicArn) == topic &&
			aws.ToString(in.Subject) == "Your OTP Verification Code" &&
			ok && aws.ToString(attr.StringValue) == "otp.issued"
	})).Return(&sns.PublishOutput{MessageId: aws.String("m-1")}, nil)

	id, err := NewPublisher(client, topic).Publish(context.Background(),
		"Your OTP Verification Code", `{"to":"a@x.com"}`, map[string]string{"event": "otp.issued"})
	require.NoError(t, err)
	assert.Equal(t, "m-1", id)
	client.AssertExpectations(t)
}

func TestPublish_Error(t *testing.T) {
	client := &mockSNS{}
	client.On("Publish", mock.Anything, mock.Anything).Return(nil, errors.New("throttled"))

	_, err := NewPublisher(client, topic).Publish(context.Background(), "", "body", nil)
	assert.ErrorContains(t, err, "sns publish: throttled")
}

func TestCheck(t *testing.T) {
	client := &mockSNS{}
	client.On("GetTopicAttributes", mock.Anything, mock.Anything).Return(&sns.GetTopicAttributesOutput{}, nil)
	assert.NoError(t, NewPublisher(client, topic).Check(context.Background()))

	assert.Error(t, NewPublisher(client, "").Check(context.Background()))
}
