package pub

import (
	"apollocfg/internal/types"
	"context"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/goccy/go-json"
)

const SNSEndpointKey = "SNS_ENDPOINT"

// snsAPI is the part of the SNS client used here.
type snsAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNS publishes change events as JSON messages to one topic.
type SNS struct {
	cli      snsAPI
	topicARN string
}

func NewSNS(c snsAPI, topicARN string) *SNS { return &SNS{cli: c, topicARN: topicARN} }

// SNSFromEnv builds the publisher from the default AWS config. SNS_ENDPOINT points it at a local emulator.
func SNSFromEnv(ctx context.Context, topicARN string) (*SNS, error) {
	var snsEndpoint *string
	se := os.Getenv(SNSEndpointKey)
	if se != "" {
		snsEndpoint = aws.String(se)
	}

	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}

	snsClient := sns.NewFromConfig(awsCfg, func(o *sns.Options) {
		if snsEndpoint != nil {
			o.BaseEndpoint = snsEndpoint
			if o.Region == "" {
				o.Region = "us-east-1"
			}
			credProvider := credentials.NewStaticCredentialsProvider("test", "test", "")
			o.Credentials = credProvider
		}
	})
	return NewSNS(snsClient, topicARN), nil
}

func (s *SNS) PublishChange(ctx context.Context, event types.ChangeEvent) error {
	b, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return s.PublishRaw(ctx, s.topicARN, b, map[string]string{
		"appId":     event.AppID,
		"namespace": event.Namespace,
	})
}

func (s *SNS) PublishRaw(ctx context.Context, arn string, payload []byte, attrs map[string]string) error {
	attributes := map[string]snstypes.MessageAttributeValue{
		"content-type": {DataType: aws.String("String"), StringValue: aws.String("application/json")},
	}
	for k, v := range attrs {
		if v == "" {
			continue
		}
		attributes[k] = snstypes.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
	}
	_, err := s.cli.Publish(ctx, &sns.PublishInput{
		TopicArn:          &arn,
		Message:           aws.String(string(payload)),
		MessageAttributes: attributes,
	})
	return err
}
