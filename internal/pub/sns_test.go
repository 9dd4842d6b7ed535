package pub

import (
	"apollocfg/internal/types"
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSNS struct {
	inputs []*sns.PublishInput
}

func (f *fakeSNS) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.inputs = append(f.inputs, params)
	return &sns.PublishOutput{}, nil
}

func TestPublishChange(t *testing.T) {
	fake := &fakeSNS{}
	p := NewSNS(fake, "arn:aws:sns:us-east-1:000000000000:apollo-changes")

	event := types.ChangeEvent{
		AppID:          "app",
		Cluster:        "default",
		Namespace:      "application",
		ReleaseKey:     "r2",
		NotificationID: 5,
		Source:         types.SourceFresh.String(),
		Changes: []types.Change{
			{Key: "database.host", OldValue: "localhost", NewValue: "db", Type: types.ChangeModified},
		},
		At: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, p.PublishChange(context.Background(), event))
	require.Len(t, fake.inputs, 1)

	in := fake.inputs[0]
	assert.Equal(t, "arn:aws:sns:us-east-1:000000000000:apollo-changes", *in.TopicArn)
	assert.Equal(t, "application", *in.MessageAttributes["namespace"].StringValue)
	assert.Equal(t, "app", *in.MessageAttributes["appId"].StringValue)
	assert.Equal(t, "application/json", *in.MessageAttributes["content-type"].StringValue)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(*in.Message), &got))
	assert.Equal(t, "application", got["namespace"])
	assert.Equal(t, "r2", got["release_key"])
	changes := got["changes"].([]any)
	require.Len(t, changes, 1)
	assert.Equal(t, "modified", changes[0].(map[string]any)["type"])
}
