package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"cloud.google.com/go/pubsub/v2/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishToEmulator(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })
	t.Setenv("PUBSUB_EMULATOR_HOST", srv.Addr)

	_, err := srv.GServer.CreateTopic(ctx, &pubsubpb.Topic{Name: "projects/demo/topics/runs"})
	require.NoError(t, err)

	pub, err := Dial(ctx, "demo", "runs")
	require.NoError(t, err)
	t.Cleanup(pub.Close)

	id, err := pub.Publish(ctx, "run.completed", map[string]any{"run_id": "r1", "saved": 3})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "run.completed", msgs[0].Attributes["event"])
	var body map[string]any
	require.NoError(t, json.Unmarshal(msgs[0].Data, &body))
	assert.Equal(t, "r1", body["run_id"])
}

func TestDialRequiresProjectAndTopic(t *testing.T) {
	t.Parallel()

	_, err := Dial(context.Background(), "", "runs")
	require.Error(t, err)
}

func TestPublishWithoutSender(t *testing.T) {
	t.Parallel()

	var p *Publisher
	_, err := p.Publish(context.Background(), "x", nil)
	require.Error(t, err)
	p.Close()
}
