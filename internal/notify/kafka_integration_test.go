//go:build integration

package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"chaperone/internal/platform/config"
	"chaperone/internal/platform/kafka"
	id "chaperone/pkg/domain"
	"chaperone/pkg/testutil/containers"
)

func TestKafkaPublisherRoundTrip(t *testing.T) {
	rp := containers.GetManager().GetRedpanda(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	topic := "chaperone.notifications.test"
	client, err := kafka.New(ctx, config.KafkaConfig{Brokers: rp.Brokers, NotificationTopic: topic})
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, kafka.EnsureTopic(ctx, client, topic, 1, 1))

	recipient := id.NewParticipantID()
	sent := New(KindMeetingScheduled, "approval-9", []id.ParticipantID{recipient}, map[string]any{"place": "family home"}, time.Now().UTC())
	require.NoError(t, NewKafkaPublisher(client, topic).Publish(ctx, sent))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(rp.Brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	require.NoError(t, fetches.Err())
	records := fetches.Records()
	require.NotEmpty(t, records)
	require.Equal(t, recipient.String(), string(records[0].Key))

	var got Notification
	require.NoError(t, json.Unmarshal(records[0].Value, &got))
	require.Equal(t, sent.ID, got.ID)
	require.Equal(t, KindMeetingScheduled, got.Kind)
	require.Equal(t, "family home", got.Data["place"])
}
