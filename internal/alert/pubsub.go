package alert

import (
	"context"
	"encoding/json"
	"fmt"

	"gocloud.dev/pubsub"
	_ "gocloud.dev/pubsub/mempubsub"
	_ "gocloud.dev/pubsub/rabbitpubsub"
)

type pubsubAlertNotifier struct {
	topic *pubsub.Topic
}

// NewPubSubAlertNotifier creates a notifier that publishes alerts to a
// pub/sub topic. The caller owns the topic's lifecycle.
func NewPubSubAlertNotifier(topic *pubsub.Topic) AlertNotifier {
	return &pubsubAlertNotifier{topic: topic}
}

// OpenTopic opens a gocloud pub/sub topic from its URL. Supported schemes
// are mem:// and rabbit://.
func OpenTopic(ctx context.Context, url string) (*pubsub.Topic, error) {
	topic, err := pubsub.OpenTopic(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to open alert topic %q: %w", url, err)
	}
	return topic, nil
}

func (n *pubsubAlertNotifier) Notify(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	if err := n.topic.Send(ctx, &pubsub.Message{
		Body: body,
		Metadata: map[string]string{
			"topic":      alert.AlertTopic(),
			"webhook_id": alert.AlertWebhookID(),
		},
	}); err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}

	return nil
}
