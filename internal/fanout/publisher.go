package fanout

import (
	"context"

	"github.com/rs/zerolog"
)

// Publisher pushes one event to one recipient's private topic.
type Publisher interface {
	Publish(ctx context.Context, userID string, evt Event) error
}

// TopicFor names a recipient's private topic deterministically.
func TopicFor(userID string) string { return "user-" + userID }

// Deliver publishes evt to every recipient. Failures are logged, never
// retried, and never abort delivery to the remaining recipients.
func Deliver(ctx context.Context, pub Publisher, log zerolog.Logger, recipients []string, evt Event) {
	for _, userID := range recipients {
		if err := pub.Publish(ctx, userID, evt); err != nil {
			publishFailures.Inc()
			log.Warn().Err(err).Str("userId", userID).Str("kind", string(evt.Kind())).
				Msg("fanout publish failed")
			continue
		}
		eventsPublished.Inc()
	}
}
