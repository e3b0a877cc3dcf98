package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"

	"github.com/loomchat/loom/server/internal/fanout"
)

// runWatch subscribes to the user's private topic and prints each live
// event until interrupted.
func runWatch(natsURL, user string, out io.Writer) error {
	nc, err := nats.Connect(natsURL, nats.Name("loomctl-watch"))
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Close()

	topic := fanout.TopicFor(user)
	sub, err := nc.Subscribe(topic, func(m *nats.Msg) {
		evt, err := fanout.Decode(m.Data)
		if err != nil {
			fmt.Fprintf(out, "undecodable event: %v\n", err)
			return
		}
		switch e := evt.(type) {
		case fanout.ChannelMessageEvent:
			fmt.Fprintf(out, "[%s] #%s %s: %s\n", e.CreationTime.Format("15:04:05"), e.ChannelID, e.Sender.DisplayName, e.Content)
		case fanout.DirectMessageEvent:
			fmt.Fprintf(out, "[%s] dm:%s %s: %s\n", e.CreationTime.Format("15:04:05"), e.DMChannelID, e.Sender.DisplayName, e.Content)
		case fanout.ThreadReplyEvent:
			fmt.Fprintf(out, "[%s] thread:%s %s: %s\n", e.CreationTime.Format("15:04:05"), e.ParentMessageID, e.Sender.DisplayName, e.Content)
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	fmt.Fprintf(out, "watching %s\n", topic)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	return nil
}
