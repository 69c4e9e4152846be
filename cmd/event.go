package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/frahmantamala/tenant-identity/internal/core/events"
	"github.com/frahmantamala/tenant-identity/pkg/logger"
	"github.com/spf13/cobra"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Event management commands",
	Long:  `Publish events on an in-process bus to inspect how handlers react`,
}

var publishEventCmd = &cobra.Command{
	Use:   "publish [event-type]",
	Short: "Publish a test event",
	Long:  `Publish a test event to the event bus for testing and debugging. Delivery event types go through the delivery logger.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		publishTestEvent(args[0])
	},
}

var (
	eventData  string
	eventEmail string
)

func publishTestEvent(eventType string) {
	lg := logger.LoggerWrapper()

	eventBus := events.NewEventBus(lg)
	events.SubscribeDeliveryLogger(eventBus, lg)
	events.SubscribeAuditLogger(eventBus, lg)

	eventBus.Subscribe(eventType, func(ctx context.Context, event events.Event) error {
		lg.Info("test handler received event",
			"event_id", event.EventID(),
			"event_type", event.EventType(),
			"payload", event.Payload())
		return nil
	})

	var event events.Event = events.BaseEvent{
		ID:        fmt.Sprintf("test-%d", time.Now().Unix()),
		Type:      eventType,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"message": eventData,
			"source":  "cli-command",
		},
	}
	for _, t := range events.DeliveryEventTypes {
		if t == eventType {
			event = events.NewDeliveryRequestedEvent(eventType, "cli", eventEmail, eventData, time.Now().Add(time.Minute))
			break
		}
	}

	lg.Info("publishing test event", "event_type", eventType, "event_id", event.EventID())

	ctx := context.Background()
	if err := eventBus.Publish(ctx, event); err != nil {
		lg.Error("failed to publish event", "error", err)
		return
	}

	drainCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := eventBus.Drain(drainCtx); err != nil {
		lg.Error("handlers did not finish", "error", err)
		return
	}
	lg.Info("test event published successfully")
}

func init() {
	publishEventCmd.Flags().StringVar(&eventData, "data", "test message", "Event data message")
	publishEventCmd.Flags().StringVar(&eventEmail, "email", "someone@example.com", "Recipient for delivery events")

	eventCmd.AddCommand(publishEventCmd)

	rootCmd.AddCommand(eventCmd)
}
