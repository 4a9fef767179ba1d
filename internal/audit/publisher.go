package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Publisher drains the outbox channel and produces each event to the audit
// topic. It runs as a background goroutine for the life of the process;
// produce failures are logged and the event is dropped (the store already
// holds it).
type Publisher struct {
	client *kgo.Client
	inbox  <-chan Event
	logger *slog.Logger
}

func NewPublisher(client *kgo.Client, inbox <-chan Event, logger *slog.Logger) *Publisher {
	return &Publisher{client: client, inbox: inbox, logger: logger}
}

func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			p.client.Flush(context.Background())
			return ctx.Err()
		case event := <-p.inbox:
			p.produce(ctx, event)
		}
	}
}

func (p *Publisher) produce(ctx context.Context, event Event) {
	value, err := json.Marshal(event)
	if err != nil {
		p.logger.ErrorContext(ctx, "audit event marshal failed", "action", event.Action, "error", err)
		return
	}
	record := &kgo.Record{
		// Key by claim so consumers see one claim's trail in order.
		Key:   []byte(strconv.FormatUint(uint64(event.ClaimID), 10)),
		Value: value,
	}
	p.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			p.logger.Error("audit publish failed",
				"action", event.Action,
				"claim_id", event.ClaimID,
				"error", err,
			)
		}
	})
}
