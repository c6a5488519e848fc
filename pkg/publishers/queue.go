package publishers

import (
	"context"
	"fmt"
)

// queuePublisher adapts a sender to the Publisher interface.
type queuePublisher struct {
	id     string
	typ    string
	sender sender
}

func (q *queuePublisher) ID() string   { return q.id }
func (q *queuePublisher) Type() string { return q.typ }

func (q *queuePublisher) Publish(ctx context.Context, evt Event) error {
	if err := q.sender.Send(ctx, evt); err != nil {
		return fmt.Errorf("%s publisher %s: %w", q.typ, q.id, err)
	}
	return nil
}

// Close releases the underlying transport.
func (q *queuePublisher) Close() error {
	return q.sender.Close()
}
