package interfaces

import "context"

// EventPublisher delivers post-commit notifications to interested
// consumers. Delivery is best-effort from the engine's point of view:
// a publish failure never fails the monetary operation.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event any) error
}
