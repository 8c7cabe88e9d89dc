package push

import "context"

// Notification is addressed to an application user. The push service owns
// device lookup and delivery.
type Notification struct {
	IdempotencyKey string            `json:"idempotencyKey"`
	UserRef        string            `json:"userRef"`
	Title          string            `json:"title"`
	Body           string            `json:"body"`
	Data           map[string]string `json:"data,omitempty"`
}

type Provider interface {
	Send(ctx context.Context, notification Notification) error
}

type NoOpProvider struct{}

func (p *NoOpProvider) Send(ctx context.Context, notification Notification) error {
	return nil
}
