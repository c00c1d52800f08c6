package services

import (
	"context"
	"time"

	"dividi/internal/amqp"
)

// ChangePublisher announces store writes to other processes. *amqp.Client
// satisfies it.
type ChangePublisher interface {
	PublishChange(ctx context.Context, msg *amqp.ChangeMessage) error
}

type options struct {
	publisher ChangePublisher
	metrics   *Metrics
	location  *time.Location
	now       func() time.Time
	origin    string
}

type Option func(*options)

// WithPublisher enables change events. Without it writes are local only.
func WithPublisher(p ChangePublisher) Option {
	return func(o *options) { o.publisher = p }
}

func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithLocation sets the zone used to derive an expense's month.
func WithLocation(loc *time.Location) Option {
	return func(o *options) { o.location = loc }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithOrigin tags published events so this process can ignore its own.
func WithOrigin(origin string) Option {
	return func(o *options) { o.origin = origin }
}

func buildOptions(opts []Option) options {
	o := options{location: time.Local, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.location == nil {
		o.location = time.Local
	}
	return o
}
