// Package notify delivers "interested lead" notifications to every
// configured channel.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/brandon/mailsync/internal/config"
	"github.com/brandon/mailsync/pkg/types"
)

// DefaultChannelTimeout bounds a single channel delivery.
const DefaultChannelTimeout = 10 * time.Second

// EventInterested is the event name carried by every payload.
const EventInterested = "email.interested"

// Notification is one delivery attempt for a document.
type Notification struct {
	DeliveryID string
	Document   *types.EmailDocument
}

// Channel is a single notification destination.
type Channel interface {
	Name() string
	Send(ctx context.Context, n *Notification) error
}

// NotificationError reports a failed delivery on one channel.
type NotificationError struct {
	Channel string
	Err     error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notification error (%s): %v", e.Channel, e.Err)
}

func (e *NotificationError) Unwrap() error {
	return e.Err
}

// IsNotificationError reports whether err is, or wraps, a NotificationError.
func IsNotificationError(err error) bool {
	var notifyErr *NotificationError
	return errors.As(err, &notifyErr)
}

// ChannelResult is the outcome of one channel for one notification.
type ChannelResult struct {
	Channel    string
	DeliveryID string
	Err        error
	Duration   time.Duration
}

// Dispatcher fans a notification out to its channels.
type Dispatcher struct {
	channels []Channel
	timeout  time.Duration
	logger   *logrus.Logger
}

// NewDispatcher creates a dispatcher over channels.
func NewDispatcher(channels []Channel, timeout time.Duration, logger *logrus.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultChannelTimeout
	}
	return &Dispatcher{
		channels: channels,
		timeout:  timeout,
		logger:   logger,
	}
}

// FromConfig builds a dispatcher with every channel enabled in cfg.
func FromConfig(cfg config.NotifyConfig, logger *logrus.Logger) *Dispatcher {
	var channels []Channel
	if cfg.SlackWebhookURL != "" {
		channels = append(channels, NewSlackChannel(cfg.SlackWebhookURL))
	}
	if cfg.WebhookURL != "" {
		channels = append(channels, NewWebhookChannel(cfg.WebhookURL))
	}
	if cfg.SMTPHost != "" {
		channels = append(channels, NewEmailChannel(cfg))
	}
	if cfg.RedisAddr != "" {
		channels = append(channels, NewRedisChannel(cfg))
	}

	names := make([]string, len(channels))
	for i, ch := range channels {
		names[i] = ch.Name()
	}
	logger.WithField("channels", names).Info("Notification channels configured")

	return NewDispatcher(channels, DefaultChannelTimeout, logger)
}

// Channels returns the names of the configured channels.
func (d *Dispatcher) Channels() []string {
	names := make([]string, len(d.channels))
	for i, ch := range d.channels {
		names[i] = ch.Name()
	}
	return names
}

// Close releases channel resources such as Redis connections.
func (d *Dispatcher) Close() error {
	var errs []error
	for _, ch := range d.channels {
		if c, ok := ch.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}

// Notify sends doc to every channel concurrently and returns one result per
// channel, in channel order. A failing channel never affects the others.
func (d *Dispatcher) Notify(ctx context.Context, doc *types.EmailDocument) []ChannelResult {
	n := &Notification{
		DeliveryID: uuid.NewString(),
		Document:   doc,
	}

	results := make([]ChannelResult, len(d.channels))
	var wg sync.WaitGroup
	for i, ch := range d.channels {
		wg.Add(1)
		go func(i int, ch Channel) {
			defer wg.Done()
			results[i] = d.send(ctx, ch, n)
		}(i, ch)
	}
	wg.Wait()

	return results
}

func (d *Dispatcher) send(ctx context.Context, ch Channel, n *Notification) (result ChannelResult) {
	result = ChannelResult{Channel: ch.Name(), DeliveryID: n.DeliveryID}
	start := time.Now()

	log := d.logger.WithFields(logrus.Fields{
		"channel":     ch.Name(),
		"delivery_id": n.DeliveryID,
		"doc_id":      n.Document.ID,
	})

	defer func() {
		if r := recover(); r != nil {
			result.Err = &NotificationError{Channel: ch.Name(), Err: fmt.Errorf("panic: %v", r)}
		}
		result.Duration = time.Since(start)
		if result.Err != nil {
			log.WithError(result.Err).Warn("Notification failed")
		} else {
			log.WithField("duration", result.Duration).Info("Notification sent")
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := ch.Send(ctx, n); err != nil {
		result.Err = &NotificationError{Channel: ch.Name(), Err: err}
	}
	return result
}
