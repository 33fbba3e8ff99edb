// Package notify fans patient notifications out to delivery channels.
//
// Delivery is fire-and-forget: Dispatcher never returns a provider error to
// its caller. Failures are logged and counted.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hray3182/DoseLine/internal/metrics"
	"github.com/hray3182/DoseLine/internal/models"
)

type Type string

const (
	TypeReminderCreated Type = "REMINDER_CREATED"
	TypeDoseDue         Type = "DOSE_DUE"
)

// ErrNoRecipient is returned by providers that cannot address the user on their channel
var ErrNoRecipient = errors.New("no recipient for channel")

type Message struct {
	UserID   string            `json:"user_id"`
	Type     Type              `json:"type"`
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Channel  models.Channel    `json:"channel"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Provider delivers a message on one channel
type Provider interface {
	Send(ctx context.Context, msg Message) error
}

type Dispatcher struct {
	providers map[models.Channel]Provider
	limiter   *rate.Limiter
	timeout   time.Duration
	logger    *zap.Logger
	wg        sync.WaitGroup
}

func NewDispatcher(logger *zap.Logger, ratePerSec float64, timeout time.Duration) *Dispatcher {
	limit := rate.Inf
	burst := 1
	if ratePerSec > 0 {
		limit = rate.Limit(ratePerSec)
		burst = int(ratePerSec)
		if burst < 1 {
			burst = 1
		}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		providers: make(map[models.Channel]Provider),
		limiter:   rate.NewLimiter(limit, burst),
		timeout:   timeout,
		logger:    logger,
	}
}

// Register binds a provider to a channel. Not safe to call once dispatching has started.
func (d *Dispatcher) Register(channel models.Channel, p Provider) {
	d.providers[channel] = p
}

// Send delivers msg in the background
func (d *Dispatcher) Send(msg Message) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.deliver(msg)
	}()
}

// Notify sends the same notification on each channel
func (d *Dispatcher) Notify(userID string, typ Type, title, body string, channels []models.Channel, metadata map[string]string) {
	for _, ch := range channels {
		d.Send(Message{
			UserID:   userID,
			Type:     typ,
			Title:    title,
			Body:     body,
			Channel:  ch,
			Metadata: metadata,
		})
	}
}

// Wait blocks until in-flight deliveries finish
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) deliver(msg Message) {
	provider, ok := d.providers[msg.Channel]
	if !ok {
		d.logger.Debug("No provider for channel, skipping notification",
			zap.String("channel", string(msg.Channel)),
			zap.String("user_id", msg.UserID),
		)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	err := d.limiter.Wait(ctx)
	if err == nil {
		err = provider.Send(ctx, msg)
	}
	metrics.RecordNotification(string(msg.Channel), err)
	if err != nil {
		d.logger.Warn("Failed to send notification",
			zap.String("channel", string(msg.Channel)),
			zap.String("type", string(msg.Type)),
			zap.String("user_id", msg.UserID),
			zap.Error(err),
		)
	}
}
