package notify

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	"github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/your-org/presence/internal/models"
)

// Dispatcher turns notification events into human-readable messages and
// delivers them over the configured shoutrrr service URLs.
type Dispatcher struct {
	sender *router.ServiceRouter
	logger *slog.Logger
}

// NewDispatcher validates the service URLs up front. An empty URL list is
// allowed and produces a dispatcher that only logs.
func NewDispatcher(urls []string, logger *slog.Logger) (*Dispatcher, error) {
	d := &Dispatcher{logger: logger}

	if len(urls) > 0 {
		sender, err := shoutrrr.CreateSender(urls...)
		if err != nil {
			return nil, fmt.Errorf("create notification sender: %w", err)
		}
		sender.Timeout = 10 * time.Second
		sender.SetLogger(log.New(io.Discard, "", 0))
		d.sender = sender
	}

	return d, nil
}

// Dispatch formats and sends one event. Errors from individual services
// are collapsed into the first failure so the consumer can retry the
// whole message.
func (d *Dispatcher) Dispatch(ctx context.Context, ev models.NotificationEvent) error {
	title, body := render(ev)

	d.logger.Info("dispatching notification",
		"kind", ev.Kind,
		"outcome_id", ev.OutcomeID,
		"register_number", ev.RegisterNumber)

	if d.sender == nil {
		return nil
	}

	params := stypes.Params{}
	params.SetTitle(title)

	errs := d.sender.Send(body, &params)
	for _, err := range errs {
		if err != nil {
			return fmt.Errorf("send notification: %w", err)
		}
	}
	return nil
}

func render(ev models.NotificationEvent) (title, body string) {
	who := ev.RegisterNumber
	if ev.PersonName != "" {
		who = fmt.Sprintf("%s (%s)", ev.PersonName, ev.RegisterNumber)
	}
	when := ev.CapturedAt.Format("15:04:05")

	switch ev.Kind {
	case models.NotifyLate:
		return "Late arrival", fmt.Sprintf("%s arrived late at %s", who, when)
	case models.NotifyReviewRequired:
		return "Review required", fmt.Sprintf("Capture at %s needs manual review (best guess: %s)", when, who)
	case models.NotifyTokenUnreadable:
		return "Token unreadable", fmt.Sprintf("ID token could not be read at %s; matched %s by face", when, who)
	default:
		return "Attendance event", fmt.Sprintf("%s: %s at %s", ev.Kind, who, when)
	}
}
