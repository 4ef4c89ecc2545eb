package handlers

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/itskum47/mailforge/internal/collaborators/notify"
	"github.com/itskum47/mailforge/internal/task"
)

// SendNotificationHandler implements spec §4.5's send_notification:
// deliver over the requested channel unless the user has muted it or it
// falls within their quiet hours, in which case skipping counts as success.
type SendNotificationHandler struct {
	Prefs    notify.PreferenceStore
	Notifier notify.Notifier
	Log      *zap.Logger
	Now      func() time.Time // overridable for tests; defaults to time.Now
}

func (h *SendNotificationHandler) Handle(ctx context.Context, t *task.Task, progress ProgressFunc) error {
	var p task.SendNotificationPayload
	if err := task.DecodeAndValidate(t.Payload, &p); err != nil {
		return err
	}
	channel := notify.Channel(p.Channel)

	prefs, err := h.Prefs.GetPreferences(ctx, p.UserID)
	if err != nil {
		return task.NewTransientError(fmt.Errorf("loading preferences for %q: %w", p.UserID, err))
	}
	progress(30)

	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	if prefs.Muted(channel) {
		h.Log.Debug("send_notification: channel muted, skipping", zap.String("user_id", p.UserID), zap.String("channel", p.Channel))
		progress(100)
		return nil
	}
	if prefs.InQuietHours(now().Hour()) {
		h.Log.Debug("send_notification: quiet hours, skipping", zap.String("user_id", p.UserID), zap.String("channel", p.Channel))
		progress(100)
		return nil
	}
	progress(60)

	if err := h.Notifier.Send(ctx, channel, p.UserID, p.Title, p.Body); err != nil {
		return task.NewTransientError(fmt.Errorf("delivering to %q over %q: %w", p.UserID, p.Channel, err))
	}
	progress(100)
	return nil
}
