// Package notify declares the Notification Delivery and Preference Store
// external collaborators send_notification depends on (spec §4.5): per-user
// channel preferences and quiet hours, plus per-channel delivery. Like
// ingress's AuthProvider/RateLimiter, push and SMS delivery are out of scope
// for this module's concrete adapters — only the interfaces are specified
// here, with email delivery wired to the Outbound Mail Transport collaborator
// already in this module.
package notify

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/itskum47/mailforge/internal/collaborators/mailtransport"
)

// Channel is one of the four delivery channels spec §4.5 names.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
	ChannelSMS   Channel = "sms"
	ChannelInApp Channel = "in_app"
)

// Preferences are a user's notification settings.
type Preferences struct {
	MutedChannels  map[Channel]bool
	QuietHoursFrom int // hour of day, 0-23, inclusive
	QuietHoursTo   int // hour of day, 0-23, exclusive
}

// Muted reports whether ch is muted outright for this user.
func (p Preferences) Muted(ch Channel) bool {
	return p.MutedChannels != nil && p.MutedChannels[ch]
}

// InQuietHours reports whether hour (0-23, in the user's local time) falls
// within the configured quiet window. A window where From == To means no
// quiet hours are configured.
func (p Preferences) InQuietHours(hour int) bool {
	if p.QuietHoursFrom == p.QuietHoursTo {
		return false
	}
	if p.QuietHoursFrom < p.QuietHoursTo {
		return hour >= p.QuietHoursFrom && hour < p.QuietHoursTo
	}
	// Wraps past midnight, e.g. 22 -> 7.
	return hour >= p.QuietHoursFrom || hour < p.QuietHoursTo
}

// PreferenceStore resolves a user's notification preferences.
type PreferenceStore interface {
	GetPreferences(ctx context.Context, userID string) (Preferences, error)
}

// Notifier delivers one notification over a single channel.
type Notifier interface {
	Send(ctx context.Context, channel Channel, userID, title, body string) error
}

// StaticPreferenceStore returns the same Preferences for every user — the
// in-memory default for standalone/dev mode, mirroring docstore.MemoryStore
// and blobstore.MemoryStore's role for their own collaborators.
type StaticPreferenceStore struct {
	Preferences Preferences
}

func (s StaticPreferenceStore) GetPreferences(ctx context.Context, userID string) (Preferences, error) {
	return s.Preferences, nil
}

// MailNotifier delivers the email channel via the Outbound Mail Transport
// collaborator and logs (rather than delivers) push/sms/in_app, since no
// concrete adapter for those ships with this module.
type MailNotifier struct {
	Transport  mailtransport.Transport
	FromAddr   string
	UserEmails func(ctx context.Context, userID string) (string, error)
	Log        *zap.Logger

	mu      sync.Mutex
	logged  int
}

func (n *MailNotifier) Send(ctx context.Context, channel Channel, userID, title, body string) error {
	if channel != ChannelEmail || n.Transport == nil || n.UserEmails == nil {
		n.mu.Lock()
		n.logged++
		n.mu.Unlock()
		if n.Log != nil {
			n.Log.Info("notify: delivering out-of-band channel via log sink",
				zap.String("channel", string(channel)), zap.String("user_id", userID), zap.String("title", title))
		}
		return nil
	}
	to, err := n.UserEmails(ctx, userID)
	if err != nil {
		return fmt.Errorf("notify: resolving email for %q: %w", userID, err)
	}
	return n.Transport.Send(ctx, mailtransport.Message{
		Personalizations: []mailtransport.Personalization{{To: []string{to}}},
		From:             mailtransport.From{Email: n.FromAddr},
		Subject:          title,
		Content:          []mailtransport.Content{{Type: "text/plain", Value: body}},
	})
}
