package handlers

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/itskum47/mailforge/internal/collaborators/blobstore"
	"github.com/itskum47/mailforge/internal/collaborators/docstore"
	"github.com/itskum47/mailforge/internal/collaborators/mailtransport"
	"github.com/itskum47/mailforge/internal/collaborators/notify"
	"github.com/itskum47/mailforge/internal/index"
	"github.com/itskum47/mailforge/internal/kv"
	"github.com/itskum47/mailforge/internal/lock"
	"github.com/itskum47/mailforge/internal/observability"
	"github.com/itskum47/mailforge/internal/task"
)

func noProgress(int) {}

func encodePayload(t *testing.T, v any) json.RawMessage {
	t.Helper()
	buf, err := json.Marshal(v)
	require.NoError(t, err)
	return buf
}

func TestProcessEmailHandlerPersistsAndIndexes(t *testing.T) {
	ctx := context.Background()
	docs := docstore.NewMemoryStore()
	store := kv.NewMemoryStore()
	ix := index.New(store, lock.NewManager(store), observability.Nop())
	h := &ProcessEmailHandler{Docs: docs, Index: ix, Log: observability.Nop()}

	payload := task.ProcessEmailPayload{
		MessageID:   "msg-1",
		From:        "alice@example.com",
		To:          []string{"bob@example.com"},
		Subject:     "hello world",
		TextContent: "a simple greeting",
	}
	tk := &task.Task{ID: "t1", Payload: encodePayload(t, payload), CreatedAt: time.Now()}

	require.NoError(t, h.Handle(ctx, tk, noProgress))

	e, ok, err := docs.GetEmailByMessageID(ctx, "msg-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "hello world", e.Subject)
	require.NotEmpty(t, e.ThreadID)
}

func TestProcessEmailHandlerSkipsDuplicateMessageID(t *testing.T) {
	ctx := context.Background()
	docs := docstore.NewMemoryStore()
	h := &ProcessEmailHandler{Docs: docs, Log: observability.Nop()}

	payload := task.ProcessEmailPayload{
		MessageID: "dup-1",
		From:      "a@example.com",
		To:        []string{"b@example.com"},
	}
	require.NoError(t, docs.PutEmail(ctx, &docstore.Email{ID: "e0", MessageID: "dup-1"}))

	tk := &task.Task{ID: "t2", Payload: encodePayload(t, payload), CreatedAt: time.Now()}
	require.NoError(t, h.Handle(ctx, tk, noProgress))
}

type fakeTransport struct {
	sent []mailtransport.Message
}

func (f *fakeTransport) Send(ctx context.Context, msg mailtransport.Message) error {
	f.sent = append(f.sent, msg)
	return nil
}

func TestSendEmailHandlerAssignsMessageID(t *testing.T) {
	ctx := context.Background()
	transport := &fakeTransport{}
	h := &SendEmailHandler{Transport: transport, Log: observability.Nop()}

	payload := task.SendEmailPayload{
		MessageID:   "m-send-1",
		From:        "a@example.com",
		To:          []string{"b@example.com"},
		Subject:     "subject",
		TextContent: "body",
	}
	tk := &task.Task{ID: "t3", Payload: encodePayload(t, payload)}
	require.NoError(t, h.Handle(ctx, tk, noProgress))
	require.Len(t, transport.sent, 1)
	require.Contains(t, transport.sent[0].Headers["Message-ID"], "@mailforge")
}

func TestProcessAttachmentsHandlerRejectsDisallowedMIME(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemoryStore()
	require.NoError(t, blobs.Put(ctx, "uploads/raw-1", []byte("binary"), nil, nil))
	h := &ProcessAttachmentsHandler{Blobs: blobs, Log: observability.Nop()}

	payload := task.ProcessAttachmentsPayload{
		EmailID:      "e1",
		MaxSizeBytes: 1024,
		AllowedMIME:  []string{"image/png"},
		Attachments: []task.AttachmentRef{
			{Filename: "evil.exe", ContentType: "application/x-msdownload", SizeBytes: 10, BlobKey: "uploads/raw-1"},
		},
	}
	tk := &task.Task{ID: "t4", Payload: encodePayload(t, payload)}
	err := h.Handle(ctx, tk, noProgress)
	require.Error(t, err)
	require.Equal(t, task.ErrValidation, task.KindOf(err))
}

func TestProcessAttachmentsHandlerStoresSanitizedBlob(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemoryStore()
	require.NoError(t, blobs.Put(ctx, "uploads/raw-2", []byte("png-bytes"), nil, nil))
	h := &ProcessAttachmentsHandler{Blobs: blobs, Log: observability.Nop()}

	payload := task.ProcessAttachmentsPayload{
		EmailID:      "e2",
		MaxSizeBytes: 1024,
		AllowedMIME:  []string{"image/png"},
		Attachments: []task.AttachmentRef{
			{Filename: "My Photo!.png", ContentType: "image/png", SizeBytes: 9, BlobKey: "uploads/raw-2"},
		},
	}
	tk := &task.Task{ID: "t5", Payload: encodePayload(t, payload)}
	require.NoError(t, h.Handle(ctx, tk, noProgress))

	page, err := blobs.List(ctx, "attachments/", "", 10)
	require.NoError(t, err)
	require.Len(t, page.Objects, 1)
	require.True(t, strings.HasSuffix(page.Objects[0].Key, "/My_Photo_.png"), page.Objects[0].Key)
}

type fakePrefs struct {
	prefs notify.Preferences
}

func (f fakePrefs) GetPreferences(ctx context.Context, userID string) (notify.Preferences, error) {
	return f.prefs, nil
}

type fakeNotifier struct {
	sent int
}

func (f *fakeNotifier) Send(ctx context.Context, channel notify.Channel, userID, title, body string) error {
	f.sent++
	return nil
}

func TestSendNotificationHandlerSkipsDuringQuietHours(t *testing.T) {
	ctx := context.Background()
	prefs := fakePrefs{prefs: notify.Preferences{QuietHoursFrom: 22, QuietHoursTo: 7}}
	notifier := &fakeNotifier{}
	h := &SendNotificationHandler{
		Prefs:    prefs,
		Notifier: notifier,
		Log:      observability.Nop(),
		Now:      func() time.Time { return time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC) },
	}

	payload := task.SendNotificationPayload{UserID: "u1", Channel: "push", Title: "hi", Body: "there"}
	tk := &task.Task{ID: "t6", Payload: encodePayload(t, payload)}
	require.NoError(t, h.Handle(ctx, tk, noProgress))
	require.Equal(t, 0, notifier.sent)
}

func TestSendNotificationHandlerDeliversOutsideQuietHours(t *testing.T) {
	ctx := context.Background()
	prefs := fakePrefs{prefs: notify.Preferences{QuietHoursFrom: 22, QuietHoursTo: 7}}
	notifier := &fakeNotifier{}
	h := &SendNotificationHandler{
		Prefs:    prefs,
		Notifier: notifier,
		Log:      observability.Nop(),
		Now:      func() time.Time { return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC) },
	}

	payload := task.SendNotificationPayload{UserID: "u1", Channel: "email", Title: "hi", Body: "there"}
	tk := &task.Task{ID: "t7", Payload: encodePayload(t, payload)}
	require.NoError(t, h.Handle(ctx, tk, noProgress))
	require.Equal(t, 1, notifier.sent)
}

func TestCleanupStorageHandlerDryRunDoesNotDelete(t *testing.T) {
	ctx := context.Background()
	docs := docstore.NewMemoryStore()
	require.NoError(t, docs.PutEmail(ctx, &docstore.Email{ID: "old-1", MessageID: "m1", CreatedAt: 1000}))
	blobs := blobstore.NewMemoryStore()
	h := &CleanupStorageHandler{Docs: docs, Blobs: blobs, Log: observability.Nop()}

	payload := task.CleanupStoragePayload{CutoffMs: 2000, DryRun: true}
	tk := &task.Task{ID: "t8", Payload: encodePayload(t, payload)}
	require.NoError(t, h.Handle(ctx, tk, noProgress))

	_, ok, err := docs.GetEmail(ctx, "old-1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCleanupStorageHandlerExcludePatternWins(t *testing.T) {
	ctx := context.Background()
	docs := docstore.NewMemoryStore()
	require.NoError(t, docs.PutEmail(ctx, &docstore.Email{ID: "keep-me", MessageID: "m2", CreatedAt: 1000}))
	blobs := blobstore.NewMemoryStore()
	h := &CleanupStorageHandler{Docs: docs, Blobs: blobs, Log: observability.Nop()}

	payload := task.CleanupStoragePayload{CutoffMs: 2000, ExcludePatterns: []string{"keep-*"}}
	tk := &task.Task{ID: "t9", Payload: encodePayload(t, payload)}
	require.NoError(t, h.Handle(ctx, tk, noProgress))

	_, ok, err := docs.GetEmail(ctx, "keep-me")
	require.NoError(t, err)
	require.True(t, ok)
}
