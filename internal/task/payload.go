package task

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Envelope fields injected by the scheduler into every payload at enqueue
// time (spec §6, "Task payload shapes (normative)").
type Envelope struct {
	CorrelationID string `json:"correlation_id"`
	Timestamp     int64  `json:"timestamp"`
}

// ProcessEmailPayload is the process_email task kind's payload (spec §4.5).
type ProcessEmailPayload struct {
	Envelope
	MessageID   string `json:"message_id" validate:"required"`
	From        string `json:"from" validate:"required,email"`
	To          []string `json:"to" validate:"required,min=1,dive,email"`
	Subject     string `json:"subject"`
	TextContent string `json:"text_content"`
	HTMLContent string `json:"html_content"`
	References  []string `json:"references"`
	InReplyTo   string   `json:"in_reply_to"`
	Attachments []AttachmentRef `json:"attachments"`
}

// AttachmentRef points at a blob awaiting processing.
type AttachmentRef struct {
	Filename    string `json:"filename" validate:"required"`
	ContentType string `json:"content_type" validate:"required"`
	SizeBytes   int64  `json:"size_bytes" validate:"gte=0"`
	BlobKey     string `json:"blob_key"`
}

// SendEmailPayload is the send_email task kind's payload.
type SendEmailPayload struct {
	Envelope
	MessageID   string            `json:"message_id" validate:"required"`
	From        string            `json:"from" validate:"required,email"`
	To          []string          `json:"to" validate:"required,min=1,dive,email"`
	CC          []string          `json:"cc" validate:"dive,email"`
	BCC         []string          `json:"bcc" validate:"dive,email"`
	Subject     string            `json:"subject" validate:"required"`
	TextContent string            `json:"text_content"`
	HTMLContent string            `json:"html_content"`
	Headers     map[string]string `json:"headers"`
}

// ProcessAttachmentsPayload is the process_attachments task kind's payload.
type ProcessAttachmentsPayload struct {
	Envelope
	EmailID     string          `json:"email_id" validate:"required"`
	Attachments []AttachmentRef `json:"attachments" validate:"required,min=1,dive"`
	MaxSizeBytes int64          `json:"max_size_bytes" validate:"gt=0"`
	AllowedMIME []string        `json:"allowed_mime" validate:"required,min=1"`
}

// GenerateAnalyticsPayload is the generate_analytics task kind's payload.
type GenerateAnalyticsPayload struct {
	Envelope
	Start int64 `json:"start" validate:"required"`
	End   int64 `json:"end" validate:"required,gtfield=Start"`
	Scope string `json:"scope"`
}

// CleanupStoragePayload is the cleanup_storage task kind's payload.
type CleanupStoragePayload struct {
	Envelope
	CutoffMs        int64    `json:"cutoff_ms" validate:"required"`
	Types           []string `json:"types"`
	ExcludePatterns []string `json:"exclude_patterns"`
	DryRun          bool     `json:"dry_run"`
}

// IndexSearchPayload is the index_search task kind's payload.
type IndexSearchPayload struct {
	Envelope
	DocID    string         `json:"doc_id" validate:"required"`
	DocType  string         `json:"doc_type" validate:"required"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
	Options  IndexOptions   `json:"options"`
}

// IndexOptions controls tokenization language and chunking.
type IndexOptions struct {
	Language  string `json:"language" validate:"omitempty,oneof=en es fr de"`
	ChunkSize int    `json:"chunk_size" validate:"gte=0"`
}

// UpdateThreadPayload is the update_thread task kind's payload.
type UpdateThreadPayload struct {
	Envelope
	ThreadID     string         `json:"thread_id" validate:"required"`
	Mutation     map[string]any `json:"mutation" validate:"required"`
	ExpectedLock string         `json:"expected_lock"`
	Reindex      bool           `json:"reindex"`
}

// SendNotificationPayload is the send_notification task kind's payload.
type SendNotificationPayload struct {
	Envelope
	UserID  string `json:"user_id" validate:"required"`
	Channel string `json:"channel" validate:"required,oneof=email push sms in_app"`
	Title   string `json:"title" validate:"required"`
	Body    string `json:"body"`
}

// DecodeAndValidate unmarshals raw into dst and runs struct-tag validation,
// returning a fatal *task.HandlerError (ErrValidation) on either failure —
// per spec §4.4, "invalid payloads are fatal (no retry)".
func DecodeAndValidate(raw json.RawMessage, dst any) *HandlerError {
	if err := json.Unmarshal(raw, dst); err != nil {
		return NewValidationError("decoding payload: %w", err)
	}
	if err := validate.Struct(dst); err != nil {
		return NewValidationError("validating payload: %w", err)
	}
	return nil
}

// ValidateLanguage enforces spec §4.6 / §6: an unsupported
// index_search.options.language is a fatal validation error.
func ValidateLanguage(lang string) error {
	switch lang {
	case "", "en", "es", "fr", "de":
		return nil
	default:
		return fmt.Errorf("unsupported language %q", lang)
	}
}
