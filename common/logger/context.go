package logger

import (
	"context"
	"log/slog"
)

type logFieldsKey struct{}

// LogFields are added to every record logged with a context carrying them.
// Handlers enrich once and everything below logs referrer and update ids
// without passing them around.
type LogFields struct {
	ReferrerKey *string // link owner
	InviteeKey  *string // member whose status changed
	UpdateID    *int64  // platform update id
	MessageID   *string // stream entry id
	EventID     *int64  // snowflake id assigned at ingest
	EventType   *string // membership status or command name
	Component   string
}

// WithLogFields merges fields into the ones already on ctx. Set fields win.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	merged := GetLogFields(ctx)
	setIf(&merged.ReferrerKey, fields.ReferrerKey)
	setIf(&merged.InviteeKey, fields.InviteeKey)
	setIf(&merged.UpdateID, fields.UpdateID)
	setIf(&merged.MessageID, fields.MessageID)
	setIf(&merged.EventID, fields.EventID)
	setIf(&merged.EventType, fields.EventType)
	if fields.Component != "" {
		merged.Component = fields.Component
	}
	return context.WithValue(ctx, logFieldsKey{}, merged)
}

func GetLogFields(ctx context.Context) LogFields {
	fields, _ := ctx.Value(logFieldsKey{}).(LogFields)
	return fields
}

func (f LogFields) attrs() []slog.Attr {
	var out []slog.Attr
	if f.ReferrerKey != nil {
		out = append(out, slog.String("referrer_key", *f.ReferrerKey))
	}
	if f.InviteeKey != nil {
		out = append(out, slog.String("invitee_key", *f.InviteeKey))
	}
	if f.UpdateID != nil {
		out = append(out, slog.Int64("update_id", *f.UpdateID))
	}
	if f.MessageID != nil {
		out = append(out, slog.String("message_id", *f.MessageID))
	}
	if f.EventID != nil {
		out = append(out, slog.Int64("event_id", *f.EventID))
	}
	if f.EventType != nil {
		out = append(out, slog.String("event_type", *f.EventType))
	}
	if f.Component != "" {
		out = append(out, slog.String("component", f.Component))
	}
	return out
}

func setIf[T any](dst **T, v *T) {
	if v != nil {
		*dst = v
	}
}

// Ptr returns a pointer to v, for filling LogFields inline.
func Ptr[T any](v T) *T {
	return &v
}
