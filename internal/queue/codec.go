package queue

import (
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"refledger.app/bot/internal/model"
)

// Stream entry field names. Entries written by older builds may omit the
// optional ones.
const (
	fieldTaskType    = "task_type"
	fieldEventID     = "event_id"
	fieldUpdateID    = "update_id"
	fieldInviteeKey  = "invitee_key"
	fieldStatus      = "status"
	fieldInviteLink  = "invite_link"
	fieldTraceparent = "traceparent"
	fieldAttempt     = "attempt"
	fieldLastError   = "last_error"
	fieldError       = "error"
)

func encodeEvent(updateID int64, event model.MembershipEvent, attempt int, traceparent string) map[string]any {
	values := map[string]any{
		fieldTaskType:   string(TaskTypeMembership),
		fieldEventID:    event.EventID,
		fieldUpdateID:   updateID,
		fieldInviteeKey: event.InviteeKey,
		fieldStatus:     string(event.Status),
		fieldAttempt:    max(attempt, 1),
	}
	if event.InviteLink != "" {
		values[fieldInviteLink] = event.InviteLink
	}
	if traceparent != "" {
		values[fieldTraceparent] = traceparent
	}
	return values
}

// fieldReader decodes stream values, keeping the first error so a whole
// entry can be read before checking.
type fieldReader struct {
	values map[string]any
	err    error
}

func (r *fieldReader) raw(key string, required bool) (string, bool) {
	v, ok := r.values[key]
	if !ok {
		if required && r.err == nil {
			r.err = fmt.Errorf("missing %s", key)
		}
		return "", false
	}
	return fmt.Sprint(v), true
}

func (r *fieldReader) str(key string, required bool) string {
	s, _ := r.raw(key, required)
	return s
}

func (r *fieldReader) num(key string, required bool) int64 {
	s, ok := r.raw(key, required)
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil && r.err == nil {
		r.err = fmt.Errorf("parsing %s: %w", key, err)
	}
	return n
}

// ParseMessage decodes one stream entry into a membership event message.
func ParseMessage(entry redis.XMessage) (Message, error) {
	r := &fieldReader{values: entry.Values}

	if taskType := r.str(fieldTaskType, false); taskType != "" && TaskType(taskType) != TaskTypeMembership {
		return Message{}, fmt.Errorf("unknown task_type %q", taskType)
	}

	msg := Message{
		ID:       entry.ID,
		TaskType: TaskTypeMembership,
		UpdateID: r.num(fieldUpdateID, false),
		Event: model.MembershipEvent{
			EventID:    r.num(fieldEventID, true),
			InviteeKey: r.str(fieldInviteeKey, true),
			Status:     model.ParseMemberStatus(r.str(fieldStatus, true)),
			InviteLink: r.str(fieldInviteLink, false),
		},
		Attempt:     int(r.num(fieldAttempt, false)),
		Traceparent: r.str(fieldTraceparent, false),
		Raw:         entry,
	}
	if r.err != nil {
		return Message{}, r.err
	}
	if msg.Event.InviteeKey == "" {
		return Message{}, fmt.Errorf("empty invitee_key")
	}
	if msg.Attempt <= 0 {
		msg.Attempt = 1
	}
	return msg, nil
}
