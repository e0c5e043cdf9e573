package queue

type TaskType string

const (
	TaskTypeMembership TaskType = "membership_event"
)

// MembershipTask is what ingest puts on the stream for one chat_member update.
type MembershipTask struct {
	EventID     int64
	UpdateID    int64
	InviteeKey  string
	Status      string
	InviteLink  string
	Traceparent string
	Attempt     int
}
