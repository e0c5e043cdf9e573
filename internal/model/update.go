package model

// Update is a platform update translated out of the SDK types. Exactly one of
// Command and Membership is set for updates the bot cares about.
type Update struct {
	UpdateID   int64
	ChatID     int64
	Command    *Command
	Membership *MembershipEvent
}

type CommandName string

const (
	CommandStart      CommandName = "start"
	CommandStatus     CommandName = "status"
	CommandReactivate CommandName = "reactivate"
)

// Command is a slash command sent to the bot in a private chat.
type Command struct {
	Name      CommandName
	Args      string
	SenderKey string
	ChatKey   string
}
