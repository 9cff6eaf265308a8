package transport

import "context"

// ChatTarget addresses a chat and, for forum supergroups, a topic thread.
type ChatTarget struct {
	ChatID   int64
	ThreadID int // telegram forum topic thread id (0 if none)
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Notification is one rendered message queued for delivery.
type Notification struct {
	Kind     string // template name, e.g. "task.updated"
	EntityID string
	Target   ChatTarget
	Text     string
	Options  *SendOptions
}

// Sender delivers text to a chat. Implementations must honor ctx.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

// Command is an operator command received from the chat platform.
type Command struct {
	Name     string // without leading slash, lower-case
	Args     []string
	ChatID   int64
	ThreadID int
	FromID   int64
}

// CommandHandler answers a command with HTML text. An empty reply sends nothing.
type CommandHandler func(ctx context.Context, cmd Command) (string, error)

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}
