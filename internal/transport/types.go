package transport

import "context"

type UpdateKind string

const (
	UpdateMessage UpdateKind = "message"
)

type Update struct {
	Kind    UpdateKind
	Message *Message
}

type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	Text         string
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

func (t ChatTarget) IsZero() bool { return t.ChatID == 0 }

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Notification is one queued outbound message.
type Notification struct {
	Channel  string // "telegram"
	Priority int    // 0 low .. 10 high
	Target   ChatTarget
	Text     string
	Options  *SendOptions
}

// Sender delivers text to a chat.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

// Adapter is a chat transport: inbound updates plus outbound text.
type Adapter interface {
	Sender
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is implemented by adapters that can publish a
// platform-specific command menu.
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
