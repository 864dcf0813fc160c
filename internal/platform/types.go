package platform

import "context"

// Entity is a raw platform peer (user, group chat, broadcast channel) the
// way the backend reports it. Classification into chat kinds happens once,
// in internal/classify; nothing downstream reads these flags directly.
type Entity struct {
	ID        int64
	Title     string
	Username  string
	FirstName string
	LastName  string

	Broadcast bool // broadcast channel flag
	Megagroup bool // large group chat flag
	Bot       bool // user account flagged as bot
	Members   int  // participant count; <= 0 means unknown
}

// Message is one inbound messaging event.
type Message struct {
	ID          int
	ChatID      int64
	SenderID    int64
	SenderBot   bool // the update marked the sender as a bot account
	Text        string
	Unixtime    int64 // platform send time (epoch seconds)
	Forwarded   bool
	ChannelPost bool // posted in a broadcast channel (no per-post author)
}

// Dialog is one entry of the account's chat list, with its folder
// assignment when the backend exposes folders.
type Dialog struct {
	ChatID int64
	Folder string // "" when unassigned or unknown
}

// Client is the messaging platform surface the service runs against.
//
// Capability errors: methods a backend cannot provide return ErrUnsupported;
// callers degrade instead of retrying. The Bot API backend has no dialog
// listing and no history paging.
type Client interface {
	Start(ctx context.Context, out chan<- Message) error
	Stop(ctx context.Context) error

	// Self returns the authenticated account entity. Valid after New.
	Self() Entity

	Chat(ctx context.Context, id int64) (Entity, error)
	User(ctx context.Context, id int64) (Entity, error)

	Dialogs(ctx context.Context) ([]Dialog, error)
	History(ctx context.Context, chatID int64, limit int) ([]Message, error)

	SendText(ctx context.Context, chatID int64, text string) error
}
