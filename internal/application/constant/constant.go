package constant

// Ключи атрибутов для slog
const (
	Error        = "error"
	UserID       = "user_id"
	UserName     = "user_name"
	ChannelID    = "channel_id"
	WorkspaceID  = "workspace_id"
	ConnectionID = "connection_id"
	InviteID     = "invite_id"
	Node         = "node"
	Plugin       = "plugin"
	Room         = "room"
	State        = "state"
	Count        = "count"
)
