package subject

// Level chat scope granularity of a session
type Level int

const (
	// LevelPrivate direct one-on-one chat
	LevelPrivate Level = iota + 1

	// LevelGroup flat group chat
	LevelGroup

	// LevelChannel guild/channel structured chat
	LevelChannel
)

// Session platform-independent snapshot of an inbound request.
// The host framework's adapter fills this in before dispatch; the
// extractor chain only ever reads it.
type Session struct {
	// BotType adapter identifier, e.g. "OneBot V11"
	BotType string

	// Platform chat platform identifier, e.g. "qq"
	Platform string

	// Level chat scope of the request
	Level Level

	// UserID sender identifier (all levels)
	UserID string

	// GroupID group identifier (LevelGroup)
	GroupID string

	// ChannelID and GuildID channel scope identifiers (LevelChannel)
	ChannelID string
	GuildID   string

	// Role sender's role within the scope, e.g. "admin", "owner"
	Role string
}

// isOneBot reports whether the session came through an OneBot adapter.
// OneBot sessions additionally expose "onebot"-prefixed subjects so one
// rule can cover both protocol versions.
func (s *Session) isOneBot() bool {
	return s.BotType == "OneBot V11" || s.BotType == "OneBot V12"
}

// prefixes returns the subject content prefixes for this session,
// most specific first
func (s *Session) prefixes() []string {
	if s.isOneBot() {
		return []string{s.Platform, "onebot"}
	}
	return []string{s.Platform}
}
