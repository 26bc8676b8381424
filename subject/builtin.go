package subject

import "fmt"

// OfferBy marker for subjects produced by the built-in extractors
const OfferBy = "accessctl"

// appendPrefixed appends one subject per prefix/tag pair.
// prefixes and tags run in parallel, most specific first.
func appendPrefixed(m *Manager, body string, prefixes, tags []string) {
	n := len(prefixes)
	if len(tags) < n {
		n = len(tags)
	}
	for i := 0; i < n; i++ {
		m.Append(Model{
			Content: prefixes[i] + body,
			OfferBy: OfferBy,
			Tag:     tags[i],
		})
	}
}

// SuperuserChecker reports whether a user id is a configured superuser
type SuperuserChecker func(userID string) bool

// NewSessionExtractor builds the default extractor deriving subjects
// from the generic session abstraction: composite scope+user subjects
// first, then the plain user, a superuser marker when applicable,
// scope subjects, chat-type subjects, the platform, and finally "all".
func NewSessionExtractor(isSuperuser SuperuserChecker) Extractor {
	if isSuperuser == nil {
		isSuperuser = func(string) bool { return false }
	}

	return func(s *Session, m *Manager) {
		prefixes := s.prefixes()

		switch s.Level {
		case LevelChannel:
			appendPrefixed(m, fmt.Sprintf(":g%s:c%s:%s", s.GuildID, s.ChannelID, s.UserID),
				prefixes, []string{"platform:guild:channel:user", "onebot:guild:channel:user"})
			appendPrefixed(m, fmt.Sprintf(":c%s:%s", s.ChannelID, s.UserID),
				prefixes, []string{"platform:channel:user", "onebot:channel:user"})
			appendPrefixed(m, fmt.Sprintf(":g%s:%s", s.GuildID, s.UserID),
				prefixes, []string{"platform:guild:user", "onebot:guild:user"})
			appendPrefixed(m, ":"+s.UserID,
				prefixes, []string{"platform:user", "onebot:user"})

			if isSuperuser(s.UserID) {
				m.Append(Model{Content: "superuser", OfferBy: OfferBy, Tag: "superuser"})
			}

			appendPrefixed(m, fmt.Sprintf(":g%s:c%s", s.GuildID, s.ChannelID),
				prefixes, []string{"platform:guild:channel", "onebot:guild:channel"})
			appendPrefixed(m, ":c"+s.ChannelID,
				prefixes, []string{"platform:channel", "onebot:channel"})
			appendPrefixed(m, ":g"+s.GuildID,
				prefixes, []string{"platform:guild", "onebot:guild"})

			appendPrefixed(m, ":channel",
				prefixes, []string{"platform:chat_type", "onebot:chat_type"})
			m.Append(Model{Content: "channel", OfferBy: OfferBy, Tag: "chat_type"})

		case LevelGroup:
			appendPrefixed(m, fmt.Sprintf(":g%s:%s", s.GroupID, s.UserID),
				prefixes, []string{"platform:group:user", "onebot:group:user"})
			appendPrefixed(m, ":"+s.UserID,
				prefixes, []string{"platform:user", "onebot:user"})

			if isSuperuser(s.UserID) {
				m.Append(Model{Content: "superuser", OfferBy: OfferBy, Tag: "superuser"})
			}

			appendPrefixed(m, ":g"+s.GroupID,
				prefixes, []string{"platform:group", "onebot:group"})
			appendPrefixed(m, ":group",
				prefixes, []string{"platform:chat_type", "onebot:chat_type"})
			m.Append(Model{Content: "group", OfferBy: OfferBy, Tag: "chat_type"})

		case LevelPrivate:
			appendPrefixed(m, ":"+s.UserID,
				prefixes, []string{"platform:user", "onebot:user"})

			if isSuperuser(s.UserID) {
				m.Append(Model{Content: "superuser", OfferBy: OfferBy, Tag: "superuser"})
			}

			appendPrefixed(m, ":private",
				prefixes, []string{"platform:chat_type", "onebot:chat_type"})
			m.Append(Model{Content: "private", OfferBy: OfferBy, Tag: "chat_type"})
		}

		appendPrefixed(m, "", prefixes, []string{"platform", "onebot"})
		m.Append(Model{Content: "all", OfferBy: OfferBy, Tag: "all"})
	}
}
