package subject

import "fmt"

// GroupRoleExtractor splices role-based subjects for OneBot V11 group
// messages: group owners and admins gain scoped and global role
// subjects positioned more specific than the plain group subject but
// less specific than the direct user subjects.
func GroupRoleExtractor(s *Session, m *Manager) {
	if s.BotType != "OneBot V11" || s.Level != LevelGroup || s.GroupID == "" {
		return
	}

	var models []Model

	if s.Role == "owner" {
		models = append(models,
			Model{
				Content: fmt.Sprintf("%s:g%s.group_owner", s.Platform, s.GroupID),
				OfferBy: OfferBy,
				Tag:     "platform:group.group_owner",
			},
			Model{
				Content: s.Platform + ":group_owner",
				OfferBy: OfferBy,
				Tag:     "platform:group_owner",
			},
		)
	}

	if s.Role == "owner" || s.Role == "admin" {
		models = append(models,
			Model{
				Content: fmt.Sprintf("%s:g%s.group_admin", s.Platform, s.GroupID),
				OfferBy: OfferBy,
				Tag:     "platform:group.group_admin",
			},
			Model{
				Content: s.Platform + ":group_admin",
				OfferBy: OfferBy,
				Tag:     "platform:group_admin",
			},
		)
	}

	if len(models) > 0 {
		m.InsertBefore("platform:group", models...)
	}
}
