package command

import (
	"github.com/linjianyan0229/linbot2/pkg/message"
)

// Level is the permission tier a command requires.
type Level string

const (
	// LevelEveryone allows any user.
	LevelEveryone Level = "everyone"
	// LevelGroupAdmin requires the sender's group role to be admin or
	// owner.
	LevelGroupAdmin Level = "group_admin"
	// LevelGroupOwner requires the sender's group role to be owner.
	LevelGroupOwner Level = "group_owner"
	// LevelSuperUser requires the sender to be a configured super user.
	LevelSuperUser Level = "super_user"
	// LevelCustom defers the decision to the owning plugin; the engine
	// treats it as allowed.
	LevelCustom Level = "custom"
)

// SuperUserChecker answers whether a user holds super-user status. The
// root configuration provides the canonical implementation.
type SuperUserChecker interface {
	IsSuperUser(userID int64) bool
}

// Permission restricts who may invoke a command and where. Deny lists and
// channel restrictions are evaluated before allow lists; an empty allow
// list imposes no restriction.
type Permission struct {
	Level         Level   `yaml:"level" json:"level"`
	AllowedUsers  []int64 `yaml:"allowed_users,omitempty" json:"allowed_users,omitempty"`
	DeniedUsers   []int64 `yaml:"denied_users,omitempty" json:"denied_users,omitempty"`
	AllowedGroups []int64 `yaml:"allowed_groups,omitempty" json:"allowed_groups,omitempty"`
	DeniedGroups  []int64 `yaml:"denied_groups,omitempty" json:"denied_groups,omitempty"`
	PrivateOnly   bool    `yaml:"private_only,omitempty" json:"private_only,omitempty"`
	GroupOnly     bool    `yaml:"group_only,omitempty" json:"group_only,omitempty"`
}

// DefaultPermission allows everyone everywhere.
func DefaultPermission() Permission {
	return Permission{Level: LevelEveryone}
}

// Check decides whether the message sender may invoke the command.
func (p Permission) Check(msg *message.Message, superUsers SuperUserChecker) bool {
	if containsID(p.DeniedUsers, msg.SenderID()) {
		return false
	}
	if msg.IsGroup() && containsID(p.DeniedGroups, msg.Event.GroupID) {
		return false
	}

	if p.PrivateOnly && msg.IsGroup() {
		return false
	}
	if p.GroupOnly && msg.IsPrivate() {
		return false
	}

	if len(p.AllowedUsers) > 0 && !containsID(p.AllowedUsers, msg.SenderID()) {
		return false
	}
	if len(p.AllowedGroups) > 0 {
		if !msg.IsGroup() || !containsID(p.AllowedGroups, msg.Event.GroupID) {
			return false
		}
	}

	switch p.Level {
	case LevelEveryone, "":
		return true
	case LevelGroupAdmin:
		role := msg.Event.Sender.Role
		return role == "admin" || role == "owner"
	case LevelGroupOwner:
		return msg.Event.Sender.Role == "owner"
	case LevelSuperUser:
		return superUsers != nil && superUsers.IsSuperUser(msg.SenderID())
	case LevelCustom:
		return true
	default:
		return false
	}
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
