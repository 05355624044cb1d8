package utils

import (
	"slices"

	"github.com/bwmarrin/discordgo"

	"sticky-bot/models"
)

// Auth provides methods for authorization checks.
type Auth struct {
	config models.CommandsConfig
}

// NewAuth creates a new Auth instance from the loaded configuration.
func NewAuth(config models.CommandsConfig) *Auth {
	return &Auth{config: config}
}

// IsDeveloper checks if a user is a developer.
func (a *Auth) IsDeveloper(userID string) bool {
	return slices.Contains(a.config.Auth.Developers, userID)
}

// IsAdmin checks if a member has an admin role or can manage the guild.
func (a *Auth) IsAdmin(member *discordgo.Member) bool {
	if member == nil {
		return false
	}
	if member.Permissions&(discordgo.PermissionAdministrator|discordgo.PermissionManageGuild) != 0 {
		return true
	}
	for _, roleID := range member.Roles {
		if slices.Contains(a.config.Auth.AdminsRoles, roleID) {
			return true
		}
	}
	return false
}

// IsGuest checks if a user is a guest. "0" in the list opens access to everyone.
func (a *Auth) IsGuest(userID string) bool {
	return slices.Contains(a.config.Auth.Guest, "0") || slices.Contains(a.config.Auth.Guest, userID)
}

// CheckPermission checks if the interaction's user has the required permission level.
func (a *Auth) CheckPermission(i *discordgo.InteractionCreate, requiredLevel string) bool {
	// sticky commands only make sense inside a guild
	if i.Member == nil || i.Member.User == nil {
		return false
	}
	userID := i.Member.User.ID

	switch requiredLevel {
	case "developer":
		return a.IsDeveloper(userID)
	case "admin":
		return a.IsDeveloper(userID) || a.IsAdmin(i.Member)
	case "guest":
		return a.IsDeveloper(userID) || a.IsAdmin(i.Member) || a.IsGuest(userID)
	default:
		return false
	}
}
