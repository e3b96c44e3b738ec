package models

import (
	"gorm.io/gorm"
)

// Staff roles. Each role maps to a set of permitted actions in the authz
// rule table; there is no role hierarchy.
const (
	RoleManager            = "manager"
	RoleAdmin              = "admin"
	RoleTeamLead           = "team_lead"
	RoleHR                 = "hr"
	RoleAccounts           = "accounts"
	RoleTechSupport        = "tech_support"
	RoleSessionCoordinator = "session_coordinator"
	RoleSessionOrganizer   = "session_organizer"
)

// Roles lists every valid role value.
var Roles = []string{
	RoleManager,
	RoleAdmin,
	RoleTeamLead,
	RoleHR,
	RoleAccounts,
	RoleTechSupport,
	RoleSessionCoordinator,
	RoleSessionOrganizer,
}

// IsValidRole reports whether role is a known role value.
func IsValidRole(role string) bool {
	for _, r := range Roles {
		if r == role {
			return true
		}
	}
	return false
}

// User represents a staff account in the system
type User struct {
	gorm.Model

	// Authentication fields
	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"not null" json:"-"`

	// Profile information
	Name  string `gorm:"not null" json:"name"`
	Phone string `json:"phone"`

	// Role and team affiliation
	Role     string `gorm:"not null;index" json:"role"`
	TeamName string `json:"team_name"`

	// Account status
	IsActive bool `gorm:"default:true" json:"is_active"`

	// Relations
	OwnedLeads []Lead `gorm:"foreignKey:CurrentOwnerID" json:"owned_leads,omitempty"`
}

// CanManage reports whether the user holds one of the two unrestricted roles.
func (u *User) CanManage() bool {
	return u.Role == RoleManager || u.Role == RoleAdmin
}
