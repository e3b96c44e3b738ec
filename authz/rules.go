package authz

import (
	"gorm.io/gorm"

	"leadflow/models"
)

// Action names one guarded operation. Handlers never encode role checks
// themselves; they ask Can() with the action and, for lead operations, the
// lead in question.
type Action string

const (
	LeadCreate     Action = "lead.create"
	LeadRead       Action = "lead.read"
	LeadUpdate     Action = "lead.update"
	LeadClaim      Action = "lead.claim"
	LeadReassign   Action = "lead.reassign"
	LeadSoftDelete Action = "lead.soft_delete"
	LeadHardDelete Action = "lead.hard_delete"
	LeadHistory    Action = "lead.history"
	HistoryReadAll Action = "history.read_all"
	LeadImport     Action = "lead.import"
	LeadExport     Action = "lead.export"
	ClassManage    Action = "class.manage"
	ClassRead      Action = "class.read"
	AttendanceMark Action = "attendance.mark"
	MarksEdit      Action = "marks.edit"
	UserCreate     Action = "user.create"
	DashboardView  Action = "dashboard.view"
)

// Predicate qualifies an allow rule with an ownership requirement against
// the target lead. Rules for non-lead actions use Any.
type Predicate int

const (
	// Any allows the action regardless of the target.
	Any Predicate = iota
	// Owner allows the action only on leads the caller currently owns.
	Owner
	// OwnerOrHistorical additionally allows leads the caller ever held,
	// resolved by a point query against lead_history.
	OwnerOrHistorical
	// Unowned allows the action only on leads sitting in the shared pool.
	Unowned
)

// rules is the single authorization table: (role, action) -> predicate.
// A missing entry means deny.
var rules = map[string]map[Action]Predicate{
	models.RoleManager: {
		LeadCreate: Any, LeadRead: Any, LeadUpdate: Any, LeadReassign: Any,
		LeadHardDelete: Any, LeadHistory: Any, HistoryReadAll: Any,
		LeadImport: Any, LeadExport: Any, ClassManage: Any, ClassRead: Any,
		UserCreate: Any, DashboardView: Any,
	},
	models.RoleAdmin: {
		LeadCreate: Any, LeadRead: Any, LeadUpdate: Any, LeadReassign: Any,
		LeadHardDelete: Any, LeadHistory: Any, HistoryReadAll: Any,
		LeadImport: Any, LeadExport: Any, ClassManage: Any, ClassRead: Any,
		UserCreate: Any, DashboardView: Any,
	},
	models.RoleTeamLead: {
		LeadRead: Any, LeadHistory: Any, ClassRead: Any, DashboardView: Any,
	},
	models.RoleHR: {
		LeadCreate: Any, LeadRead: Any, LeadUpdate: OwnerOrHistorical,
		LeadClaim: Unowned, LeadSoftDelete: Owner, LeadHistory: OwnerOrHistorical,
		LeadImport: Any,
	},
	models.RoleAccounts: {
		LeadRead: Owner, LeadUpdate: Owner, LeadHistory: Owner,
	},
	models.RoleTechSupport: {
		LeadRead: Any, ClassRead: Any,
	},
	models.RoleSessionCoordinator: {
		LeadRead: Any, ClassManage: Any, ClassRead: Any, AttendanceMark: Any,
		MarksEdit: Any,
	},
	models.RoleSessionOrganizer: {
		ClassManage: Any, ClassRead: Any, AttendanceMark: Any, MarksEdit: Any,
	},
}

// Can evaluates the rule table for the user and action. lead may be nil for
// actions that do not target a single lead. The db handle is needed only for
// the OwnerOrHistorical predicate.
func Can(db *gorm.DB, user *models.User, action Action, lead *models.Lead) (bool, error) {
	roleRules, ok := rules[user.Role]
	if !ok {
		return false, nil
	}
	pred, ok := roleRules[action]
	if !ok {
		return false, nil
	}

	switch pred {
	case Any:
		return true, nil
	case Owner:
		return lead != nil && lead.CurrentOwnerID != nil && *lead.CurrentOwnerID == user.ID, nil
	case Unowned:
		return lead != nil && lead.CurrentOwnerID == nil, nil
	case OwnerOrHistorical:
		if lead == nil {
			return false, nil
		}
		if lead.CurrentOwnerID != nil && *lead.CurrentOwnerID == user.ID {
			return true, nil
		}
		return HasTouched(db, user.ID, lead.ID)
	}
	return false, nil
}

// HasTouched reports whether the user appears on either side of any
// ownership transition for the lead.
func HasTouched(db *gorm.DB, userID, leadID uint) (bool, error) {
	var count int64
	err := db.Model(&models.LeadHistory{}).
		Where("lead_id = ? AND (from_user_id = ? OR to_user_id = ?)", leadID, userID, userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
