package models

import (
	"time"

	"gorm.io/gorm"
)

// Lead status values. The pipeline is not a strict DAG: any authorized
// update may set any known status. The only enforced transition is the
// automatic HR->Accounts handoff when an HR-owned lead reaches
// StatusCompleted (see store.LeadStore.UpdateLead).
const (
	StatusNew             = "new"
	StatusRegister        = "register"
	StatusScheduled       = "scheduled"
	StatusCompleted       = "completed"
	StatusReadyForClass   = "ready_for_class"
	StatusAccountsPending = "accounts_pending"
	StatusPending         = "pending"
	StatusNotInterested   = "not_interested"
	StatusWrongNumber     = "wrong_number"
	StatusNotPicking      = "not_picking"
	StatusCallBack        = "call_back"
	StatusNotAvailable    = "not_available"
	StatusNoShow          = "no_show"
	StatusReschedule      = "reschedule"
	StatusPendingButReady = "pending_but_ready"
)

// LeadStatuses lists every valid lead status value.
var LeadStatuses = []string{
	StatusNew,
	StatusRegister,
	StatusScheduled,
	StatusCompleted,
	StatusReadyForClass,
	StatusAccountsPending,
	StatusPending,
	StatusNotInterested,
	StatusWrongNumber,
	StatusNotPicking,
	StatusCallBack,
	StatusNotAvailable,
	StatusNoShow,
	StatusReschedule,
	StatusPendingButReady,
}

// IsValidLeadStatus reports whether status is a known status value.
func IsValidLeadStatus(status string) bool {
	for _, s := range LeadStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// Lead represents a prospective candidate tracked through the
// intake-to-completion pipeline. A lead with CurrentOwnerID == nil sits in
// the shared pool; otherwise exactly one staff user owns it.
type Lead struct {
	gorm.Model

	// Contact fields
	Name     string `gorm:"not null;index" json:"name"`
	Email    string `gorm:"index" json:"email"`
	Phone    string `gorm:"index" json:"phone"`
	Location string `json:"location"`

	// Academic fields
	Degree        string `json:"degree"`
	Domain        string `json:"domain"`
	YearOfPassing string `json:"year_of_passing"`
	CollegeName   string `json:"college_name"`

	// Scheduling fields
	SessionDays string `json:"session_days"`
	WalkinDate  string `json:"walkin_date"`
	WalkinTime  string `json:"walkin_time"`
	Timing      string `json:"timing"`

	// Financial fields (amounts in rupees)
	RegistrationAmount float64 `gorm:"default:0" json:"registration_amount"`
	PendingAmount      float64 `gorm:"default:0" json:"pending_amount"`
	PartialAmount      float64 `gorm:"default:0" json:"partial_amount"`
	Concession         float64 `gorm:"default:0" json:"concession"`
	TransactionNumber  string  `json:"transaction_number"`

	// Ownership and pipeline state
	CurrentOwnerID  *uint  `gorm:"index" json:"current_owner_id"`
	SourceManagerID *uint  `gorm:"index" json:"source_manager_id"`
	Status          string `gorm:"not null;default:'new';index" json:"status"`

	IsActive bool   `gorm:"default:true" json:"is_active"`
	Notes    string `gorm:"type:text" json:"notes"`

	// Relations
	CurrentOwner *User         `gorm:"foreignKey:CurrentOwnerID" json:"current_owner,omitempty"`
	History      []LeadHistory `gorm:"foreignKey:LeadID" json:"history,omitempty"`
}

// LeadHistory is an append-only audit record of one ownership or status
// transition. Rows are never updated; they are deleted only when the lead
// itself is hard-deleted.
type LeadHistory struct {
	ID     uint `gorm:"primarykey" json:"id"`
	LeadID uint `gorm:"not null;index" json:"lead_id"`

	FromUserID *uint `gorm:"index" json:"from_user_id"`
	ToUserID   *uint `gorm:"index" json:"to_user_id"`

	PreviousStatus string `json:"previous_status"`
	NewStatus      string `json:"new_status"`

	ChangeReason    string `json:"change_reason"`
	ChangeData      string `gorm:"type:text" json:"change_data"` // JSON details if needed
	ChangedByUserID uint   `gorm:"not null;index" json:"changed_by_user_id"`

	CreatedAt time.Time `json:"created_at"`

	// Relations
	Lead      Lead  `json:"-"`
	FromUser  *User `gorm:"foreignKey:FromUserID" json:"from_user,omitempty"`
	ToUser    *User `gorm:"foreignKey:ToUserID" json:"to_user,omitempty"`
	ChangedBy User  `gorm:"foreignKey:ChangedByUserID" json:"changed_by,omitempty"`
}

// IsStatusChange reports whether the entry records a status transition as
// opposed to a metadata-only edit.
func (h *LeadHistory) IsStatusChange() bool {
	return h.PreviousStatus != h.NewStatus
}
