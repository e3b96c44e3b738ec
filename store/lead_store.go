package store

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"leadflow/models"
)

// LeadStore owns every lead mutation and query. All ownership and status
// transitions flow through here so that the history ledger stays consistent
// with the lead rows.
type LeadStore struct {
	DB     *gorm.DB
	Logger *logrus.Logger
}

func NewLeadStore(db *gorm.DB, logger *logrus.Logger) *LeadStore {
	return &LeadStore{
		DB:     db,
		Logger: logger,
	}
}

// LeadFilter composes the dynamic predicate set for SearchLeads. Zero
// values mean "no filter".
type LeadFilter struct {
	Status          string
	Statuses        []string
	OwnerID         *uint
	UnassignedOnly  bool
	PreviousOwnerID *uint
	Search          string
	CreatedFrom     *time.Time
	CreatedTo       *time.Time
	Limit           int
	Offset          int
}

// LeadUpdate carries the mutable lead fields; nil pointers are left
// untouched. These fields form the allowlist whose edits produce a
// "metadata edit" history entry when the status itself did not change.
type LeadUpdate struct {
	Name     *string
	Email    *string
	Phone    *string
	Location *string

	Degree        *string
	Domain        *string
	YearOfPassing *string
	CollegeName   *string

	SessionDays *string
	WalkinDate  *string
	WalkinTime  *string
	Timing      *string

	RegistrationAmount *float64
	PendingAmount      *float64
	PartialAmount      *float64
	Concession         *float64
	TransactionNumber  *string

	Status *string
	Notes  *string
}

// GetLead fetches a lead by id.
func (s *LeadStore) GetLead(id uint) (*models.Lead, error) {
	var lead models.Lead
	if err := s.DB.First(&lead, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrLeadNotFound
		}
		return nil, err
	}
	return &lead, nil
}

// CreateLead inserts a new lead owned by its creator and writes the
// creation history row, atomically.
func (s *LeadStore) CreateLead(lead *models.Lead, byUserID uint) error {
	if lead.Status == "" {
		lead.Status = models.StatusNew
	}
	return s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(lead).Error; err != nil {
			return err
		}
		history := models.LeadHistory{
			LeadID:          lead.ID,
			ToUserID:        lead.CurrentOwnerID,
			PreviousStatus:  lead.Status,
			NewStatus:       lead.Status,
			ChangeReason:    "lead created",
			ChangedByUserID: byUserID,
		}
		return tx.Create(&history).Error
	})
}

// AssignLead moves ownership of a lead to toUserID. An HR self-claim on an
// unowned lead runs as a single conditional UPDATE so two racing claimers
// cannot both win; the loser gets ErrAlreadyAssigned. Manager/admin
// reassignments are unconditional. Every success appends one history row.
func (s *LeadStore) AssignLead(leadID, toUserID, byUserID uint, reason string) (*models.Lead, error) {
	lead, err := s.GetLead(leadID)
	if err != nil {
		return nil, err
	}

	var toUser models.User
	if err := s.DB.Where("id = ? AND is_active = ?", toUserID, true).First(&toUser).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	var byUser models.User
	if err := s.DB.First(&byUser, byUserID).Error; err != nil {
		return nil, err
	}

	selfClaim := byUser.Role == models.RoleHR && toUserID == byUserID
	fromUserID := lead.CurrentOwnerID

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if selfClaim {
			// The WHERE clause is the concurrency guard: of two racing
			// claimers, only one UPDATE affects a row.
			res := tx.Model(&models.Lead{}).
				Where("id = ? AND current_owner_id IS NULL", leadID).
				Update("current_owner_id", toUserID)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrAlreadyAssigned
			}
		} else {
			if err := tx.Model(&models.Lead{}).
				Where("id = ?", leadID).
				Update("current_owner_id", toUserID).Error; err != nil {
				return err
			}
		}

		history := models.LeadHistory{
			LeadID:          leadID,
			FromUserID:      fromUserID,
			ToUserID:        &toUserID,
			PreviousStatus:  lead.Status,
			NewStatus:       lead.Status,
			ChangeReason:    reason,
			ChangedByUserID: byUserID,
		}
		return tx.Create(&history).Error
	})
	if err != nil {
		return nil, err
	}

	return s.GetLead(leadID)
}

// UpdateLead applies a field/status edit, diffing against the prior row.
// A status change writes one status-transition history row; otherwise any
// change in the tracked-field allowlist writes one metadata-edit row with
// previous == new status. When an HR-owned lead is set to completed, the
// lead is automatically re-owned to the first active accounts user with
// status forced to pending, recorded as a second synthetic history entry.
func (s *LeadStore) UpdateLead(leadID uint, input LeadUpdate, byUserID uint) (*models.Lead, error) {
	lead, err := s.GetLead(leadID)
	if err != nil {
		return nil, err
	}

	updates, diffs := s.diff(lead, input)
	if len(updates) == 0 {
		return lead, nil
	}

	previousStatus := lead.Status
	newStatus := previousStatus
	if v, ok := updates["status"]; ok {
		newStatus = v.(string)
	}

	if err := s.DB.Model(&models.Lead{}).Where("id = ?", leadID).Updates(updates).Error; err != nil {
		return nil, err
	}

	// The audit append is deliberately outside the update: a failed history
	// write must not undo a lead edit the caller already saw succeed.
	history := models.LeadHistory{
		LeadID:          leadID,
		FromUserID:      lead.CurrentOwnerID,
		ToUserID:        lead.CurrentOwnerID,
		PreviousStatus:  previousStatus,
		NewStatus:       newStatus,
		ChangedByUserID: byUserID,
	}
	if newStatus != previousStatus {
		history.ChangeReason = "status changed"
	} else {
		history.ChangeReason = "lead details updated"
	}
	if len(diffs) > 0 {
		if data, err := json.Marshal(diffs); err == nil {
			history.ChangeData = string(data)
		}
	}
	if err := s.DB.Create(&history).Error; err != nil {
		s.Logger.WithError(err).WithField("lead_id", leadID).
			Error("failed to write lead history entry")
		sentry.CaptureException(err)
	}

	if newStatus == models.StatusCompleted && newStatus != previousStatus {
		if err := s.autoTransferToAccounts(leadID, byUserID); err != nil {
			return nil, err
		}
	}

	return s.GetLead(leadID)
}

// autoTransferToAccounts hands a completed HR-owned lead to accounts. The
// re-own and the synthetic history entry commit together.
func (s *LeadStore) autoTransferToAccounts(leadID, byUserID uint) error {
	lead, err := s.GetLead(leadID)
	if err != nil {
		return err
	}
	if lead.CurrentOwnerID == nil {
		return nil
	}

	var owner models.User
	if err := s.DB.First(&owner, *lead.CurrentOwnerID).Error; err != nil {
		return err
	}
	if owner.Role != models.RoleHR {
		return nil
	}

	accountsUser, err := s.firstAccountsUser()
	if err != nil {
		if err == ErrNoAccountsUser {
			// Nothing to hand the lead to; it stays completed with HR.
			s.Logger.WithField("lead_id", leadID).
				Warn("completed lead not transferred: no active accounts user")
			return nil
		}
		return err
	}

	return s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Lead{}).Where("id = ?", leadID).Updates(map[string]interface{}{
			"current_owner_id": accountsUser.ID,
			"status":           models.StatusPending,
		}).Error; err != nil {
			return err
		}
		history := models.LeadHistory{
			LeadID:          leadID,
			FromUserID:      lead.CurrentOwnerID,
			ToUserID:        &accountsUser.ID,
			PreviousStatus:  models.StatusCompleted,
			NewStatus:       models.StatusPending,
			ChangeReason:    "auto-transferred to accounts",
			ChangedByUserID: byUserID,
		}
		return tx.Create(&history).Error
	})
}

// PassToAccounts is the explicit HR->Accounts handoff endpoint's backend.
// Unlike the auto-transfer it fails loudly when no accounts user exists.
func (s *LeadStore) PassToAccounts(leadID, byUserID uint) (*models.Lead, error) {
	lead, err := s.GetLead(leadID)
	if err != nil {
		return nil, err
	}

	accountsUser, err := s.firstAccountsUser()
	if err != nil {
		return nil, err
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Lead{}).Where("id = ?", leadID).Updates(map[string]interface{}{
			"current_owner_id": accountsUser.ID,
			"status":           models.StatusPending,
		}).Error; err != nil {
			return err
		}
		history := models.LeadHistory{
			LeadID:          leadID,
			FromUserID:      lead.CurrentOwnerID,
			ToUserID:        &accountsUser.ID,
			PreviousStatus:  lead.Status,
			NewStatus:       models.StatusPending,
			ChangeReason:    "passed to accounts",
			ChangedByUserID: byUserID,
		}
		return tx.Create(&history).Error
	})
	if err != nil {
		return nil, err
	}
	return s.GetLead(leadID)
}

func (s *LeadStore) firstAccountsUser() (*models.User, error) {
	var user models.User
	err := s.DB.Where("role = ? AND is_active = ?", models.RoleAccounts, true).
		Order("id").First(&user).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNoAccountsUser
		}
		return nil, err
	}
	return &user, nil
}

// UnassignLead releases an HR-owned lead back to the shared pool: one
// transaction writes the release history row, then clears the owner and
// resets the status to new. The lead row itself is never deleted.
func (s *LeadStore) UnassignLead(leadID, byUserID uint) error {
	lead, err := s.GetLead(leadID)
	if err != nil {
		return err
	}
	if lead.CurrentOwnerID == nil || *lead.CurrentOwnerID != byUserID {
		return ErrNotOwner
	}

	return s.DB.Transaction(func(tx *gorm.DB) error {
		history := models.LeadHistory{
			LeadID:          leadID,
			FromUserID:      lead.CurrentOwnerID,
			ToUserID:        nil,
			PreviousStatus:  lead.Status,
			NewStatus:       models.StatusNew,
			ChangeReason:    "released back to pool",
			ChangedByUserID: byUserID,
		}
		if err := tx.Create(&history).Error; err != nil {
			return err
		}
		return tx.Model(&models.Lead{}).Where("id = ?", leadID).Updates(map[string]interface{}{
			"current_owner_id": nil,
			"status":           models.StatusNew,
		}).Error
	})
}

// DeleteLead hard-deletes a lead: a final history row is written, then all
// history rows for the lead are removed (the lead FK requires it), then the
// lead row itself. Hard-deleted leads leave no audit trail.
func (s *LeadStore) DeleteLead(leadID, byUserID uint, reason string) error {
	lead, err := s.GetLead(leadID)
	if err != nil {
		return err
	}

	return s.DB.Transaction(func(tx *gorm.DB) error {
		history := models.LeadHistory{
			LeadID:          leadID,
			FromUserID:      lead.CurrentOwnerID,
			PreviousStatus:  lead.Status,
			NewStatus:       lead.Status,
			ChangeReason:    reason,
			ChangedByUserID: byUserID,
		}
		if err := tx.Create(&history).Error; err != nil {
			return err
		}
		if err := tx.Where("lead_id = ?", leadID).Delete(&models.LeadHistory{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(&models.Lead{}, leadID).Error
	})
}

// SearchLeads composes the filter into SQL predicates and returns one page
// of leads plus the unpaginated total, most recently updated first.
func (s *LeadStore) SearchLeads(filter LeadFilter) ([]models.Lead, int64, error) {
	query := s.DB.Model(&models.Lead{})

	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}
	if filter.OwnerID != nil {
		query = query.Where("current_owner_id = ?", *filter.OwnerID)
	}
	if filter.UnassignedOnly {
		query = query.Where("current_owner_id IS NULL")
	}
	if filter.PreviousOwnerID != nil {
		query = query.Where(
			"id IN (SELECT lead_id FROM lead_histories WHERE from_user_id = ? OR to_user_id = ?)",
			*filter.PreviousOwnerID, *filter.PreviousOwnerID,
		)
	}
	if filter.Search != "" {
		term := "%" + strings.ToLower(filter.Search) + "%"
		query = query.Where(
			"LOWER(name) LIKE ? OR LOWER(email) LIKE ? OR LOWER(phone) LIKE ?",
			term, term, term,
		)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var leads []models.Lead
	if err := query.Order("updated_at DESC").
		Offset(filter.Offset).Limit(filter.Limit).
		Find(&leads).Error; err != nil {
		return nil, 0, err
	}

	return leads, total, nil
}

// BulkInsert creates unowned leads in fixed-size chunks, skipping rows
// whose email already exists. Returns the inserted and skipped counts.
func (s *LeadStore) BulkInsert(leads []models.Lead) (int, int, error) {
	const batchSize = 100

	seen := make(map[string]struct{})
	var batch []models.Lead
	inserted, skipped := 0, 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.DB.Create(&batch).Error; err != nil {
			return err
		}
		inserted += len(batch)
		batch = nil
		return nil
	}

	for _, lead := range leads {
		email := strings.ToLower(strings.TrimSpace(lead.Email))
		if email != "" {
			if _, dup := seen[email]; dup {
				skipped++
				continue
			}
			var count int64
			if err := s.DB.Model(&models.Lead{}).Where("email = ?", email).Count(&count).Error; err != nil {
				return inserted, skipped, err
			}
			if count > 0 {
				skipped++
				continue
			}
			seen[email] = struct{}{}
			lead.Email = email
		}

		if lead.Status == "" {
			lead.Status = models.StatusNew
		}
		lead.CurrentOwnerID = nil
		batch = append(batch, lead)

		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return inserted, skipped, err
			}
		}
	}

	if err := flush(); err != nil {
		return inserted, skipped, err
	}
	return inserted, skipped, nil
}

// LeadHistory returns the audit trail for one lead, oldest first.
func (s *LeadStore) LeadHistory(leadID uint) ([]models.LeadHistory, error) {
	if _, err := s.GetLead(leadID); err != nil {
		return nil, err
	}
	var history []models.LeadHistory
	err := s.DB.Where("lead_id = ?", leadID).Order("created_at, id").Find(&history).Error
	return history, err
}

// AllHistory returns one page of the global ledger, newest first.
func (s *LeadStore) AllHistory(limit, offset int) ([]models.LeadHistory, int64, error) {
	var total int64
	if err := s.DB.Model(&models.LeadHistory{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var history []models.LeadHistory
	err := s.DB.Order("created_at DESC, id DESC").
		Offset(offset).Limit(limit).Find(&history).Error
	return history, total, err
}

// diff applies non-nil input fields against the current row, returning the
// column updates and a from/to map for the audit entry.
func (s *LeadStore) diff(lead *models.Lead, input LeadUpdate) (map[string]interface{}, map[string][2]interface{}) {
	updates := make(map[string]interface{})
	diffs := make(map[string][2]interface{})

	setString := func(column string, prev string, next *string) {
		if next != nil && *next != prev {
			updates[column] = *next
			diffs[column] = [2]interface{}{prev, *next}
		}
	}
	setFloat := func(column string, prev float64, next *float64) {
		if next != nil && *next != prev {
			updates[column] = *next
			diffs[column] = [2]interface{}{prev, *next}
		}
	}

	setString("name", lead.Name, input.Name)
	setString("email", lead.Email, input.Email)
	setString("phone", lead.Phone, input.Phone)
	setString("location", lead.Location, input.Location)
	setString("degree", lead.Degree, input.Degree)
	setString("domain", lead.Domain, input.Domain)
	setString("year_of_passing", lead.YearOfPassing, input.YearOfPassing)
	setString("college_name", lead.CollegeName, input.CollegeName)
	setString("session_days", lead.SessionDays, input.SessionDays)
	setString("walkin_date", lead.WalkinDate, input.WalkinDate)
	setString("walkin_time", lead.WalkinTime, input.WalkinTime)
	setString("timing", lead.Timing, input.Timing)
	setFloat("registration_amount", lead.RegistrationAmount, input.RegistrationAmount)
	setFloat("pending_amount", lead.PendingAmount, input.PendingAmount)
	setFloat("partial_amount", lead.PartialAmount, input.PartialAmount)
	setFloat("concession", lead.Concession, input.Concession)
	setString("transaction_number", lead.TransactionNumber, input.TransactionNumber)
	setString("notes", lead.Notes, input.Notes)

	if input.Status != nil && *input.Status != lead.Status {
		updates["status"] = *input.Status
	}

	return updates, diffs
}
