package controller

import (
	"encoding/csv"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"leadflow/authz"
	"leadflow/models"
	"leadflow/notify"
	"leadflow/store"
	"leadflow/utils"
)

type LeadController struct {
	DB     *gorm.DB
	Store  *store.LeadStore
	Hub    *notify.Hub
	Logger *logrus.Logger
}

func NewLeadController(db *gorm.DB, leads *store.LeadStore, hub *notify.Hub, logger *logrus.Logger) *LeadController {
	return &LeadController{
		DB:     db,
		Store:  leads,
		Hub:    hub,
		Logger: logger,
	}
}

type createLeadRequest struct {
	Name     string `json:"name" validate:"required,max=150"`
	Email    string `json:"email" validate:"omitempty,email"`
	Phone    string `json:"phone" validate:"omitempty,max=20"`
	Location string `json:"location" validate:"omitempty,max=150"`

	Degree        string `json:"degree" validate:"omitempty,max=100"`
	Domain        string `json:"domain" validate:"omitempty,max=100"`
	YearOfPassing string `json:"year_of_passing" validate:"omitempty,max=10"`
	CollegeName   string `json:"college_name" validate:"omitempty,max=200"`

	SessionDays string `json:"session_days" validate:"omitempty,max=100"`
	WalkinDate  string `json:"walkin_date" validate:"omitempty,max=20"`
	WalkinTime  string `json:"walkin_time" validate:"omitempty,max=20"`
	Timing      string `json:"timing" validate:"omitempty,max=50"`

	Notes string `json:"notes"`
}

type updateLeadRequest struct {
	Name     *string `json:"name" validate:"omitempty,max=150"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Phone    *string `json:"phone" validate:"omitempty,max=20"`
	Location *string `json:"location" validate:"omitempty,max=150"`

	Degree        *string `json:"degree" validate:"omitempty,max=100"`
	Domain        *string `json:"domain" validate:"omitempty,max=100"`
	YearOfPassing *string `json:"year_of_passing" validate:"omitempty,max=10"`
	CollegeName   *string `json:"college_name" validate:"omitempty,max=200"`

	SessionDays *string `json:"session_days" validate:"omitempty,max=100"`
	WalkinDate  *string `json:"walkin_date" validate:"omitempty,max=20"`
	WalkinTime  *string `json:"walkin_time" validate:"omitempty,max=20"`
	Timing      *string `json:"timing" validate:"omitempty,max=50"`

	RegistrationAmount *float64 `json:"registration_amount" validate:"omitempty,gte=0"`
	PendingAmount      *float64 `json:"pending_amount" validate:"omitempty,gte=0"`
	PartialAmount      *float64 `json:"partial_amount" validate:"omitempty,gte=0"`
	Concession         *float64 `json:"concession" validate:"omitempty,gte=0"`
	TransactionNumber  *string  `json:"transaction_number" validate:"omitempty,max=100"`

	Status *string `json:"status"`
	Notes  *string `json:"notes"`
}

// CreateLead creates a new lead owned by the HR caller.
func (lc *LeadController) CreateLead(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	allowed, err := authz.Can(lc.DB, user, authz.LeadCreate, nil)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Authorization check failed", err)
	}
	if !allowed {
		return utils.ErrorResponse(c, fiber.StatusForbidden, "You may not create leads", nil)
	}

	var input createLeadRequest
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	lead := models.Lead{
		Name:           input.Name,
		Email:          strings.ToLower(input.Email),
		Phone:          input.Phone,
		Location:       input.Location,
		Degree:         input.Degree,
		Domain:         input.Domain,
		YearOfPassing:  input.YearOfPassing,
		CollegeName:    input.CollegeName,
		SessionDays:    input.SessionDays,
		WalkinDate:     input.WalkinDate,
		WalkinTime:     input.WalkinTime,
		Timing:         input.Timing,
		Notes:          input.Notes,
		Status:         models.StatusNew,
		CurrentOwnerID: &user.ID,
		IsActive:       true,
	}

	if err := lc.Store.CreateLead(&lead, user.ID); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create lead", err)
	}

	lc.Hub.Publish(notify.Event{
		Type:    models.NotifyLeadCreated,
		Title:   "New lead created",
		Body:    lead.Name,
		Roles:   []string{models.RoleManager, models.RoleAdmin, models.RoleTeamLead},
		Payload: fiber.Map{"lead_id": lead.ID},
	})

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(lead))
}

// GetLeads returns the role-appropriate lead listing: the shared pool for
// HR, currently-owned leads for accounts, everything for manager-level
// roles.
func (lc *LeadController) GetLeads(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	allowed, err := authz.Can(lc.DB, user, authz.LeadRead, nil)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Authorization check failed", err)
	}

	filter, badFilter := lc.filterFromQuery(c)
	if badFilter != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, badFilter.Error(), nil)
	}

	switch user.Role {
	case models.RoleHR:
		// HR browses the shared unowned pool; owned leads live under /my.
		filter.UnassignedOnly = true
	case models.RoleAccounts:
		filter.OwnerID = &user.ID
	default:
		if !allowed {
			return utils.ErrorResponse(c, fiber.StatusForbidden, "You may not list leads", nil)
		}
	}

	return lc.respondWithSearch(c, filter)
}

// GetMyLeads lists the caller's currently-owned leads.
func (lc *LeadController) GetMyLeads(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	filter, badFilter := lc.filterFromQuery(c)
	if badFilter != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, badFilter.Error(), nil)
	}
	filter.OwnerID = &user.ID

	return lc.respondWithSearch(c, filter)
}

// GetMyCompleted lists leads the caller ever touched that reached the
// completion path, including leads since handed to accounts.
func (lc *LeadController) GetMyCompleted(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	filter, badFilter := lc.filterFromQuery(c)
	if badFilter != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, badFilter.Error(), nil)
	}
	filter.PreviousOwnerID = &user.ID
	filter.Statuses = []string{
		models.StatusCompleted,
		models.StatusPending,
		models.StatusAccountsPending,
		models.StatusReadyForClass,
	}

	return lc.respondWithSearch(c, filter)
}

// GetMyAccountsPending lists the accounts caller's open payment queue.
func (lc *LeadController) GetMyAccountsPending(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	filter, badFilter := lc.filterFromQuery(c)
	if badFilter != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, badFilter.Error(), nil)
	}
	filter.OwnerID = &user.ID
	filter.Statuses = []string{
		models.StatusPending,
		models.StatusAccountsPending,
		models.StatusPendingButReady,
	}

	return lc.respondWithSearch(c, filter)
}

// GetLead returns one lead by id, subject to the read gate.
func (lc *LeadController) GetLead(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	lead, err := lc.Store.GetLead(utils.ParseUint(c.Params("id")))
	if err != nil {
		return lc.storeError(c, err, "Failed to fetch lead")
	}

	allowed, err := authz.Can(lc.DB, user, authz.LeadRead, lead)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Authorization check failed", err)
	}
	if !allowed {
		return utils.ErrorResponse(c, fiber.StatusForbidden, "You may not view this lead", nil)
	}

	return c.JSON(utils.SuccessResponse(lead))
}

// UpdateLead applies a role-gated field/status edit, writing history and
// possibly triggering the accounts auto-transfer.
func (lc *LeadController) UpdateLead(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	leadID := utils.ParseUint(c.Params("id"))

	lead, err := lc.Store.GetLead(leadID)
	if err != nil {
		return lc.storeError(c, err, "Failed to fetch lead")
	}

	allowed, err := authz.Can(lc.DB, user, authz.LeadUpdate, lead)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Authorization check failed", err)
	}
	if !allowed {
		return utils.ErrorResponse(c, fiber.StatusForbidden, "You may not edit this lead", nil)
	}

	var input updateLeadRequest
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	if input.Status != nil && !models.IsValidLeadStatus(*input.Status) {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Unknown lead status", nil)
	}

	updated, err := lc.Store.UpdateLead(leadID, store.LeadUpdate{
		Name:               input.Name,
		Email:              lowered(input.Email),
		Phone:              input.Phone,
		Location:           input.Location,
		Degree:             input.Degree,
		Domain:             input.Domain,
		YearOfPassing:      input.YearOfPassing,
		CollegeName:        input.CollegeName,
		SessionDays:        input.SessionDays,
		WalkinDate:         input.WalkinDate,
		WalkinTime:         input.WalkinTime,
		Timing:             input.Timing,
		RegistrationAmount: input.RegistrationAmount,
		PendingAmount:      input.PendingAmount,
		PartialAmount:      input.PartialAmount,
		Concession:         input.Concession,
		TransactionNumber:  input.TransactionNumber,
		Status:             input.Status,
		Notes:              input.Notes,
	}, user.ID)
	if err != nil {
		return lc.storeError(c, err, "Failed to update lead")
	}

	lc.Hub.Publish(notify.Event{
		Type:    models.NotifyLeadUpdated,
		Title:   "Lead updated",
		Body:    updated.Name,
		Roles:   []string{models.RoleManager, models.RoleAdmin, models.RoleTeamLead, models.RoleAccounts},
		Payload: fiber.Map{"lead_id": updated.ID, "status": updated.Status},
	})

	return c.JSON(utils.SuccessResponse(updated))
}

// DeleteLead is HR's soft release back to the pool, or a manager/admin
// hard delete that removes the lead and its entire audit trail.
func (lc *LeadController) DeleteLead(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	leadID := utils.ParseUint(c.Params("id"))

	lead, err := lc.Store.GetLead(leadID)
	if err != nil {
		return lc.storeError(c, err, "Failed to fetch lead")
	}

	if hard, err := authz.Can(lc.DB, user, authz.LeadHardDelete, lead); err == nil && hard {
		if err := lc.Store.DeleteLead(leadID, user.ID, "lead deleted"); err != nil {
			return lc.storeError(c, err, "Failed to delete lead")
		}
		lc.Hub.Publish(notify.Event{
			Type:    models.NotifyLeadDeleted,
			Title:   "Lead deleted",
			Roles:   []string{models.RoleManager, models.RoleAdmin},
			Payload: fiber.Map{"lead_id": leadID},
		})
		return c.JSON(utils.SuccessResponse(fiber.Map{
			"message": "Lead deleted",
		}))
	}

	soft, err := authz.Can(lc.DB, user, authz.LeadSoftDelete, lead)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Authorization check failed", err)
	}
	if !soft {
		return utils.ErrorResponse(c, fiber.StatusForbidden, "You may not delete this lead", nil)
	}

	if err := lc.Store.UnassignLead(leadID, user.ID); err != nil {
		return lc.storeError(c, err, "Failed to release lead")
	}

	lc.Hub.Publish(notify.Event{
		Type:    models.NotifyLeadReleased,
		Title:   "Lead released to pool",
		Roles:   []string{models.RoleHR, models.RoleManager, models.RoleAdmin},
		Payload: fiber.Map{"lead_id": leadID},
	})

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"message": "Lead released back to the pool",
	}))
}

type assignLeadRequest struct {
	ToUserID uint   `json:"to_user_id" validate:"required"`
	Reason   string `json:"reason" validate:"omitempty,max=250"`
}

// AssignLead claims or reassigns a lead. HR may only self-claim from the
// pool; manager/admin may reassign to anyone.
func (lc *LeadController) AssignLead(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	leadID := utils.ParseUint(c.Params("id"))

	var input assignLeadRequest
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	lead, err := lc.Store.GetLead(leadID)
	if err != nil {
		return lc.storeError(c, err, "Failed to fetch lead")
	}

	action := authz.LeadReassign
	if user.Role == models.RoleHR {
		if input.ToUserID != user.ID {
			return utils.ErrorResponse(c, fiber.StatusForbidden, "HR may only claim leads for themselves", nil)
		}
		action = authz.LeadClaim
	}

	allowed, err := authz.Can(lc.DB, user, action, lead)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Authorization check failed", err)
	}
	if !allowed {
		return utils.ErrorResponse(c, fiber.StatusForbidden, "You may not assign this lead", nil)
	}

	reason := input.Reason
	if reason == "" {
		reason = "lead assigned"
	}

	updated, err := lc.Store.AssignLead(leadID, input.ToUserID, user.ID, reason)
	if err != nil {
		return lc.storeError(c, err, "Failed to assign lead")
	}

	lc.Hub.Publish(notify.Event{
		Type:    models.NotifyLeadAssigned,
		Title:   "Lead assigned",
		Body:    updated.Name,
		Roles:   []string{models.RoleManager, models.RoleAdmin, models.RoleHR},
		Payload: fiber.Map{"lead_id": updated.ID, "owner_id": input.ToUserID},
	})

	return c.JSON(utils.SuccessResponse(updated))
}

// PassToAccounts explicitly hands the lead to the accounts queue.
func (lc *LeadController) PassToAccounts(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	leadID := utils.ParseUint(c.Params("id"))

	lead, err := lc.Store.GetLead(leadID)
	if err != nil {
		return lc.storeError(c, err, "Failed to fetch lead")
	}

	allowed, err := authz.Can(lc.DB, user, authz.LeadUpdate, lead)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Authorization check failed", err)
	}
	if !allowed {
		return utils.ErrorResponse(c, fiber.StatusForbidden, "You may not hand off this lead", nil)
	}

	updated, err := lc.Store.PassToAccounts(leadID, user.ID)
	if err != nil {
		return lc.storeError(c, err, "Failed to pass lead to accounts")
	}

	lc.Hub.Publish(notify.Event{
		Type:    models.NotifyLeadAssigned,
		Title:   "Lead passed to accounts",
		Body:    updated.Name,
		Roles:   []string{models.RoleAccounts, models.RoleManager, models.RoleAdmin},
		Payload: fiber.Map{"lead_id": updated.ID},
	})

	return c.JSON(utils.SuccessResponse(updated))
}

// GetLeadHistory returns the audit trail for one lead.
func (lc *LeadController) GetLeadHistory(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	leadID := utils.ParseUint(c.Params("id"))

	lead, err := lc.Store.GetLead(leadID)
	if err != nil {
		return lc.storeError(c, err, "Failed to fetch lead")
	}

	allowed, err := authz.Can(lc.DB, user, authz.LeadHistory, lead)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Authorization check failed", err)
	}
	if !allowed {
		return utils.ErrorResponse(c, fiber.StatusForbidden, "You may not view this lead's history", nil)
	}

	history, err := lc.Store.LeadHistory(leadID)
	if err != nil {
		return lc.storeError(c, err, "Failed to fetch lead history")
	}

	return c.JSON(utils.SuccessResponse(history))
}

// GetAllHistory returns one page of the global ledger. Manager/admin only.
func (lc *LeadController) GetAllHistory(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	allowed, err := authz.Can(lc.DB, user, authz.HistoryReadAll, nil)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Authorization check failed", err)
	}
	if !allowed {
		return utils.ErrorResponse(c, fiber.StatusForbidden, "You may not view the full ledger", nil)
	}

	page, limit, offset := utils.Pagination(c)
	history, total, err := lc.Store.AllHistory(limit, offset)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch history", err)
	}

	return c.JSON(utils.PaginatedResponse{
		Data:  history,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// ExportLeads streams the caller-visible leads as CSV.
func (lc *LeadController) ExportLeads(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	allowed, err := authz.Can(lc.DB, user, authz.LeadExport, nil)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Authorization check failed", err)
	}
	if !allowed {
		return utils.ErrorResponse(c, fiber.StatusForbidden, "You may not export leads", nil)
	}

	var leads []models.Lead
	if err := lc.DB.Order("updated_at DESC").Find(&leads).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch leads", err)
	}

	c.Set("Content-Type", "text/csv")
	c.Set("Content-Disposition", "attachment; filename=leads_export_"+time.Now().Format("20060102")+".csv")

	writer := csv.NewWriter(c)
	defer writer.Flush()

	header := []string{"name", "email", "phone", "location", "degree", "domain", "status", "owner_id"}
	if err := writer.Write(header); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to generate CSV", err)
	}

	for _, lead := range leads {
		ownerID := ""
		if lead.CurrentOwnerID != nil {
			ownerID = fmt.Sprintf("%d", *lead.CurrentOwnerID)
		}
		record := []string{
			lead.Name,
			lead.Email,
			lead.Phone,
			lead.Location,
			lead.Degree,
			lead.Domain,
			lead.Status,
			ownerID,
		}
		if err := writer.Write(record); err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to generate CSV", err)
		}
	}

	return nil
}

// filterFromQuery builds the search filter shared by the listing endpoints.
func (lc *LeadController) filterFromQuery(c *fiber.Ctx) (store.LeadFilter, error) {
	_, limit, offset := utils.Pagination(c)

	filter := store.LeadFilter{
		Search: c.Query("search"),
		Limit:  limit,
		Offset: offset,
	}

	if status := c.Query("status"); status != "" {
		if !models.IsValidLeadStatus(status) {
			return filter, fmt.Errorf("unknown status %q", status)
		}
		filter.Status = status
	}

	if from := c.Query("from"); from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			return filter, fmt.Errorf("invalid from date %q", from)
		}
		filter.CreatedFrom = &t
	}
	if to := c.Query("to"); to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			return filter, fmt.Errorf("invalid to date %q", to)
		}
		end := t.Add(24*time.Hour - time.Nanosecond)
		filter.CreatedTo = &end
	}

	return filter, nil
}

func (lc *LeadController) respondWithSearch(c *fiber.Ctx, filter store.LeadFilter) error {
	page, limit, _ := utils.Pagination(c)

	leads, total, err := lc.Store.SearchLeads(filter)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to search leads", err)
	}

	return c.JSON(utils.PaginatedResponse{
		Data:  leads,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// storeError maps store sentinel errors onto HTTP statuses.
func (lc *LeadController) storeError(c *fiber.Ctx, err error, fallback string) error {
	switch err {
	case store.ErrLeadNotFound:
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Lead not found", nil)
	case store.ErrAlreadyAssigned:
		return utils.ErrorResponse(c, fiber.StatusConflict, "Lead already assigned", nil)
	case store.ErrNotOwner:
		return utils.ErrorResponse(c, fiber.StatusForbidden, "You do not own this lead", nil)
	case store.ErrUserNotFound:
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Target user not found or inactive", nil)
	case store.ErrNoAccountsUser:
		return utils.ErrorResponse(c, fiber.StatusConflict, "No active accounts user available", nil)
	default:
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, fallback, err)
	}
}

func lowered(s *string) *string {
	if s == nil {
		return nil
	}
	l := strings.ToLower(*s)
	return &l
}
