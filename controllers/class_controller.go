package controller

import (
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

type ClassController struct {
	DB     *gorm.DB
	Store  *store.ClassStore
	Hub    *notify.Hub
	Logger *logrus.Logger
}

func NewClassController(db *gorm.DB, classes *store.ClassStore, hub *notify.Hub, logger *logrus.Logger) *ClassController {
	return &ClassController{
		DB:     db,
		Store:  classes,
		Hub:    hub,
		Logger: logger,
	}
}

type classRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Subject     string `json:"subject" validate:"required,max=50"`
	SessionDays string `json:"session_days" validate:"omitempty,max=100"`
	Timing      string `json:"timing" validate:"omitempty,max=50"`
}

// CreateClass creates a class owned by the calling organizer.
func (cc *ClassController) CreateClass(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	if err := cc.requireClassManage(c, user); err != nil {
		return err
	}

	var input classRequest
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	class := models.Class{
		Name:        input.Name,
		Subject:     input.Subject,
		OrganizerID: user.ID,
		SessionDays: input.SessionDays,
		Timing:      input.Timing,
		IsActive:    true,
	}

	if err := cc.DB.Create(&class).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create class", err)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(class))
}

// GetClasses lists classes.
func (cc *ClassController) GetClasses(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	allowed, err := authz.Can(cc.DB, user, authz.ClassRead, nil)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Authorization check failed", err)
	}
	if !allowed {
		return utils.ErrorResponse(c, fiber.StatusForbidden, "You may not view classes", nil)
	}

	page, limit, offset := utils.Pagination(c)

	var total int64
	if err := cc.DB.Model(&models.Class{}).Count(&total).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count classes", err)
	}

	var classes []models.Class
	if err := cc.DB.Order("created_at DESC").Offset(offset).Limit(limit).Find(&classes).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch classes", err)
	}

	return c.JSON(utils.PaginatedResponse{
		Data:  classes,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// GetClass returns one class with its roster.
func (cc *ClassController) GetClass(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	allowed, err := authz.Can(cc.DB, user, authz.ClassRead, nil)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Authorization check failed", err)
	}
	if !allowed {
		return utils.ErrorResponse(c, fiber.StatusForbidden, "You may not view classes", nil)
	}

	classID := utils.ParseUint(c.Params("id"))
	class, err := cc.Store.GetClass(classID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Class not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch class", err)
	}

	students, err := cc.Store.Roster(classID)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch roster", err)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"class":    class,
		"students": students,
	}))
}

// UpdateClass edits class details.
func (cc *ClassController) UpdateClass(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	if err := cc.requireClassManage(c, user); err != nil {
		return err
	}

	classID := utils.ParseUint(c.Params("id"))
	class, err := cc.Store.GetClass(classID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Class not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch class", err)
	}

	var input classRequest
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	class.Name = input.Name
	class.Subject = input.Subject
	class.SessionDays = input.SessionDays
	class.Timing = input.Timing

	if err := cc.DB.Save(class).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update class", err)
	}

	return c.JSON(utils.SuccessResponse(class))
}

// DeleteClass removes a class and its roster.
func (cc *ClassController) DeleteClass(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	if err := cc.requireClassManage(c, user); err != nil {
		return err
	}

	classID := utils.ParseUint(c.Params("id"))

	tx := cc.DB.Begin()

	if err := tx.Where("class_id = ?", classID).Delete(&models.ClassStudent{}).Error; err != nil {
		tx.Rollback()
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete class roster", err)
	}

	result := tx.Delete(&models.Class{}, classID)
	if result.Error != nil {
		tx.Rollback()
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete class", result.Error)
	}
	if result.RowsAffected == 0 {
		tx.Rollback()
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Class not found", nil)
	}

	tx.Commit()

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"message": "Class deleted",
	}))
}

type enrollRequest struct {
	LeadID uint `json:"lead_id" validate:"required"`
}

// EnrollStudent adds a lead to the class roster.
func (cc *ClassController) EnrollStudent(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	if err := cc.requireClassManage(c, user); err != nil {
		return err
	}

	classID := utils.ParseUint(c.Params("id"))

	var input enrollRequest
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	student, err := cc.Store.Enroll(classID, input.LeadID)
	if err != nil {
		switch err {
		case store.ErrLeadNotFound:
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Lead not found", nil)
		case store.ErrAlreadyEnrolled:
			return utils.ErrorResponse(c, fiber.StatusConflict, "Lead is already enrolled in another class", nil)
		case gorm.ErrRecordNotFound:
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Class not found", nil)
		default:
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to enroll student", err)
		}
	}

	cc.Hub.Publish(notify.Event{
		Type:    models.NotifyClassEnrolled,
		Title:   "Student enrolled",
		Roles:   []string{models.RoleSessionOrganizer, models.RoleSessionCoordinator, models.RoleManager, models.RoleAdmin},
		Payload: fiber.Map{"class_id": classID, "lead_id": input.LeadID},
	})

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(student))
}

// WithdrawStudent removes a lead from the class roster.
func (cc *ClassController) WithdrawStudent(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	if err := cc.requireClassManage(c, user); err != nil {
		return err
	}

	classID := utils.ParseUint(c.Params("id"))
	leadID := utils.ParseUint(c.Params("leadId"))

	if err := cc.Store.Withdraw(classID, leadID); err != nil {
		if err == store.ErrStudentNotFound {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Student not found in this class", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to withdraw student", err)
	}

	cc.Hub.Publish(notify.Event{
		Type:    models.NotifyClassWithdrawn,
		Title:   "Student withdrawn",
		Roles:   []string{models.RoleSessionOrganizer, models.RoleSessionCoordinator, models.RoleManager, models.RoleAdmin},
		Payload: fiber.Map{"class_id": classID, "lead_id": leadID},
	})

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"message": "Student withdrawn",
	}))
}

// GetRoster lists the class's students. Pure read; student ids are
// assigned at enrollment.
func (cc *ClassController) GetRoster(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	allowed, err := authz.Can(cc.DB, user, authz.ClassRead, nil)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Authorization check failed", err)
	}
	if !allowed {
		return utils.ErrorResponse(c, fiber.StatusForbidden, "You may not view the roster", nil)
	}

	classID := utils.ParseUint(c.Params("id"))
	students, err := cc.Store.Roster(classID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Class not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch roster", err)
	}

	return c.JSON(utils.SuccessResponse(students))
}

// AssignStudentIDs backfills missing student ids for the class. Idempotent.
func (cc *ClassController) AssignStudentIDs(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	if err := cc.requireClassManage(c, user); err != nil {
		return err
	}

	classID := utils.ParseUint(c.Params("id"))
	if err := cc.Store.EnsureStudentIDs(classID); err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Class not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to assign student ids", err)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"message": "Student ids assigned",
	}))
}

type attendanceRequest struct {
	ClassStudentID uint   `json:"class_student_id" validate:"required"`
	Date           string `json:"date" validate:"required"`
	Status         string `json:"status" validate:"required,oneof=present absent late"`
}

// MarkAttendance upserts one attendance record keyed on (class, student, date).
func (cc *ClassController) MarkAttendance(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	allowed, err := authz.Can(cc.DB, user, authz.AttendanceMark, nil)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Authorization check failed", err)
	}
	if !allowed {
		return utils.ErrorResponse(c, fiber.StatusForbidden, "You may not mark attendance", nil)
	}

	classID := utils.ParseUint(c.Params("id"))

	var input attendanceRequest
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	date, err := time.Parse("2006-01-02", input.Date)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid date, expected YYYY-MM-DD", err)
	}

	attendance, err := cc.Store.UpsertAttendance(classID, input.ClassStudentID, date, input.Status, user.ID)
	if err != nil {
		if err == store.ErrStudentNotFound {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Student not found in this class", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to record attendance", err)
	}

	return c.JSON(utils.SuccessResponse(attendance))
}

// GetAttendance lists a class's attendance for one date.
func (cc *ClassController) GetAttendance(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	allowed, err := authz.Can(cc.DB, user, authz.ClassRead, nil)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Authorization check failed", err)
	}
	if !allowed {
		return utils.ErrorResponse(c, fiber.StatusForbidden, "You may not view attendance", nil)
	}

	classID := utils.ParseUint(c.Params("id"))

	dateStr := c.Query("date", time.Now().Format("2006-01-02"))
	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid date, expected YYYY-MM-DD", err)
	}

	records, err := cc.Store.AttendanceForDate(classID, date)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch attendance", err)
	}

	return c.JSON(utils.SuccessResponse(records))
}

type marksRequest struct {
	ClassStudentID uint `json:"class_student_id" validate:"required"`
	Communication  int  `json:"communication" validate:"gte=0,lte=10"`
	Technical      int  `json:"technical" validate:"gte=0,lte=10"`
	Aptitude       int  `json:"aptitude" validate:"gte=0,lte=10"`
	ProblemSolving int  `json:"problem_solving" validate:"gte=0,lte=10"`
	Presentation   int  `json:"presentation" validate:"gte=0,lte=10"`
}

// UpsertMarks stores a student's sub-scores. The total is computed
// server-side; client-supplied totals are ignored.
func (cc *ClassController) UpsertMarks(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	allowed, err := authz.Can(cc.DB, user, authz.MarksEdit, nil)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Authorization check failed", err)
	}
	if !allowed {
		return utils.ErrorResponse(c, fiber.StatusForbidden, "You may not edit marks", nil)
	}

	classID := utils.ParseUint(c.Params("id"))

	var input marksRequest
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	mark, err := cc.Store.UpsertMarks(classID, input.ClassStudentID, models.Mark{
		Communication:  input.Communication,
		Technical:      input.Technical,
		Aptitude:       input.Aptitude,
		ProblemSolving: input.ProblemSolving,
		Presentation:   input.Presentation,
	})
	if err != nil {
		if err == store.ErrStudentNotFound {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Student not found in this class", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to save marks", err)
	}

	return c.JSON(utils.SuccessResponse(mark))
}

// GetMarks lists the class's marks.
func (cc *ClassController) GetMarks(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	allowed, err := authz.Can(cc.DB, user, authz.ClassRead, nil)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Authorization check failed", err)
	}
	if !allowed {
		return utils.ErrorResponse(c, fiber.StatusForbidden, "You may not view marks", nil)
	}

	classID := utils.ParseUint(c.Params("id"))
	marks, err := cc.Store.Marks(classID)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch marks", err)
	}

	return c.JSON(utils.SuccessResponse(marks))
}

func (cc *ClassController) requireClassManage(c *fiber.Ctx, user *models.User) error {
	allowed, err := authz.Can(cc.DB, user, authz.ClassManage, nil)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Authorization check failed", err)
	}
	if !allowed {
		return utils.ErrorResponse(c, fiber.StatusForbidden, "You may not manage classes", nil)
	}
	return nil
}
