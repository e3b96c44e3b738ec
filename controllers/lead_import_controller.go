package controller

import (
	"encoding/csv"
	"strconv"
	"strings"

	"github.com/badoux/checkmail"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"leadflow/authz"
	"leadflow/config"
	"leadflow/models"
	"leadflow/store"
	"leadflow/utils"
)

type LeadImportController struct {
	DB     *gorm.DB
	Store  *store.LeadStore
	Logger *logrus.Logger
}

func NewLeadImportController(db *gorm.DB, leads *store.LeadStore, logger *logrus.Logger) *LeadImportController {
	return &LeadImportController{
		DB:     db,
		Store:  leads,
		Logger: logger,
	}
}

type rowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// UploadLeads bulk-imports unowned leads from a CSV file. Rows are
// validated individually; invalid rows and duplicate emails are skipped
// and reported, never fatal for the batch.
func (ic *LeadImportController) UploadLeads(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	allowed, err := authz.Can(ic.DB, user, authz.LeadImport, nil)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Authorization check failed", err)
	}
	if !allowed {
		return utils.ErrorResponse(c, fiber.StatusForbidden, "You may not import leads", nil)
	}

	file, err := c.FormFile("file")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "File upload error", err)
	}

	if file.Size > int64(config.AppConfig.UploadMaxBytes) {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "File too large", nil)
	}

	src, err := file.Open()
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to open file", err)
	}
	defer src.Close()

	reader := csv.NewReader(src)
	records, err := reader.ReadAll()
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Failed to parse CSV file", err)
	}

	if len(records) < 2 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "CSV file must have at least a header and one row", nil)
	}

	header := records[0]
	rows := records[1:]

	batchRef := uuid.NewString()
	var leads []models.Lead
	var rowErrors []rowError

	for i, row := range rows {
		if len(row) != len(header) {
			rowErrors = append(rowErrors, rowError{Row: i + 2, Reason: "column count mismatch"})
			continue
		}

		data := make(map[string]string, len(header))
		for j, col := range header {
			data[strings.ToLower(strings.TrimSpace(col))] = strings.TrimSpace(row[j])
		}

		name := data["name"]
		if name == "" {
			rowErrors = append(rowErrors, rowError{Row: i + 2, Reason: "name is required"})
			continue
		}

		email := strings.ToLower(data["email"])
		if email != "" {
			if err := checkmail.ValidateFormat(email); err != nil {
				rowErrors = append(rowErrors, rowError{Row: i + 2, Reason: "invalid email"})
				continue
			}
		}

		lead := models.Lead{
			Name:          name,
			Email:         email,
			Phone:         data["phone"],
			Location:      data["location"],
			Degree:        data["degree"],
			Domain:        data["domain"],
			YearOfPassing: data["year_of_passing"],
			CollegeName:   data["college_name"],
			Status:        models.StatusNew,
			IsActive:      true,
			Notes:         data["notes"],
		}
		if amount := data["registration_amount"]; amount != "" {
			if v, err := strconv.ParseFloat(amount, 64); err == nil {
				lead.RegistrationAmount = v
			}
		}
		if user.CanManage() {
			lead.SourceManagerID = &user.ID
		}

		leads = append(leads, lead)
	}

	inserted, skipped, err := ic.Store.BulkInsert(leads)
	if err != nil {
		ic.Logger.WithError(err).WithField("batch_ref", batchRef).
			Error("bulk lead import failed mid-batch")
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to import leads", err)
	}

	response := fiber.Map{
		"message":    "Leads imported",
		"batch_ref":  batchRef,
		"total_rows": len(rows),
		"imported":   inserted,
		"duplicates": skipped,
		"invalid":    len(rowErrors),
	}
	if len(rowErrors) > 0 {
		response["row_errors"] = rowErrors
	}

	ic.Logger.WithFields(logrus.Fields{
		"batch_ref": batchRef,
		"imported":  inserted,
		"skipped":   skipped,
		"invalid":   len(rowErrors),
	}).Info("lead import completed")

	return c.JSON(utils.SuccessResponse(response))
}
