package store

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"leadflow/models"
)

// ClassStore handles class rosters, attendance and marks.
type ClassStore struct {
	DB     *gorm.DB
	Logger *logrus.Logger
}

func NewClassStore(db *gorm.DB, logger *logrus.Logger) *ClassStore {
	return &ClassStore{
		DB:     db,
		Logger: logger,
	}
}

// GetClass fetches a class by id.
func (s *ClassStore) GetClass(id uint) (*models.Class, error) {
	var class models.Class
	if err := s.DB.First(&class, id).Error; err != nil {
		return nil, err
	}
	return &class, nil
}

// Enroll adds a lead to a class roster. Adding the same lead to the same
// class twice is a no-op; a lead already enrolled in any other class is
// rejected. Student IDs are assigned immediately so that roster reads stay
// side-effect free.
func (s *ClassStore) Enroll(classID, leadID uint) (*models.ClassStudent, error) {
	class, err := s.GetClass(classID)
	if err != nil {
		return nil, err
	}

	var lead models.Lead
	if err := s.DB.First(&lead, leadID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrLeadNotFound
		}
		return nil, err
	}

	var existing models.ClassStudent
	err = s.DB.Where("lead_id = ?", leadID).First(&existing).Error
	if err == nil {
		if existing.ClassID == classID {
			return &existing, nil
		}
		return nil, ErrAlreadyEnrolled
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	student := models.ClassStudent{
		ClassID: classID,
		LeadID:  leadID,
	}
	if err := s.DB.Create(&student).Error; err != nil {
		return nil, err
	}

	if err := s.EnsureStudentIDs(class.ID); err != nil {
		return nil, err
	}

	if err := s.DB.First(&student, student.ID).Error; err != nil {
		return nil, err
	}
	return &student, nil
}

// Withdraw removes a lead from a class roster.
func (s *ClassStore) Withdraw(classID, leadID uint) error {
	result := s.DB.Where("class_id = ? AND lead_id = ?", classID, leadID).
		Delete(&models.ClassStudent{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStudentNotFound
	}
	return nil
}

// EnsureStudentIDs assigns "{subject}-{sequence}" ids, sequenced by join
// order, to every student in the class that does not have one yet. The
// command is idempotent: already-assigned ids are never rewritten.
func (s *ClassStore) EnsureStudentIDs(classID uint) error {
	class, err := s.GetClass(classID)
	if err != nil {
		return err
	}

	return s.DB.Transaction(func(tx *gorm.DB) error {
		var students []models.ClassStudent
		if err := tx.Where("class_id = ?", classID).
			Order("created_at, id").Find(&students).Error; err != nil {
			return err
		}

		for seq, student := range students {
			if student.StudentID != "" {
				continue
			}
			id := fmt.Sprintf("%s-%d", class.Subject, seq+1)
			if err := tx.Model(&models.ClassStudent{}).
				Where("id = ?", student.ID).
				Update("student_id", id).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Roster lists the students of a class with their leads preloaded. It is a
// pure read; student ids are assigned at enrollment.
func (s *ClassStore) Roster(classID uint) ([]models.ClassStudent, error) {
	if _, err := s.GetClass(classID); err != nil {
		return nil, err
	}
	var students []models.ClassStudent
	err := s.DB.Preload("Lead").Where("class_id = ?", classID).
		Order("created_at, id").Find(&students).Error
	return students, err
}

// UpsertAttendance records or overwrites one student's attendance for a
// date, keyed on (class, student, date).
func (s *ClassStore) UpsertAttendance(classID, classStudentID uint, date time.Time, status string, markedBy uint) (*models.Attendance, error) {
	var student models.ClassStudent
	if err := s.DB.Where("id = ? AND class_id = ?", classStudentID, classID).First(&student).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrStudentNotFound
		}
		return nil, err
	}

	day := date.Truncate(24 * time.Hour)

	var attendance models.Attendance
	err := s.DB.Where("class_id = ? AND class_student_id = ? AND date = ?",
		classID, classStudentID, day).First(&attendance).Error
	switch {
	case err == gorm.ErrRecordNotFound:
		attendance = models.Attendance{
			ClassID:        classID,
			ClassStudentID: classStudentID,
			Date:           day,
			Status:         status,
			MarkedByUserID: markedBy,
		}
		if err := s.DB.Create(&attendance).Error; err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		attendance.Status = status
		attendance.MarkedByUserID = markedBy
		if err := s.DB.Save(&attendance).Error; err != nil {
			return nil, err
		}
	}
	return &attendance, nil
}

// AttendanceForDate lists a class's attendance records for one date.
func (s *ClassStore) AttendanceForDate(classID uint, date time.Time) ([]models.Attendance, error) {
	var records []models.Attendance
	err := s.DB.Where("class_id = ? AND date = ?", classID, date.Truncate(24*time.Hour)).
		Find(&records).Error
	return records, err
}

// UpsertMarks stores one student's five sub-scores. Callers validate the
// 0-10 bounds at the boundary; the total is always recomputed here and
// never trusted from input.
func (s *ClassStore) UpsertMarks(classID, classStudentID uint, mark models.Mark) (*models.Mark, error) {
	var student models.ClassStudent
	if err := s.DB.Where("id = ? AND class_id = ?", classStudentID, classID).First(&student).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrStudentNotFound
		}
		return nil, err
	}

	var existing models.Mark
	err := s.DB.Where("class_student_id = ?", classStudentID).First(&existing).Error
	switch {
	case err == gorm.ErrRecordNotFound:
		existing = models.Mark{ClassStudentID: classStudentID}
	case err != nil:
		return nil, err
	}

	existing.Communication = mark.Communication
	existing.Technical = mark.Technical
	existing.Aptitude = mark.Aptitude
	existing.ProblemSolving = mark.ProblemSolving
	existing.Presentation = mark.Presentation
	existing.ComputeTotal()

	if err := s.DB.Save(&existing).Error; err != nil {
		return nil, err
	}
	return &existing, nil
}

// Marks lists every mark row for a class.
func (s *ClassStore) Marks(classID uint) ([]models.Mark, error) {
	var marks []models.Mark
	err := s.DB.
		Joins("JOIN class_students ON class_students.id = marks.class_student_id").
		Where("class_students.class_id = ?", classID).
		Find(&marks).Error
	return marks, err
}
