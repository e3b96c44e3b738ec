package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"leadflow/models"
)

func newClassStore(t *testing.T) *ClassStore {
	t.Helper()
	return NewClassStore(newTestDB(t), newTestLogger())
}

func createClass(t *testing.T, db *gorm.DB, name, subject string, organizerID uint) *models.Class {
	t.Helper()
	class := models.Class{
		Name:        name,
		Subject:     subject,
		OrganizerID: organizerID,
		IsActive:    true,
	}
	require.NoError(t, db.Create(&class).Error)
	return &class
}

func createBareLead(t *testing.T, db *gorm.DB, name string) *models.Lead {
	t.Helper()
	lead := models.Lead{Name: name, Status: models.StatusReadyForClass, IsActive: true}
	require.NoError(t, db.Create(&lead).Error)
	return &lead
}

func TestEnrollAssignsStudentID(t *testing.T) {
	s := newClassStore(t)
	organizer := createUser(t, s.DB, "org@example.com", models.RoleSessionOrganizer)
	class := createClass(t, s.DB, "Batch 1", "golang", organizer.ID)
	lead := createBareLead(t, s.DB, "Student One")

	student, err := s.Enroll(class.ID, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, "golang-1", student.StudentID)
}

func TestEnrollSameClassTwiceIsIdempotent(t *testing.T) {
	s := newClassStore(t)
	organizer := createUser(t, s.DB, "org@example.com", models.RoleSessionOrganizer)
	class := createClass(t, s.DB, "Batch 1", "golang", organizer.ID)
	lead := createBareLead(t, s.DB, "Student One")

	first, err := s.Enroll(class.ID, lead.ID)
	require.NoError(t, err)

	second, err := s.Enroll(class.ID, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, s.DB.Model(&models.ClassStudent{}).Where("lead_id = ?", lead.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestEnrollRejectsSecondClass(t *testing.T) {
	s := newClassStore(t)
	organizer := createUser(t, s.DB, "org@example.com", models.RoleSessionOrganizer)
	class1 := createClass(t, s.DB, "Batch 1", "golang", organizer.ID)
	class2 := createClass(t, s.DB, "Batch 2", "python", organizer.ID)
	lead := createBareLead(t, s.DB, "Student One")

	_, err := s.Enroll(class1.ID, lead.ID)
	require.NoError(t, err)

	_, err = s.Enroll(class2.ID, lead.ID)
	assert.ErrorIs(t, err, ErrAlreadyEnrolled)
}

func TestEnrollUnknownLead(t *testing.T) {
	s := newClassStore(t)
	organizer := createUser(t, s.DB, "org@example.com", models.RoleSessionOrganizer)
	class := createClass(t, s.DB, "Batch 1", "golang", organizer.ID)

	_, err := s.Enroll(class.ID, 9999)
	assert.ErrorIs(t, err, ErrLeadNotFound)
}

func TestEnsureStudentIDsSequencesByJoinOrder(t *testing.T) {
	s := newClassStore(t)
	organizer := createUser(t, s.DB, "org@example.com", models.RoleSessionOrganizer)
	class := createClass(t, s.DB, "Batch 1", "golang", organizer.ID)

	var enrolled []*models.ClassStudent
	for _, name := range []string{"First", "Second", "Third"} {
		lead := createBareLead(t, s.DB, name)
		student, err := s.Enroll(class.ID, lead.ID)
		require.NoError(t, err)
		enrolled = append(enrolled, student)
	}

	assert.Equal(t, "golang-1", enrolled[0].StudentID)
	assert.Equal(t, "golang-2", enrolled[1].StudentID)
	assert.Equal(t, "golang-3", enrolled[2].StudentID)
}

func TestEnsureStudentIDsIdempotent(t *testing.T) {
	s := newClassStore(t)
	organizer := createUser(t, s.DB, "org@example.com", models.RoleSessionOrganizer)
	class := createClass(t, s.DB, "Batch 1", "golang", organizer.ID)
	lead := createBareLead(t, s.DB, "Student")

	student, err := s.Enroll(class.ID, lead.ID)
	require.NoError(t, err)
	require.Equal(t, "golang-1", student.StudentID)

	require.NoError(t, s.EnsureStudentIDs(class.ID))
	require.NoError(t, s.EnsureStudentIDs(class.ID))

	var got models.ClassStudent
	require.NoError(t, s.DB.First(&got, student.ID).Error)
	assert.Equal(t, "golang-1", got.StudentID)
}

func TestWithdraw(t *testing.T) {
	s := newClassStore(t)
	organizer := createUser(t, s.DB, "org@example.com", models.RoleSessionOrganizer)
	class := createClass(t, s.DB, "Batch 1", "golang", organizer.ID)
	lead := createBareLead(t, s.DB, "Student")

	_, err := s.Enroll(class.ID, lead.ID)
	require.NoError(t, err)

	require.NoError(t, s.Withdraw(class.ID, lead.ID))
	assert.ErrorIs(t, s.Withdraw(class.ID, lead.ID), ErrStudentNotFound)

	// The slot frees up for another class.
	class2 := createClass(t, s.DB, "Batch 2", "python", organizer.ID)
	_, err = s.Enroll(class2.ID, lead.ID)
	require.NoError(t, err)
}

func TestRosterPreloadsLeads(t *testing.T) {
	s := newClassStore(t)
	organizer := createUser(t, s.DB, "org@example.com", models.RoleSessionOrganizer)
	class := createClass(t, s.DB, "Batch 1", "golang", organizer.ID)
	lead := createBareLead(t, s.DB, "Student One")

	_, err := s.Enroll(class.ID, lead.ID)
	require.NoError(t, err)

	roster, err := s.Roster(class.ID)
	require.NoError(t, err)
	require.Len(t, roster, 1)
	assert.Equal(t, "Student One", roster[0].Lead.Name)
}

func TestUpsertAttendanceOverwritesSameDay(t *testing.T) {
	s := newClassStore(t)
	organizer := createUser(t, s.DB, "org@example.com", models.RoleSessionOrganizer)
	class := createClass(t, s.DB, "Batch 1", "golang", organizer.ID)
	lead := createBareLead(t, s.DB, "Student")
	student, err := s.Enroll(class.ID, lead.ID)
	require.NoError(t, err)

	day := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	first, err := s.UpsertAttendance(class.ID, student.ID, day, models.AttendanceAbsent, organizer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceAbsent, first.Status)

	second, err := s.UpsertAttendance(class.ID, student.ID, day, models.AttendancePresent, organizer.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, models.AttendancePresent, second.Status)

	records, err := s.AttendanceForDate(class.ID, day)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.AttendancePresent, records[0].Status)
}

func TestUpsertAttendanceUnknownStudent(t *testing.T) {
	s := newClassStore(t)
	organizer := createUser(t, s.DB, "org@example.com", models.RoleSessionOrganizer)
	class := createClass(t, s.DB, "Batch 1", "golang", organizer.ID)

	_, err := s.UpsertAttendance(class.ID, 9999, time.Now(), models.AttendancePresent, organizer.ID)
	assert.ErrorIs(t, err, ErrStudentNotFound)
}

func TestUpsertMarksComputesTotal(t *testing.T) {
	s := newClassStore(t)
	organizer := createUser(t, s.DB, "org@example.com", models.RoleSessionOrganizer)
	class := createClass(t, s.DB, "Batch 1", "golang", organizer.ID)
	lead := createBareLead(t, s.DB, "Student")
	student, err := s.Enroll(class.ID, lead.ID)
	require.NoError(t, err)

	mark, err := s.UpsertMarks(class.ID, student.ID, models.Mark{
		Communication:  7,
		Technical:      8,
		Aptitude:       6,
		ProblemSolving: 9,
		Presentation:   5,
		Total:          99,
	})
	require.NoError(t, err)
	assert.Equal(t, 35, mark.Total)

	// A second write replaces, never duplicates.
	updated, err := s.UpsertMarks(class.ID, student.ID, models.Mark{Technical: 10})
	require.NoError(t, err)
	assert.Equal(t, mark.ID, updated.ID)
	assert.Equal(t, 10, updated.Total)

	marks, err := s.Marks(class.ID)
	require.NoError(t, err)
	require.Len(t, marks, 1)
	assert.Equal(t, 10, marks[0].Total)
}

func TestUpsertMarksStudentFromOtherClass(t *testing.T) {
	s := newClassStore(t)
	organizer := createUser(t, s.DB, "org@example.com", models.RoleSessionOrganizer)
	class1 := createClass(t, s.DB, "Batch 1", "golang", organizer.ID)
	class2 := createClass(t, s.DB, "Batch 2", "python", organizer.ID)
	lead := createBareLead(t, s.DB, "Student")
	student, err := s.Enroll(class1.ID, lead.ID)
	require.NoError(t, err)

	_, err = s.UpsertMarks(class2.ID, student.ID, models.Mark{Technical: 5})
	assert.ErrorIs(t, err, ErrStudentNotFound)
}
