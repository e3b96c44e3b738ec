package models

import (
	"time"

	"gorm.io/gorm"
)

// Attendance status values.
const (
	AttendancePresent = "present"
	AttendanceAbsent  = "absent"
	AttendanceLate    = "late"
)

// Class represents a scheduled training batch run by a session organizer.
type Class struct {
	gorm.Model

	Name        string `gorm:"not null" json:"name"`
	Subject     string `gorm:"not null" json:"subject"`
	OrganizerID uint   `gorm:"not null;index" json:"organizer_id"`

	SessionDays string `json:"session_days"`
	Timing      string `json:"timing"`
	IsActive    bool   `gorm:"default:true" json:"is_active"`

	// Relations
	Organizer User           `gorm:"foreignKey:OrganizerID" json:"organizer,omitempty"`
	Students  []ClassStudent `gorm:"foreignKey:ClassID" json:"students,omitempty"`
}

// ClassStudent enrolls a lead into a class. A lead may be enrolled in at
// most one class at a time (checked at enroll time, not DB-enforced).
// StudentID is assigned by the EnsureStudentIDs command as
// "{subject}-{sequence}" in join order.
type ClassStudent struct {
	gorm.Model

	ClassID   uint   `gorm:"not null;index" json:"class_id"`
	LeadID    uint   `gorm:"not null;index" json:"lead_id"`
	StudentID string `gorm:"index" json:"student_id"`

	// Relations
	Class       Class        `json:"-"`
	Lead        Lead         `json:"lead,omitempty"`
	Attendances []Attendance `gorm:"foreignKey:ClassStudentID" json:"attendances,omitempty"`
	Marks       []Mark       `gorm:"foreignKey:ClassStudentID" json:"marks,omitempty"`
}

// Attendance records one student's presence for one date. Upserted on
// (class, student, date).
type Attendance struct {
	gorm.Model

	ClassID        uint      `gorm:"not null;index" json:"class_id"`
	ClassStudentID uint      `gorm:"not null;index" json:"class_student_id"`
	Date           time.Time `gorm:"not null;index;type:date" json:"date"`
	Status         string    `gorm:"not null" json:"status"`
	MarkedByUserID uint      `gorm:"not null" json:"marked_by_user_id"`

	// Relations
	Class        Class        `json:"-"`
	ClassStudent ClassStudent `json:"-"`
	MarkedBy     User         `gorm:"foreignKey:MarkedByUserID" json:"marked_by,omitempty"`
}

// Mark holds five sub-scores for one student. Each sub-score is bounded
// 0-10 at the request boundary; Total is always recomputed server-side.
type Mark struct {
	gorm.Model

	ClassStudentID uint `gorm:"not null;uniqueIndex" json:"class_student_id"`

	Communication  int `gorm:"default:0" json:"communication"`
	Technical      int `gorm:"default:0" json:"technical"`
	Aptitude       int `gorm:"default:0" json:"aptitude"`
	ProblemSolving int `gorm:"default:0" json:"problem_solving"`
	Presentation   int `gorm:"default:0" json:"presentation"`

	Total int `gorm:"default:0" json:"total"`

	// Relations
	ClassStudent ClassStudent `json:"-"`
}

// ComputeTotal derives the stored total from the five sub-scores.
func (m *Mark) ComputeTotal() {
	m.Total = m.Communication + m.Technical + m.Aptitude + m.ProblemSolving + m.Presentation
}
