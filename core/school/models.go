package school

import (
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/shulehub/shule/core"
)

// Status is the lifecycle state of a StudentEnrollment.
// An enrollment starts out active and moves to exactly one terminal state
// during an academic-year rollover; it is never mutated afterwards.
type Status string

const (
	StatusActive    Status = "active"
	StatusPromoted  Status = "promoted"
	StatusRetained  Status = "retained"
	StatusGraduated Status = "graduated"
	StatusLeft      Status = "left"
	StatusDropped   Status = "dropped"
)

var allStatuses = []Status{StatusActive, StatusPromoted, StatusRetained, StatusGraduated, StatusLeft, StatusDropped}

func (s Status) Valid() bool {
	for _, st := range allStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// Terminal reports whether s is an end state: no further transition is legal.
func (s Status) Terminal() bool {
	return s.Valid() && s != StatusActive
}

// AcademicYear is a school-scoped year window. At most one year per school
// may be current at any time; the invariant is enforced at write time.
type AcademicYear struct {
	ID        uuid.UUID `db:"id" json:"id"`
	SchoolID  uuid.UUID `db:"school_id" json:"school_id"`
	Name      string    `db:"name" json:"name"`
	StartDate time.Time `db:"start_date" json:"start_date"`
	EndDate   time.Time `db:"end_date" json:"end_date"`
	IsCurrent bool      `db:"is_current" json:"is_current"`
	CreatedAt time.Time `db:"created_at" json:"created_at"` // UTC
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"` // UTC
}

// Grade carries an explicit rank used to compute "next grade"; the grade with
// the highest rank in a school is the terminal (graduating) grade.
type Grade struct {
	ID          uuid.UUID `db:"id" json:"id"`
	SchoolID    uuid.UUID `db:"school_id" json:"school_id"`
	Name        string    `db:"name" json:"name"`
	Rank        int       `db:"rank" json:"rank"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// NextGrade returns the grade with the next-higher rank in `grades`.
// The second return is false when currentID is the terminal grade (or unknown).
// `grades` must be rank-ordered ascending.
func NextGrade(grades []Grade, currentID uuid.UUID) (Grade, bool) {
	for i, g := range grades {
		if g.ID == currentID {
			if i < len(grades)-1 {
				return grades[i+1], true
			}
			return Grade{}, false
		}
	}
	return Grade{}, false
}

// Section belongs to a (school, grade) pair. Capacity is optional; a section
// without one is unbounded.
type Section struct {
	ID        uuid.UUID `db:"id" json:"id"`
	SchoolID  uuid.UUID `db:"school_id" json:"school_id"`
	GradeID   uuid.UUID `db:"grade_id" json:"grade_id"`
	Name      string    `db:"name" json:"name"`
	Capacity  null.Int  `db:"capacity" json:"capacity"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

type Student struct {
	ID        uuid.UUID `db:"id" json:"id"`
	SchoolID  uuid.UUID `db:"school_id" json:"school_id"`
	Code      string    `db:"code" json:"code"` // school-issued student ID
	FirstName string    `db:"first_name" json:"first_name"`
	LastName  string    `db:"last_name" json:"last_name"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

func (s Student) FullName() string {
	if s.FirstName == "" {
		return s.LastName
	}
	if s.LastName == "" {
		return s.FirstName
	}
	return s.FirstName + " " + s.LastName
}

// StudentEnrollment is the per-student-per-year pivot record.
// Exactly one enrollment may exist per (student, academic year).
// RollNumber is unique within (year, grade, section) when present.
type StudentEnrollment struct {
	ID             uuid.UUID     `db:"id" json:"id"`
	SchoolID       uuid.UUID     `db:"school_id" json:"school_id"`
	StudentID      uuid.UUID     `db:"student_id" json:"student_id"`
	AcademicYearID uuid.UUID     `db:"academic_year_id" json:"academic_year_id"`
	GradeID        uuid.UUID     `db:"grade_id" json:"grade_id"`
	SectionID      uuid.NullUUID `db:"section_id" json:"section_id"`
	RollNumber     null.Int      `db:"roll_number" json:"roll_number"`
	Status         Status        `db:"status" json:"status"`
	Notes          string        `db:"notes" json:"notes"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`

	// joined display fields, populated on reads
	StudentName string `db:"student_name" json:"student_name"`
	StudentCode string `db:"student_code" json:"student_code"`
}

// NewAcademicYear contains information needed to create a new AcademicYear.
type NewAcademicYear struct {
	SchoolID  uuid.UUID `json:"school_id" validate:"required"`
	Name      string    `json:"name" validate:"required"`
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required,gtfield=StartDate"`
	IsCurrent bool      `json:"is_current"`
}

func (ny *NewAcademicYear) Validate() error {
	ny.Name = core.CleanString(ny.Name)
	return core.Validate.Struct(ny)
}

// NewGrade contains information needed to create a new Grade.
type NewGrade struct {
	SchoolID    uuid.UUID `json:"school_id" validate:"required"`
	Name        string    `json:"name" validate:"required"`
	Rank        int       `json:"rank" validate:"min=0"`
	Description string    `json:"description"`
}

func (ng *NewGrade) Validate() error {
	ng.Name = core.CleanString(ng.Name)
	ng.Description = core.CleanString(ng.Description)
	return core.Validate.Struct(ng)
}

// NewSection contains information needed to create a new Section.
type NewSection struct {
	SchoolID uuid.UUID `json:"school_id" validate:"required"`
	GradeID  uuid.UUID `json:"grade_id" validate:"required"`
	Name     string    `json:"name" validate:"required"`
	Capacity null.Int  `json:"capacity"`
}

func (ns *NewSection) Validate() error {
	ns.Name = core.CleanString(ns.Name)
	if err := core.Validate.Struct(ns); err != nil {
		return err
	}
	if ns.Capacity.Valid && ns.Capacity.Int <= 0 {
		return core.NewValidationError(nil, core.FieldError{Field: "capacity", Error: "capacity must be positive"})
	}
	return nil
}

// NewStudent contains information needed to register a new Student.
type NewStudent struct {
	SchoolID  uuid.UUID `json:"school_id" validate:"required"`
	Code      string    `json:"code" validate:"required"`
	FirstName string    `json:"first_name" validate:"required"`
	LastName  string    `json:"last_name"`
}

func (ns *NewStudent) Validate() error {
	ns.Code = core.CleanString(ns.Code)
	ns.FirstName = core.CleanString(ns.FirstName)
	ns.LastName = core.CleanString(ns.LastName)
	return core.Validate.Struct(ns)
}

// NewEnrollment contains information needed to enroll a Student into a year.
type NewEnrollment struct {
	SchoolID       uuid.UUID     `json:"school_id" validate:"required"`
	StudentID      uuid.UUID     `json:"student_id" validate:"required"`
	AcademicYearID uuid.UUID     `json:"academic_year_id" validate:"required"`
	GradeID        uuid.UUID     `json:"grade_id" validate:"required"`
	SectionID      uuid.NullUUID `json:"section_id"`
	RollNumber     null.Int      `json:"roll_number"`
	Notes          string        `json:"notes"`
}

func (ne *NewEnrollment) Validate() error {
	ne.Notes = core.CleanString(ne.Notes)
	return core.Validate.Struct(ne)
}
