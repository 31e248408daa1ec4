package promotion

import (
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/shulehub/shule/core"
	"github.com/shulehub/shule/core/school"
)

// Type is the mode a rollover was requested in. It only affects the audit
// trail, never the classification of students.
type Type string

const (
	TypeAutomatic Type = "automatic"
	TypeManual    Type = "manual"
	TypeBulk      Type = "bulk"
)

// Action is the per-student classification computed by the planner.
type Action string

const (
	ActionPromote  Action = "promote"
	ActionRetain   Action = "retain"
	ActionGraduate Action = "graduate"
	// ActionGraduateDefault marks a student who was expected to move up but
	// whose next grade is missing from configuration; they graduate instead
	// and the preview carries a warning.
	ActionGraduateDefault Action = "graduate_by_default"
	ActionLeave           Action = "leave"
)

// TerminalStatus is the status the source-year enrollment ends up in when the
// action is executed.
func (a Action) TerminalStatus() school.Status {
	switch a {
	case ActionPromote:
		return school.StatusPromoted
	case ActionRetain:
		return school.StatusRetained
	case ActionGraduate, ActionGraduateDefault:
		return school.StatusGraduated
	case ActionLeave:
		return school.StatusLeft
	}
	return ""
}

// Graduates reports whether executing the action removes the student from the
// school's active roll.
func (a Action) Graduates() bool {
	return a == ActionGraduate || a == ActionGraduateDefault
}

// CreatesEnrollment reports whether the action produces a target-year
// enrollment record.
func (a Action) CreatesEnrollment() bool {
	return a == ActionPromote || a == ActionRetain
}

// Request is the caller-supplied input of a rollover, already school-scoped
// and authorized by the calling layer.
type Request struct {
	SchoolID   uuid.UUID `json:"school_id" validate:"required"`
	FromYearID uuid.UUID `json:"from_year_id" validate:"required"`
	ToYearID   uuid.UUID `json:"to_year_id" validate:"required"`
	Type       Type      `json:"promotion_type" validate:"required,oneof=automatic manual bulk"`
	Actor      string    `json:"actor"`

	RetainIDs   []uuid.UUID `json:"retain_ids"`
	GraduateIDs []uuid.UUID `json:"graduate_ids"`
	LeaveIDs    []uuid.UUID `json:"leave_ids"`
}

func (r *Request) Validate() error {
	if r.Type == "" {
		r.Type = TypeAutomatic
	}
	r.Actor = core.CleanString(r.Actor)
	return core.Validate.Struct(r)
}

func toSet(ids []uuid.UUID) map[uuid.UUID]bool {
	set := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// Preview is the planner/balancer's computed, not yet committed, target state
// for one student. Read-only until passed to the executor.
type Preview struct {
	EnrollmentID uuid.UUID `json:"enrollment_id"`
	StudentID    uuid.UUID `json:"student_id"`
	StudentName  string    `json:"student_name"`
	StudentCode  string    `json:"student_code"`

	FromGradeID   uuid.UUID     `json:"from_grade_id"`
	FromGradeName string        `json:"from_grade_name"`
	FromSectionID uuid.NullUUID `json:"from_section_id"`
	FromRoll      null.Int      `json:"from_roll_number"`

	ToGradeID   uuid.NullUUID `json:"to_grade_id"`
	ToGradeName null.String   `json:"to_grade_name"`
	ToSectionID uuid.NullUUID `json:"to_section_id"`
	ToRoll      null.Int      `json:"to_roll_number"`

	Action   Action   `json:"action"`
	Notes    string   `json:"notes"`
	Warnings []string `json:"warnings"`
}

// Counts are the aggregates recorded on the audit log.
type Counts struct {
	Total     int `db:"total_students" json:"total"`
	Promoted  int `db:"promoted_count" json:"promoted"`
	Retained  int `db:"retained_count" json:"retained"`
	Graduated int `db:"graduated_count" json:"graduated"`
	Left      int `db:"left_count" json:"left"`
}

// Log is the immutable audit record of one executed rollover. Exactly one log
// exists per successfully executed (school, from year, to year) transition;
// its existence is the idempotency guard against re-running the same rollover.
type Log struct {
	ID         uuid.UUID `db:"id" json:"id"`
	SchoolID   uuid.UUID `db:"school_id" json:"school_id"`
	FromYearID uuid.UUID `db:"from_year_id" json:"from_year_id"`
	ToYearID   uuid.UUID `db:"to_year_id" json:"to_year_id"`
	Actor      string    `db:"actor" json:"actor"`
	Type       Type      `db:"promotion_type" json:"promotion_type"`
	Counts
	Notes     string    `db:"notes" json:"notes"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Result is returned synchronously to the caller for display.
// Errors is non-empty only when Success is false.
type Result struct {
	Success  bool          `json:"success"`
	Counts   Counts        `json:"counts"`
	Errors   []string      `json:"errors"`
	Warnings []string      `json:"warnings"`
	LogID    uuid.NullUUID `json:"log_id"`
}

// StatusTransition moves one source-year enrollment to its terminal status.
type StatusTransition struct {
	EnrollmentID uuid.UUID
	Status       school.Status
}

// Plan is the full write set of one rollover, applied atomically by the
// repository: either every item commits or none do.
type Plan struct {
	SchoolID   uuid.UUID
	FromYearID uuid.UUID
	ToYearID   uuid.UUID

	Creates            []school.StudentEnrollment
	Transitions        []StatusTransition
	DeactivateStudents []uuid.UUID
	Log                Log
}
