package promotion

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/shulehub/shule/core"
	"github.com/shulehub/shule/core/school"
)

// ValidatePrerequisites checks that a rollover between the two years can
// proceed. It returns one FieldError per failed check; an empty slice means
// the transition is good to go. No writes are attempted here.
func (svc *Service) ValidatePrerequisites(ctx context.Context, schoolID, fromYearID, toYearID uuid.UUID) ([]core.FieldError, error) {
	var fields []core.FieldError

	fromYear, err := svc.year(ctx, schoolID, fromYearID)
	if err != nil {
		if err == ErrYearNotFound {
			return append(fields, core.FieldError{Field: "from_year_id", Error: err.Error()}), nil
		}
		return nil, err
	}
	toYear, err := svc.year(ctx, schoolID, toYearID)
	if err != nil {
		if err == ErrYearNotFound {
			return append(fields, core.FieldError{Field: "to_year_id", Error: err.Error()}), nil
		}
		return nil, err
	}

	if !toYear.StartDate.After(fromYear.StartDate) {
		fields = append(fields, core.FieldError{Field: "to_year_id", Error: ErrInvalidYearOrder.Error()})
	}

	enrollments, err := svc.EligibleEnrollments(ctx, fromYearID)
	if err != nil {
		return nil, err
	}
	if len(enrollments) == 0 {
		fields = append(fields, core.FieldError{Field: "from_year_id", Error: ErrNoEligibleEnrollments.Error()})
	}

	// idempotency guard: one executed rollover per (school, from, to) pair
	promoted, err := svc.repo.HasLog(ctx, schoolID, fromYearID, toYearID)
	if err != nil {
		return nil, err
	}
	if promoted {
		fields = append(fields, core.FieldError{Field: "to_year_id", Error: ErrAlreadyPromoted.Error()})
	}

	return fields, nil
}

// EligibleEnrollments returns the source year's active enrollments in
// deterministic order. Enrollments already in a terminal state are excluded,
// which keeps re-planning after a corrected run idempotent.
func (svc *Service) EligibleEnrollments(ctx context.Context, fromYearID uuid.UUID) ([]school.StudentEnrollment, error) {
	return svc.schoolRepo.QueryEnrollments(ctx, fromYearID, school.StatusActive)
}

// CalculateTargets classifies every enrollment into promote / retain /
// graduate / leave and resolves the destination grade. Pure computation;
// `grades` must be the school's grades, rank-ordered ascending.
//
// Priority order per student: leave > graduate (explicit or terminal grade) >
// retain > promote. A student expected to move up whose next grade is missing
// from configuration is graduated by default with a warning, never dropped.
func CalculateTargets(enrollments []school.StudentEnrollment, grades []school.Grade, req Request) []*Preview {
	retain := toSet(req.RetainIDs)
	graduate := toSet(req.GraduateIDs)
	leave := toSet(req.LeaveIDs)

	gradeNames := make(map[uuid.UUID]string, len(grades))
	for _, g := range grades {
		gradeNames[g.ID] = g.Name
	}
	var terminalGradeID uuid.UUID
	if len(grades) > 0 {
		terminalGradeID = grades[len(grades)-1].ID
	}

	previews := make([]*Preview, 0, len(enrollments))
	for _, enr := range enrollments {
		p := &Preview{
			EnrollmentID:  enr.ID,
			StudentID:     enr.StudentID,
			StudentName:   enr.StudentName,
			StudentCode:   enr.StudentCode,
			FromGradeID:   enr.GradeID,
			FromGradeName: gradeNames[enr.GradeID],
			FromSectionID: enr.SectionID,
			FromRoll:      enr.RollNumber,
		}

		switch {
		case leave[enr.StudentID]:
			p.Action = ActionLeave
			p.Notes = "Student left school"

		case graduate[enr.StudentID] || enr.GradeID == terminalGradeID:
			p.Action = ActionGraduate
			p.Notes = "Student graduated"

		case retain[enr.StudentID]:
			p.Action = ActionRetain
			p.ToGradeID = uuid.NullUUID{UUID: enr.GradeID, Valid: true}
			p.ToGradeName = null.StringFrom(gradeNames[enr.GradeID])
			p.Notes = "Retained in same grade"

		default:
			next, ok := school.NextGrade(grades, enr.GradeID)
			if !ok {
				// a next grade was expected but is not configured
				p.Action = ActionGraduateDefault
				p.Notes = "No next grade configured - will graduate"
				p.Warnings = append(p.Warnings,
					fmt.Sprintf("no grade ranked above %q is configured; student will be graduated", gradeNames[enr.GradeID]))
				break
			}
			p.Action = ActionPromote
			p.ToGradeID = uuid.NullUUID{UUID: next.ID, Valid: true}
			p.ToGradeName = null.StringFrom(next.Name)
			p.Notes = fmt.Sprintf("Promoted from %s to %s", gradeNames[enr.GradeID], next.Name)
		}

		previews = append(previews, p)
	}
	return previews
}
