package promotion

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/shulehub/shule/core/school"
)

// ExecutePreviews commits a reviewed preview as one atomic unit of work:
// target-year enrollments are created, source-year enrollments move to their
// terminal status, graduates are deactivated and exactly one audit log row is
// written. On any failure the repository rolls the entire set back; partial
// success is not possible.
//
// There is no automatic retry. A failed run leaves no trace and must be
// re-submitted by the caller with a corrected preview.
func (svc *Service) ExecutePreviews(ctx context.Context, req Request, previews []Preview) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{Errors: []string{err.Error()}}, err
	}

	plan, warnings, err := buildPlan(req, previews)
	if err != nil {
		return Result{Errors: []string{err.Error()}, Warnings: warnings}, err
	}

	if err := svc.repo.ExecutePromotion(ctx, plan); err != nil {
		svc.log.Error(fmt.Sprintf("promotion %s -> %s failed", req.FromYearID, req.ToYearID), err)
		return Result{
			Counts:   Counts{Total: len(previews)},
			Errors:   []string{err.Error()},
			Warnings: warnings,
		}, err
	}

	svc.log.Info(fmt.Sprintf(
		"promotion %s -> %s executed: %d promoted, %d retained, %d graduated, %d left",
		req.FromYearID, req.ToYearID,
		plan.Log.Promoted, plan.Log.Retained, plan.Log.Graduated, plan.Log.Left))

	return Result{
		Success:  true,
		Counts:   plan.Log.Counts,
		Warnings: warnings,
		LogID:    uuid.NullUUID{UUID: plan.Log.ID, Valid: true},
	}, nil
}

// buildPlan turns previews into the explicit write set of the transaction.
func buildPlan(req Request, previews []Preview) (Plan, []string, error) {
	now := time.Now().UTC()
	plan := Plan{
		SchoolID:   req.SchoolID,
		FromYearID: req.FromYearID,
		ToYearID:   req.ToYearID,
	}
	counts := Counts{Total: len(previews)}
	var warnings []string

	for _, p := range previews {
		status := p.Action.TerminalStatus()
		if status == "" {
			return Plan{}, warnings, errors.Errorf("unknown action %q for student %s", p.Action, p.StudentID)
		}
		plan.Transitions = append(plan.Transitions, StatusTransition{
			EnrollmentID: p.EnrollmentID,
			Status:       status,
		})

		for _, w := range p.Warnings {
			warnings = append(warnings, fmt.Sprintf("%s: %s", p.StudentName, w))
		}

		switch {
		case p.Action.CreatesEnrollment():
			if !p.ToGradeID.Valid {
				return Plan{}, warnings, errors.Errorf("student %s has no destination grade", p.StudentID)
			}
			plan.Creates = append(plan.Creates, school.StudentEnrollment{
				ID:             uuid.New(),
				SchoolID:       req.SchoolID,
				StudentID:      p.StudentID,
				AcademicYearID: req.ToYearID,
				GradeID:        p.ToGradeID.UUID,
				SectionID:      p.ToSectionID,
				RollNumber:     p.ToRoll,
				Status:         school.StatusActive,
				Notes:          p.Notes,
				CreatedAt:      now,
				UpdatedAt:      now,
			})
			if p.Action == ActionPromote {
				counts.Promoted++
			} else {
				counts.Retained++
			}

		case p.Action.Graduates():
			plan.DeactivateStudents = append(plan.DeactivateStudents, p.StudentID)
			counts.Graduated++

		case p.Action == ActionLeave:
			counts.Left++
		}
	}

	plan.Log = Log{
		ID:         uuid.New(),
		SchoolID:   req.SchoolID,
		FromYearID: req.FromYearID,
		ToYearID:   req.ToYearID,
		Actor:      req.Actor,
		Type:       req.Type,
		Counts:     counts,
		Notes:      fmt.Sprintf("Promotion completed via %s mode", req.Type),
		CreatedAt:  now,
	}
	return plan, warnings, nil
}
