package promotion

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/shulehub/shule/core"
	"github.com/shulehub/shule/core/school"
)

var (
	// errors
	ErrYearNotFound          = errors.New("academic year not found")
	ErrInvalidYearOrder      = errors.New("target academic year must start after source academic year")
	ErrNoEligibleEnrollments = errors.New("source academic year has no active enrollments")
	ErrAlreadyPromoted       = errors.New("a promotion has already been executed for these academic years")
	ErrConcurrentPromotion   = errors.New("another promotion is already in progress for this school")
	ErrPrerequisites         = errors.New("promotion prerequisites not met")
)

type (
	// Repository owns the promotion audit log and the transactional execution
	// of a Plan. ExecutePromotion must hold an exclusive school-scoped lock
	// for the duration of the call (failing fast with ErrConcurrentPromotion),
	// re-check the log inside the transaction (ErrAlreadyPromoted), and apply
	// the whole Plan atomically: on any error nothing is partially applied.
	Repository interface {
		HasLog(ctx context.Context, schoolID, fromYearID, toYearID uuid.UUID) (bool, error)
		// QueryLogs returns a school's audit records, most recent first.
		QueryLogs(ctx context.Context, schoolID uuid.UUID) ([]Log, error)
		ExecutePromotion(ctx context.Context, plan Plan) error
	}

	Service struct {
		schoolRepo school.Repository
		repo       Repository
		log        core.Logger
	}
)

func NewService(log core.Logger, schoolRepo school.Repository, repo Repository) *Service {
	return &Service{
		schoolRepo: schoolRepo,
		repo:       repo,
		log:        log,
	}
}

func (svc *Service) year(ctx context.Context, schoolID, yearID uuid.UUID) (school.AcademicYear, error) {
	year, err := svc.schoolRepo.GetYear(ctx, yearID)
	if err != nil {
		if errors.Cause(err) == school.ErrNotFound {
			return school.AcademicYear{}, ErrYearNotFound
		}
		return school.AcademicYear{}, err
	}
	// school scoping is performed upstream; this is a cheap sanity check only
	if year.SchoolID != schoolID {
		return school.AcademicYear{}, ErrYearNotFound
	}
	return year, nil
}

// Preview computes the full rollover target state without writing anything:
// prerequisites, per-student classification and section/roll assignments.
func (svc *Service) Preview(ctx context.Context, req Request) ([]Preview, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	fields, err := svc.ValidatePrerequisites(ctx, req.SchoolID, req.FromYearID, req.ToYearID)
	if err != nil {
		return nil, errors.Wrap(err, "validating prerequisites")
	}
	if len(fields) > 0 {
		return nil, core.NewValidationError(ErrPrerequisites, fields...)
	}

	enrollments, err := svc.EligibleEnrollments(ctx, req.FromYearID)
	if err != nil {
		return nil, errors.Wrap(err, "querying eligible enrollments")
	}
	grades, err := svc.schoolRepo.QueryGrades(ctx, req.SchoolID)
	if err != nil {
		return nil, errors.Wrap(err, "querying grades")
	}

	previews := CalculateTargets(enrollments, grades, req)

	// balance each destination grade independently
	byGrade := make(map[uuid.UUID]school.Grade, len(grades))
	for _, g := range grades {
		byGrade[g.ID] = g
	}
	seen := make(map[uuid.UUID]bool)
	for _, p := range previews {
		if !p.Action.CreatesEnrollment() || !p.ToGradeID.Valid || seen[p.ToGradeID.UUID] {
			continue
		}
		seen[p.ToGradeID.UUID] = true

		grade := byGrade[p.ToGradeID.UUID]
		sections, err := svc.schoolRepo.QuerySections(ctx, grade.ID)
		if err != nil {
			return nil, errors.Wrapf(err, "querying sections of grade %s", grade.Name)
		}
		RebalanceSections(grade, sections, previews)
	}

	out := make([]Preview, 0, len(previews))
	for _, p := range previews {
		out = append(out, *p)
	}
	return out, nil
}

// Execute runs the full rollover: plan, balance, then commit as one
// transaction. Equivalent to Preview followed by ExecutePreviews.
func (svc *Service) Execute(ctx context.Context, req Request) (Result, error) {
	previews, err := svc.Preview(ctx, req)
	if err != nil {
		return Result{Errors: []string{err.Error()}}, err
	}
	return svc.ExecutePreviews(ctx, req, previews)
}

// Logs returns the school's rollover audit history, most recent first.
func (svc *Service) Logs(ctx context.Context, schoolID uuid.UUID) ([]Log, error) {
	return svc.repo.QueryLogs(ctx, schoolID)
}
