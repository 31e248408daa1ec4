package school

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/shulehub/shule/core"
)

var (
	// errors
	ErrNotFound         = errors.New("record not found")
	ErrYearExists       = errors.New("an academic year with this name already exists")
	ErrRankExists       = errors.New("a grade with this rank already exists")
	ErrEnrollmentExists = errors.New("student is already enrolled in this academic year")
)

type (
	Repository interface {
		CreateYear(ctx context.Context, year AcademicYear) (AcademicYear, error)
		GetYear(ctx context.Context, id uuid.UUID) (AcademicYear, error)
		// QueryYears returns a school's years ordered by start date descending.
		QueryYears(ctx context.Context, schoolID uuid.UUID) ([]AcademicYear, error)
		// SetCurrentYear atomically flips is_current to the given year and
		// clears it on every other year of the school.
		SetCurrentYear(ctx context.Context, schoolID, yearID uuid.UUID) error

		CreateGrade(ctx context.Context, grade Grade) (Grade, error)
		// QueryGrades returns a school's grades ordered by rank ascending.
		QueryGrades(ctx context.Context, schoolID uuid.UUID) ([]Grade, error)

		CreateSection(ctx context.Context, section Section) (Section, error)
		// QuerySections returns a grade's active sections ordered by name.
		QuerySections(ctx context.Context, gradeID uuid.UUID) ([]Section, error)

		CreateStudent(ctx context.Context, student Student) (Student, error)
		GetStudent(ctx context.Context, id uuid.UUID) (Student, error)

		CreateEnrollment(ctx context.Context, enr StudentEnrollment) (StudentEnrollment, error)
		// QueryEnrollments returns a year's enrollments, optionally filtered by
		// status, ordered by grade rank, roll number then student name.
		QueryEnrollments(ctx context.Context, yearID uuid.UUID, statuses ...Status) ([]StudentEnrollment, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) CreateYear(ctx context.Context, ny NewAcademicYear) (AcademicYear, error) {
	now := time.Now().UTC()
	year := AcademicYear{
		ID:        uuid.New(),
		SchoolID:  ny.SchoolID,
		Name:      ny.Name,
		StartDate: ny.StartDate,
		EndDate:   ny.EndDate,
		CreatedAt: now,
		UpdatedAt: now,
	}
	year, err := svc.repo.CreateYear(ctx, year)
	if err != nil {
		if errors.Cause(err) == ErrYearExists {
			return AcademicYear{}, core.NewValidationError(err, core.FieldError{Field: "name", Error: err.Error()})
		}
		return AcademicYear{}, err
	}
	if ny.IsCurrent {
		if err := svc.repo.SetCurrentYear(ctx, year.SchoolID, year.ID); err != nil {
			return AcademicYear{}, err
		}
		year.IsCurrent = true
	}
	return year, nil
}

func (svc *Service) GetYear(ctx context.Context, id uuid.UUID) (AcademicYear, error) {
	return svc.repo.GetYear(ctx, id)
}

func (svc *Service) Years(ctx context.Context, schoolID uuid.UUID) ([]AcademicYear, error) {
	return svc.repo.QueryYears(ctx, schoolID)
}

// CurrentYear returns the school's current academic year, if any.
func (svc *Service) CurrentYear(ctx context.Context, schoolID uuid.UUID) (AcademicYear, error) {
	years, err := svc.repo.QueryYears(ctx, schoolID)
	if err != nil {
		return AcademicYear{}, err
	}
	for _, y := range years {
		if y.IsCurrent {
			return y, nil
		}
	}
	return AcademicYear{}, ErrNotFound
}

func (svc *Service) SetCurrentYear(ctx context.Context, schoolID, yearID uuid.UUID) error {
	year, err := svc.repo.GetYear(ctx, yearID)
	if err != nil {
		return err
	}
	if year.SchoolID != schoolID {
		return ErrNotFound
	}
	return svc.repo.SetCurrentYear(ctx, schoolID, yearID)
}

func (svc *Service) CreateGrade(ctx context.Context, ng NewGrade) (Grade, error) {
	now := time.Now().UTC()
	grade := Grade{
		ID:          uuid.New(),
		SchoolID:    ng.SchoolID,
		Name:        ng.Name,
		Rank:        ng.Rank,
		Description: ng.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	grade, err := svc.repo.CreateGrade(ctx, grade)
	if err != nil {
		if errors.Cause(err) == ErrRankExists {
			return Grade{}, core.NewValidationError(err, core.FieldError{Field: "rank", Error: err.Error()})
		}
		return Grade{}, err
	}
	return grade, nil
}

func (svc *Service) Grades(ctx context.Context, schoolID uuid.UUID) ([]Grade, error) {
	return svc.repo.QueryGrades(ctx, schoolID)
}

// NextGrade returns the grade ranked directly above `grade` in the same school.
// The second return is false when `grade` is the terminal (graduating) grade.
func (svc *Service) NextGrade(ctx context.Context, grade Grade) (Grade, bool, error) {
	grades, err := svc.repo.QueryGrades(ctx, grade.SchoolID)
	if err != nil {
		return Grade{}, false, err
	}
	next, ok := NextGrade(grades, grade.ID)
	return next, ok, nil
}

func (svc *Service) CreateSection(ctx context.Context, ns NewSection) (Section, error) {
	now := time.Now().UTC()
	section := Section{
		ID:        uuid.New(),
		SchoolID:  ns.SchoolID,
		GradeID:   ns.GradeID,
		Name:      ns.Name,
		Capacity:  ns.Capacity,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return svc.repo.CreateSection(ctx, section)
}

func (svc *Service) Sections(ctx context.Context, gradeID uuid.UUID) ([]Section, error) {
	return svc.repo.QuerySections(ctx, gradeID)
}

func (svc *Service) CreateStudent(ctx context.Context, ns NewStudent) (Student, error) {
	now := time.Now().UTC()
	student := Student{
		ID:        uuid.New(),
		SchoolID:  ns.SchoolID,
		Code:      ns.Code,
		FirstName: ns.FirstName,
		LastName:  ns.LastName,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return svc.repo.CreateStudent(ctx, student)
}

func (svc *Service) GetStudent(ctx context.Context, id uuid.UUID) (Student, error) {
	return svc.repo.GetStudent(ctx, id)
}

// Enroll registers a student into an academic year with status active.
func (svc *Service) Enroll(ctx context.Context, ne NewEnrollment) (StudentEnrollment, error) {
	now := time.Now().UTC()
	enr := StudentEnrollment{
		ID:             uuid.New(),
		SchoolID:       ne.SchoolID,
		StudentID:      ne.StudentID,
		AcademicYearID: ne.AcademicYearID,
		GradeID:        ne.GradeID,
		SectionID:      ne.SectionID,
		RollNumber:     ne.RollNumber,
		Status:         StatusActive,
		Notes:          ne.Notes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	enr, err := svc.repo.CreateEnrollment(ctx, enr)
	if err != nil {
		if errors.Cause(err) == ErrEnrollmentExists {
			return StudentEnrollment{}, core.NewValidationError(err, core.FieldError{Field: "student_id", Error: err.Error()})
		}
		return StudentEnrollment{}, err
	}
	return enr, nil
}

func (svc *Service) Enrollments(ctx context.Context, yearID uuid.UUID, statuses ...Status) ([]StudentEnrollment, error) {
	return svc.repo.QueryEnrollments(ctx, yearID, statuses...)
}
