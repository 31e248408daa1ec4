package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shulehub/shule/core/school"
)

type SchoolRepository struct {
	db *DB
}

var _ school.Repository = (*SchoolRepository)(nil) // interface compliance check

func NewSchoolRepository(db *DB) *SchoolRepository {
	return &SchoolRepository{db: db}
}

func (repo *SchoolRepository) CreateYear(_ context.Context, year school.AcademicYear) (school.AcademicYear, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, y := range repo.db.years {
		if y.SchoolID == year.SchoolID && y.Name == year.Name {
			return school.AcademicYear{}, school.ErrYearExists
		}
	}
	repo.db.years[year.ID] = year
	return year, nil
}

func (repo *SchoolRepository) GetYear(_ context.Context, id uuid.UUID) (school.AcademicYear, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if year, ok := repo.db.years[id]; ok {
		return year, nil
	}
	return school.AcademicYear{}, school.ErrNotFound
}

func (repo *SchoolRepository) QueryYears(_ context.Context, schoolID uuid.UUID) ([]school.AcademicYear, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	years := make([]school.AcademicYear, 0)
	for _, y := range repo.db.years {
		if y.SchoolID == schoolID {
			years = append(years, y)
		}
	}
	sort.SliceStable(years, func(i, j int) bool { return years[i].StartDate.After(years[j].StartDate) })
	return years, nil
}

func (repo *SchoolRepository) SetCurrentYear(_ context.Context, schoolID, yearID uuid.UUID) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	target, ok := repo.db.years[yearID]
	if !ok || target.SchoolID != schoolID {
		return school.ErrNotFound
	}
	now := time.Now().UTC()
	for id, y := range repo.db.years {
		if y.SchoolID != schoolID {
			continue
		}
		y.IsCurrent = id == yearID
		y.UpdatedAt = now
		repo.db.years[id] = y
	}
	return nil
}

func (repo *SchoolRepository) CreateGrade(_ context.Context, grade school.Grade) (school.Grade, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, g := range repo.db.grades {
		if g.SchoolID == grade.SchoolID && g.Rank == grade.Rank {
			return school.Grade{}, school.ErrRankExists
		}
	}
	repo.db.grades[grade.ID] = grade
	return grade, nil
}

func (repo *SchoolRepository) QueryGrades(_ context.Context, schoolID uuid.UUID) ([]school.Grade, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	grades := make([]school.Grade, 0)
	for _, g := range repo.db.grades {
		if g.SchoolID == schoolID {
			grades = append(grades, g)
		}
	}
	sort.SliceStable(grades, func(i, j int) bool { return grades[i].Rank < grades[j].Rank })
	return grades, nil
}

func (repo *SchoolRepository) CreateSection(_ context.Context, section school.Section) (school.Section, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	repo.db.sections[section.ID] = section
	return section, nil
}

func (repo *SchoolRepository) QuerySections(_ context.Context, gradeID uuid.UUID) ([]school.Section, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	sections := make([]school.Section, 0)
	for _, s := range repo.db.sections {
		if s.GradeID == gradeID && s.IsActive {
			sections = append(sections, s)
		}
	}
	sort.SliceStable(sections, func(i, j int) bool { return sections[i].Name < sections[j].Name })
	return sections, nil
}

func (repo *SchoolRepository) CreateStudent(_ context.Context, student school.Student) (school.Student, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	repo.db.students[student.ID] = student
	return student, nil
}

func (repo *SchoolRepository) GetStudent(_ context.Context, id uuid.UUID) (school.Student, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if student, ok := repo.db.students[id]; ok {
		return student, nil
	}
	return school.Student{}, school.ErrNotFound
}

func (repo *SchoolRepository) CreateEnrollment(_ context.Context, enr school.StudentEnrollment) (school.StudentEnrollment, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, e := range repo.db.enrollments {
		if e.StudentID == enr.StudentID && e.AcademicYearID == enr.AcademicYearID {
			return school.StudentEnrollment{}, school.ErrEnrollmentExists
		}
	}
	repo.db.enrollments[enr.ID] = enr
	return enr, nil
}

func (repo *SchoolRepository) QueryEnrollments(_ context.Context, yearID uuid.UUID, statuses ...school.Status) ([]school.StudentEnrollment, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	wanted := func(st school.Status) bool {
		if len(statuses) == 0 {
			return true
		}
		for _, s := range statuses {
			if s == st {
				return true
			}
		}
		return false
	}

	enrollments := make([]school.StudentEnrollment, 0)
	for _, e := range repo.db.enrollments {
		if e.AcademicYearID != yearID || !wanted(e.Status) {
			continue
		}
		if student, ok := repo.db.students[e.StudentID]; ok {
			e.StudentName = student.FullName()
			e.StudentCode = student.Code
		}
		enrollments = append(enrollments, e)
	}

	rank := func(e school.StudentEnrollment) int { return repo.db.grades[e.GradeID].Rank }
	sort.SliceStable(enrollments, func(i, j int) bool {
		a, b := enrollments[i], enrollments[j]
		if rank(a) != rank(b) {
			return rank(a) < rank(b)
		}
		if a.RollNumber.Valid != b.RollNumber.Valid {
			return a.RollNumber.Valid
		}
		if a.RollNumber.Valid && a.RollNumber.Int != b.RollNumber.Int {
			return a.RollNumber.Int < b.RollNumber.Int
		}
		return strings.Compare(a.StudentName, b.StudentName) < 0
	})
	return enrollments, nil
}
