package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/shulehub/shule/core/school"
)

type SchoolRepository struct {
	db *sqlx.DB
}

var _ school.Repository = (*SchoolRepository)(nil) // interface compliance check

func NewSchoolRepository(db *sqlx.DB) *SchoolRepository {
	return &SchoolRepository{db: db}
}

// trapNoRowsErr maps psql "no rows" err to school.ErrNotFound
func trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return school.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

// uniqueViolation maps a psql unique violation on the named constraint to
// `sentinel`; any other error is wrapped with `msg`.
func uniqueViolation(err error, constraint string, sentinel error, msg string) error {
	if pqErr, ok := errors.Cause(err).(*pq.Error); ok {
		if pqErr.Code == "23505" && pqErr.Constraint == constraint {
			return sentinel
		}
	}
	return errors.Wrap(err, msg)
}

func (repo *SchoolRepository) CreateYear(ctx context.Context, year school.AcademicYear) (school.AcademicYear, error) {
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO academic_years (id, school_id, name, start_date, end_date, is_current, created_at, updated_at)
		VALUES (:id, :school_id, :name, :start_date, :end_date, :is_current, :created_at, :updated_at)`, year)
	if err != nil {
		return school.AcademicYear{}, uniqueViolation(err, "academic_years_school_id_name_key", school.ErrYearExists, "inserting academic year")
	}
	return year, nil
}

func (repo *SchoolRepository) GetYear(ctx context.Context, id uuid.UUID) (school.AcademicYear, error) {
	var year school.AcademicYear
	if err := repo.db.GetContext(ctx, &year, `SELECT * FROM academic_years WHERE id = $1`, id); err != nil {
		return school.AcademicYear{}, trapNoRowsErr(err, "finding academic year")
	}
	return year, nil
}

func (repo *SchoolRepository) QueryYears(ctx context.Context, schoolID uuid.UUID) ([]school.AcademicYear, error) {
	years := make([]school.AcademicYear, 0)
	err := repo.db.SelectContext(ctx, &years, `
		SELECT * FROM academic_years WHERE school_id = $1 ORDER BY start_date DESC`, schoolID)
	if err != nil {
		return nil, errors.Wrap(err, "querying academic years")
	}
	return years, nil
}

func (repo *SchoolRepository) SetCurrentYear(ctx context.Context, schoolID, yearID uuid.UUID) error {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		UPDATE academic_years SET is_current = false, updated_at = now()
		WHERE school_id = $1 AND is_current AND id <> $2`, schoolID, yearID)
	if err != nil {
		return errors.Wrap(err, "clearing current year")
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE academic_years SET is_current = true, updated_at = now()
		WHERE id = $1 AND school_id = $2`, yearID, schoolID)
	if err != nil {
		return errors.Wrap(err, "setting current year")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return school.ErrNotFound
	}

	return errors.Wrap(tx.Commit(), "committing current year flip")
}

func (repo *SchoolRepository) CreateGrade(ctx context.Context, grade school.Grade) (school.Grade, error) {
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO grades (id, school_id, name, rank, description, created_at, updated_at)
		VALUES (:id, :school_id, :name, :rank, :description, :created_at, :updated_at)`, grade)
	if err != nil {
		return school.Grade{}, uniqueViolation(err, "grades_school_id_rank_key", school.ErrRankExists, "inserting grade")
	}
	return grade, nil
}

func (repo *SchoolRepository) QueryGrades(ctx context.Context, schoolID uuid.UUID) ([]school.Grade, error) {
	grades := make([]school.Grade, 0)
	err := repo.db.SelectContext(ctx, &grades, `
		SELECT * FROM grades WHERE school_id = $1 ORDER BY rank`, schoolID)
	if err != nil {
		return nil, errors.Wrap(err, "querying grades")
	}
	return grades, nil
}

func (repo *SchoolRepository) CreateSection(ctx context.Context, section school.Section) (school.Section, error) {
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO sections (id, school_id, grade_id, name, capacity, is_active, created_at, updated_at)
		VALUES (:id, :school_id, :grade_id, :name, :capacity, :is_active, :created_at, :updated_at)`, section)
	if err != nil {
		return school.Section{}, errors.Wrap(err, "inserting section")
	}
	return section, nil
}

func (repo *SchoolRepository) QuerySections(ctx context.Context, gradeID uuid.UUID) ([]school.Section, error) {
	sections := make([]school.Section, 0)
	err := repo.db.SelectContext(ctx, &sections, `
		SELECT * FROM sections WHERE grade_id = $1 AND is_active ORDER BY name`, gradeID)
	if err != nil {
		return nil, errors.Wrap(err, "querying sections")
	}
	return sections, nil
}

func (repo *SchoolRepository) CreateStudent(ctx context.Context, student school.Student) (school.Student, error) {
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO students (id, school_id, code, first_name, last_name, is_active, created_at, updated_at)
		VALUES (:id, :school_id, :code, :first_name, :last_name, :is_active, :created_at, :updated_at)`, student)
	if err != nil {
		return school.Student{}, errors.Wrap(err, "inserting student")
	}
	return student, nil
}

func (repo *SchoolRepository) GetStudent(ctx context.Context, id uuid.UUID) (school.Student, error) {
	var student school.Student
	if err := repo.db.GetContext(ctx, &student, `SELECT * FROM students WHERE id = $1`, id); err != nil {
		return school.Student{}, trapNoRowsErr(err, "finding student")
	}
	return student, nil
}

func (repo *SchoolRepository) CreateEnrollment(ctx context.Context, enr school.StudentEnrollment) (school.StudentEnrollment, error) {
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO student_enrollments
			(id, school_id, student_id, academic_year_id, grade_id, section_id, roll_number, status, notes, created_at, updated_at)
		VALUES
			(:id, :school_id, :student_id, :academic_year_id, :grade_id, :section_id, :roll_number, :status, :notes, :created_at, :updated_at)`, enr)
	if err != nil {
		return school.StudentEnrollment{}, uniqueViolation(
			err, "student_enrollments_student_id_academic_year_id_key", school.ErrEnrollmentExists, "inserting enrollment")
	}
	return enr, nil
}

func (repo *SchoolRepository) QueryEnrollments(ctx context.Context, yearID uuid.UUID, statuses ...school.Status) ([]school.StudentEnrollment, error) {
	query := `
		SELECT e.*,
		       btrim(concat_ws(' ', s.first_name, s.last_name)) AS student_name,
		       s.code AS student_code
		FROM student_enrollments e
		JOIN students s ON s.id = e.student_id
		JOIN grades g ON g.id = e.grade_id
		WHERE e.academic_year_id = ?`
	args := []interface{}{yearID}

	if len(statuses) > 0 {
		query += ` AND e.status IN (?)`
		var err error
		query, args, err = sqlx.In(query, yearID, statuses)
		if err != nil {
			return nil, errors.Wrap(err, "building enrollment query")
		}
	}
	query += ` ORDER BY g.rank, e.roll_number ASC NULLS LAST, student_name`

	enrollments := make([]school.StudentEnrollment, 0)
	if err := repo.db.SelectContext(ctx, &enrollments, repo.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "querying enrollments")
	}
	return enrollments, nil
}
