package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/shulehub/shule/core/promotion"
	"github.com/shulehub/shule/core/school"
)

type PromotionRepository struct {
	db *DB
}

var _ promotion.Repository = (*PromotionRepository)(nil) // interface compliance check

func NewPromotionRepository(db *DB) *PromotionRepository {
	return &PromotionRepository{db: db}
}

func (repo *PromotionRepository) hasLog(schoolID, fromYearID, toYearID uuid.UUID) bool {
	for _, l := range repo.db.logs {
		if l.SchoolID == schoolID && l.FromYearID == fromYearID && l.ToYearID == toYearID {
			return true
		}
	}
	return false
}

func (repo *PromotionRepository) HasLog(_ context.Context, schoolID, fromYearID, toYearID uuid.UUID) (bool, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	return repo.hasLog(schoolID, fromYearID, toYearID), nil
}

func (repo *PromotionRepository) QueryLogs(_ context.Context, schoolID uuid.UUID) ([]promotion.Log, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	logs := make([]promotion.Log, 0)
	for _, l := range repo.db.logs {
		if l.SchoolID == schoolID {
			logs = append(logs, l)
		}
	}
	sort.SliceStable(logs, func(i, j int) bool { return logs[i].CreatedAt.After(logs[j].CreatedAt) })
	return logs, nil
}

// ExecutePromotion applies the plan all-or-nothing: writes are staged on
// copies and swapped in only once every item succeeded, mirroring the SQL
// repository's transaction.
func (repo *PromotionRepository) ExecutePromotion(_ context.Context, plan promotion.Plan) error {
	db := repo.db

	// school-scoped exclusive run guard; fail fast, never queue
	db.mu.Lock()
	if db.promoting[plan.SchoolID] {
		db.mu.Unlock()
		return promotion.ErrConcurrentPromotion
	}
	db.promoting[plan.SchoolID] = true
	hold := db.holdRun
	db.holdRun = nil
	db.mu.Unlock()
	defer func() {
		db.mu.Lock()
		delete(db.promoting, plan.SchoolID)
		db.mu.Unlock()
	}()

	// blocking point outside the mutex so a second caller reaches the guard
	if hold != nil {
		hold()
	}

	// staging below holds the single mutex, which also serializes runs of
	// different schools; the SQL repository locks per school only
	db.mu.Lock()
	defer db.mu.Unlock()

	// defense against a race that slipped past the planner's check
	if repo.hasLog(plan.SchoolID, plan.FromYearID, plan.ToYearID) {
		return promotion.ErrAlreadyPromoted
	}

	enrollments := make(map[uuid.UUID]school.StudentEnrollment, len(db.enrollments)+len(plan.Creates))
	for id, e := range db.enrollments {
		enrollments[id] = e
	}
	students := make(map[uuid.UUID]school.Student, len(db.students))
	for id, s := range db.students {
		students[id] = s
	}

	for _, enr := range plan.Creates {
		if err := db.countTxWrite(); err != nil {
			return err
		}
		for _, e := range enrollments {
			if e.StudentID == enr.StudentID && e.AcademicYearID == enr.AcademicYearID {
				return errors.Errorf("constraint violation: student %s is already enrolled in year %s", enr.StudentID, enr.AcademicYearID)
			}
			if enr.RollNumber.Valid && e.RollNumber.Valid &&
				e.AcademicYearID == enr.AcademicYearID && e.GradeID == enr.GradeID &&
				e.SectionID == enr.SectionID && e.RollNumber.Int == enr.RollNumber.Int {
				return errors.Errorf("constraint violation: roll number %d is taken in this section", enr.RollNumber.Int)
			}
		}
		enrollments[enr.ID] = enr
	}

	now := time.Now().UTC()
	for _, tr := range plan.Transitions {
		if err := db.countTxWrite(); err != nil {
			return err
		}
		enr, ok := enrollments[tr.EnrollmentID]
		if !ok {
			return errors.Errorf("enrollment %s not found", tr.EnrollmentID)
		}
		if enr.Status != school.StatusActive {
			return errors.Errorf("enrollment %s is not active", tr.EnrollmentID)
		}
		enr.Status = tr.Status
		enr.UpdatedAt = now
		enrollments[tr.EnrollmentID] = enr
	}

	for _, studentID := range plan.DeactivateStudents {
		if err := db.countTxWrite(); err != nil {
			return err
		}
		student, ok := students[studentID]
		if !ok {
			return errors.Errorf("student %s not found", studentID)
		}
		student.IsActive = false
		student.UpdatedAt = now
		students[studentID] = student
	}

	if err := db.countTxWrite(); err != nil {
		return err
	}

	// commit
	db.enrollments = enrollments
	db.students = students
	db.logs = append(db.logs, plan.Log)
	return nil
}
