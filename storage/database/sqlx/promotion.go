package sqlxrepos

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/shulehub/shule/core/promotion"
)

type PromotionRepository struct {
	db *sqlx.DB
}

var _ promotion.Repository = (*PromotionRepository)(nil) // interface compliance check

func NewPromotionRepository(db *sqlx.DB) *PromotionRepository {
	return &PromotionRepository{db: db}
}

func (repo *PromotionRepository) HasLog(ctx context.Context, schoolID, fromYearID, toYearID uuid.UUID) (bool, error) {
	var exists bool
	err := repo.db.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM promotion_logs
			WHERE school_id = $1 AND from_year_id = $2 AND to_year_id = $3
		)`, schoolID, fromYearID, toYearID)
	if err != nil {
		return false, errors.Wrap(err, "checking promotion log")
	}
	return exists, nil
}

func (repo *PromotionRepository) QueryLogs(ctx context.Context, schoolID uuid.UUID) ([]promotion.Log, error) {
	logs := make([]promotion.Log, 0)
	err := repo.db.SelectContext(ctx, &logs, `
		SELECT * FROM promotion_logs WHERE school_id = $1 ORDER BY created_at DESC`, schoolID)
	if err != nil {
		return nil, errors.Wrap(err, "querying promotion logs")
	}
	return logs, nil
}

// ExecutePromotion applies the plan inside a single transaction guarded by a
// school-scoped advisory lock. The lock is transaction-bound, so it is
// released on commit and rollback alike; a concurrent run fails fast instead
// of queueing. Everything rolls back together on any error.
func (repo *PromotionRepository) ExecutePromotion(ctx context.Context, plan promotion.Plan) error {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	// one promotion run per school at a time
	var locked bool
	err = tx.GetContext(ctx, &locked, `SELECT pg_try_advisory_xact_lock(hashtext($1))`, plan.SchoolID.String())
	if err != nil {
		return errors.Wrap(err, "acquiring promotion lock")
	}
	if !locked {
		return promotion.ErrConcurrentPromotion
	}

	// defense against a race that slipped past the planner's check
	var promoted bool
	err = tx.GetContext(ctx, &promoted, `
		SELECT EXISTS (
			SELECT 1 FROM promotion_logs
			WHERE school_id = $1 AND from_year_id = $2 AND to_year_id = $3
		)`, plan.SchoolID, plan.FromYearID, plan.ToYearID)
	if err != nil {
		return errors.Wrap(err, "re-checking promotion log")
	}
	if promoted {
		return promotion.ErrAlreadyPromoted
	}

	for _, enr := range plan.Creates {
		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO student_enrollments
				(id, school_id, student_id, academic_year_id, grade_id, section_id, roll_number, status, notes, created_at, updated_at)
			VALUES
				(:id, :school_id, :student_id, :academic_year_id, :grade_id, :section_id, :roll_number, :status, :notes, :created_at, :updated_at)`, enr)
		if err != nil {
			return errors.Wrapf(err, "inserting enrollment for student %s", enr.StudentID)
		}
	}

	for _, tr := range plan.Transitions {
		res, err := tx.ExecContext(ctx, `
			UPDATE student_enrollments SET status = $1, updated_at = now()
			WHERE id = $2 AND status = 'active'`, tr.Status, tr.EnrollmentID)
		if err != nil {
			return errors.Wrapf(err, "updating enrollment %s", tr.EnrollmentID)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errors.Errorf("enrollment %s is not active", tr.EnrollmentID)
		}
	}

	for _, studentID := range plan.DeactivateStudents {
		res, err := tx.ExecContext(ctx, `
			UPDATE students SET is_active = false, updated_at = now() WHERE id = $1`, studentID)
		if err != nil {
			return errors.Wrapf(err, "deactivating student %s", studentID)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errors.Errorf("student %s not found", studentID)
		}
	}

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO promotion_logs
			(id, school_id, from_year_id, to_year_id, actor, promotion_type,
			 total_students, promoted_count, retained_count, graduated_count, left_count, notes, created_at)
		VALUES
			(:id, :school_id, :from_year_id, :to_year_id, :actor, :promotion_type,
			 :total_students, :promoted_count, :retained_count, :graduated_count, :left_count, :notes, :created_at)`, plan.Log)
	if err != nil {
		return errors.Wrap(err, "inserting promotion log")
	}

	return errors.Wrap(tx.Commit(), "committing promotion")
}
