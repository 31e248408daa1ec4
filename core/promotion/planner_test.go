package promotion_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/shulehub/shule/core/promotion"
	"github.com/shulehub/shule/core/school"
)

func activeEnrollment(studentID, gradeID uuid.UUID, name string) school.StudentEnrollment {
	return school.StudentEnrollment{
		ID:          uuid.New(),
		StudentID:   studentID,
		GradeID:     gradeID,
		Status:      school.StatusActive,
		StudentName: name,
	}
}

func TestCalculateTargets(t *testing.T) {
	g1 := school.Grade{ID: uuid.New(), Name: "Grade 1", Rank: 1}
	g2 := school.Grade{ID: uuid.New(), Name: "Grade 2", Rank: 2}
	g3 := school.Grade{ID: uuid.New(), Name: "Grade 3", Rank: 3}
	grades := []school.Grade{g1, g2, g3}

	mover := activeEnrollment(uuid.New(), g1.ID, "Mover")
	finalist := activeEnrollment(uuid.New(), g3.ID, "Finalist")
	repeater := activeEnrollment(uuid.New(), g1.ID, "Repeater")
	earlyGrad := activeEnrollment(uuid.New(), g2.ID, "Early Grad")
	leaver := activeEnrollment(uuid.New(), g2.ID, "Leaver")

	req := promotion.Request{
		RetainIDs:   []uuid.UUID{repeater.StudentID},
		GraduateIDs: []uuid.UUID{earlyGrad.StudentID},
		LeaveIDs:    []uuid.UUID{leaver.StudentID},
	}
	enrollments := []school.StudentEnrollment{mover, finalist, repeater, earlyGrad, leaver}

	previews := promotion.CalculateTargets(enrollments, grades, req)
	require.Len(t, previews, len(enrollments))

	byStudent := make(map[uuid.UUID]*promotion.Preview, len(previews))
	for _, p := range previews {
		byStudent[p.StudentID] = p
	}

	p := byStudent[mover.StudentID]
	assert.Equal(t, promotion.ActionPromote, p.Action)
	require.True(t, p.ToGradeID.Valid)
	assert.Equal(t, g2.ID, p.ToGradeID.UUID)
	assert.Equal(t, null.StringFrom("Grade 2"), p.ToGradeName)

	// terminal grade graduates even without an explicit override
	p = byStudent[finalist.StudentID]
	assert.Equal(t, promotion.ActionGraduate, p.Action)
	assert.False(t, p.ToGradeID.Valid)

	p = byStudent[repeater.StudentID]
	assert.Equal(t, promotion.ActionRetain, p.Action)
	require.True(t, p.ToGradeID.Valid)
	assert.Equal(t, g1.ID, p.ToGradeID.UUID)

	p = byStudent[earlyGrad.StudentID]
	assert.Equal(t, promotion.ActionGraduate, p.Action)

	p = byStudent[leaver.StudentID]
	assert.Equal(t, promotion.ActionLeave, p.Action)
	assert.False(t, p.ToGradeID.Valid)
}

func TestCalculateTargets_Priority(t *testing.T) {
	g1 := school.Grade{ID: uuid.New(), Name: "Grade 1", Rank: 1}
	g2 := school.Grade{ID: uuid.New(), Name: "Grade 2", Rank: 2}
	grades := []school.Grade{g1, g2}

	enr := activeEnrollment(uuid.New(), g1.ID, "Contested")
	ids := []uuid.UUID{enr.StudentID}

	tests := []struct {
		name string
		req  promotion.Request
		want promotion.Action
	}{
		{"leave beats graduate and retain", promotion.Request{LeaveIDs: ids, GraduateIDs: ids, RetainIDs: ids}, promotion.ActionLeave},
		{"graduate beats retain", promotion.Request{GraduateIDs: ids, RetainIDs: ids}, promotion.ActionGraduate},
		{"retain beats promote", promotion.Request{RetainIDs: ids}, promotion.ActionRetain},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			previews := promotion.CalculateTargets([]school.StudentEnrollment{enr}, grades, tt.req)
			require.Len(t, previews, 1)
			assert.Equal(t, tt.want, previews[0].Action)
		})
	}
}

func TestCalculateTargets_MissingNextGrade(t *testing.T) {
	g1 := school.Grade{ID: uuid.New(), Name: "Grade 1", Rank: 1}

	// the enrollment points at a grade absent from configuration
	orphan := activeEnrollment(uuid.New(), uuid.New(), "Orphan")

	previews := promotion.CalculateTargets([]school.StudentEnrollment{orphan}, []school.Grade{g1}, promotion.Request{})
	require.Len(t, previews, 1)

	p := previews[0]
	assert.Equal(t, promotion.ActionGraduateDefault, p.Action)
	assert.False(t, p.ToGradeID.Valid)
	require.Len(t, p.Warnings, 1)
	assert.Contains(t, p.Warnings[0], "student will be graduated")
	assert.True(t, p.Action.Graduates())
}

func TestValidatePrerequisites(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		f := newFixture(t)
		grade := f.grade("Grade 1", 1)
		f.enroll(f.student("S001", "Asha", "Odoi"), grade, nil, 0)

		fields, err := f.svc.ValidatePrerequisites(ctx, f.schoolID, f.fromYear.ID, f.toYear.ID)
		require.NoError(t, err)
		assert.Empty(t, fields)
	})

	t.Run("unknown source year", func(t *testing.T) {
		f := newFixture(t)

		fields, err := f.svc.ValidatePrerequisites(ctx, f.schoolID, uuid.New(), f.toYear.ID)
		require.NoError(t, err)
		require.Len(t, fields, 1)
		assert.Equal(t, "from_year_id", fields[0].Field)
	})

	t.Run("year of another school", func(t *testing.T) {
		f := newFixture(t)

		fields, err := f.svc.ValidatePrerequisites(ctx, uuid.New(), f.fromYear.ID, f.toYear.ID)
		require.NoError(t, err)
		require.NotEmpty(t, fields)
		assert.Equal(t, "from_year_id", fields[0].Field)
	})

	t.Run("target year starts before source", func(t *testing.T) {
		f := newFixture(t)
		grade := f.grade("Grade 1", 1)
		f.enroll(f.student("S001", "Asha", "Odoi"), grade, nil, 0)

		fields, err := f.svc.ValidatePrerequisites(ctx, f.schoolID, f.toYear.ID, f.fromYear.ID)
		require.NoError(t, err)
		found := false
		for _, fe := range fields {
			if fe.Field == "to_year_id" && fe.Error == promotion.ErrInvalidYearOrder.Error() {
				found = true
			}
		}
		assert.True(t, found, "want year-order field error, got %v", fields)
	})

	t.Run("no active enrollments", func(t *testing.T) {
		f := newFixture(t)

		fields, err := f.svc.ValidatePrerequisites(ctx, f.schoolID, f.fromYear.ID, f.toYear.ID)
		require.NoError(t, err)
		require.Len(t, fields, 1)
		assert.Equal(t, "from_year_id", fields[0].Field)
		assert.Equal(t, promotion.ErrNoEligibleEnrollments.Error(), fields[0].Error)
	})

	t.Run("already promoted", func(t *testing.T) {
		f := newFixture(t)
		grade := f.grade("Grade 1", 1)
		f.grade("Grade 2", 2)
		f.enroll(f.student("S001", "Asha", "Odoi"), grade, nil, 0)

		_, err := f.svc.Execute(ctx, f.request())
		require.NoError(t, err)

		// the executed run left the source year without active enrollments, so
		// seed another one to isolate the log check
		f.enroll(f.student("S002", "Badru", "Okello"), grade, nil, 0)

		fields, err := f.svc.ValidatePrerequisites(ctx, f.schoolID, f.fromYear.ID, f.toYear.ID)
		require.NoError(t, err)
		found := false
		for _, fe := range fields {
			if fe.Error == promotion.ErrAlreadyPromoted.Error() {
				found = true
			}
		}
		assert.True(t, found, "want already-promoted field error, got %v", fields)
	})
}
