package promotion_test

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shulehub/shule/core"
	"github.com/shulehub/shule/core/promotion"
	"github.com/shulehub/shule/core/school"
	inmemdb "github.com/shulehub/shule/storage/database/inmem"
)

func TestService_Execute(t *testing.T) {
	f := newFixture(t)
	g1 := f.grade("Grade 1", 1)
	g2 := f.grade("Grade 2", 2)
	g3 := f.grade("Grade 3", 3)

	mover := f.student("S001", "Asha", "Odoi")
	finalist := f.student("S002", "Badru", "Okello")
	f.enroll(mover, g1, nil, 1)
	finalistEnr := f.enroll(finalist, g3, nil, 1)

	result, err := f.svc.Execute(ctx, f.request())
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Empty(t, result.Errors)
	assert.True(t, result.LogID.Valid)
	assert.Equal(t, promotion.Counts{Total: 2, Promoted: 1, Graduated: 1}, result.Counts)

	// source year: every touched enrollment is in a terminal state
	for _, enr := range f.enrollments(f.fromYear.ID) {
		assert.True(t, enr.Status.Terminal(), "enrollment of %s still %s", enr.StudentName, enr.Status)
		if enr.ID == finalistEnr.ID {
			assert.Equal(t, school.StatusGraduated, enr.Status)
		} else {
			assert.Equal(t, school.StatusPromoted, enr.Status)
		}
	}

	// target year: only the promoted student shows up, active, in the next grade
	created := f.enrollments(f.toYear.ID)
	require.Len(t, created, 1)
	assert.Equal(t, mover.ID, created[0].StudentID)
	assert.Equal(t, g2.ID, created[0].GradeID)
	assert.Equal(t, school.StatusActive, created[0].Status)

	// the graduate is off the active roll
	gone, err := f.schoolSvc.GetStudent(ctx, finalist.ID)
	require.NoError(t, err)
	assert.False(t, gone.IsActive)
	stillHere, err := f.schoolSvc.GetStudent(ctx, mover.ID)
	require.NoError(t, err)
	assert.True(t, stillHere.IsActive)

	// exactly one audit record
	logs, err := f.svc.Logs(ctx, f.schoolID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, result.LogID.UUID, logs[0].ID)
	assert.Equal(t, f.fromYear.ID, logs[0].FromYearID)
	assert.Equal(t, f.toYear.ID, logs[0].ToYearID)
	assert.Equal(t, "test-runner", logs[0].Actor)
	assert.Equal(t, promotion.TypeAutomatic, logs[0].Type)
	assert.Equal(t, result.Counts, logs[0].Counts)
}

func TestService_Execute_RetainAndLeave(t *testing.T) {
	f := newFixture(t)
	g1 := f.grade("Grade 1", 1)
	f.grade("Grade 2", 2)

	mover := f.student("S001", "Asha", "Odoi")
	repeater := f.student("S002", "Badru", "Okello")
	leaver := f.student("S003", "Chiku", "Mwangi")
	f.enroll(mover, g1, nil, 1)
	f.enroll(repeater, g1, nil, 2)
	f.enroll(leaver, g1, nil, 3)

	req := f.request()
	req.Type = promotion.TypeManual
	req.RetainIDs = []uuid.UUID{repeater.ID}
	req.LeaveIDs = []uuid.UUID{leaver.ID}

	result, err := f.svc.Execute(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, promotion.Counts{Total: 3, Promoted: 1, Retained: 1, Left: 1}, result.Counts)

	// the retained student stays in the same grade; the leaver gets nothing
	created := f.enrollments(f.toYear.ID)
	require.Len(t, created, 2)
	byStudent := make(map[uuid.UUID]school.StudentEnrollment, len(created))
	for _, enr := range created {
		byStudent[enr.StudentID] = enr
	}
	assert.Equal(t, g1.ID, byStudent[repeater.ID].GradeID)
	assert.NotEqual(t, g1.ID, byStudent[mover.ID].GradeID)
	_, ok := byStudent[leaver.ID]
	assert.False(t, ok)

	// nobody loses their active-student flag; leaving is not graduating
	for _, id := range []uuid.UUID{mover.ID, repeater.ID, leaver.ID} {
		student, err := f.schoolSvc.GetStudent(ctx, id)
		require.NoError(t, err)
		assert.True(t, student.IsActive)
	}

	left := f.enrollments(f.fromYear.ID, school.StatusLeft)
	require.Len(t, left, 1)
	assert.Equal(t, leaver.ID, left[0].StudentID)
}

func TestService_Execute_SectionAssignments(t *testing.T) {
	f := newFixture(t)
	g1 := f.grade("Grade 1", 1)
	g2 := f.grade("Grade 2", 2)
	secA := f.section(g2, "A", 2)
	secB := f.section(g2, "B", 3)

	for i := 1; i <= 5; i++ {
		student := f.student(fmt.Sprintf("S%03d", i), fmt.Sprintf("Student%d", i), "Test")
		f.enroll(student, g1, nil, i)
	}

	result, err := f.svc.Execute(ctx, f.request())
	require.NoError(t, err)
	assert.Equal(t, 5, result.Counts.Promoted)
	assert.Empty(t, result.Warnings)

	created := f.enrollments(f.toYear.ID)
	require.Len(t, created, 5)

	perSection := make(map[uuid.UUID]int)
	seen := make(map[string]bool)
	for _, enr := range created {
		require.True(t, enr.SectionID.Valid, enr.StudentName)
		require.True(t, enr.RollNumber.Valid, enr.StudentName)
		perSection[enr.SectionID.UUID]++

		// roll numbers are unique within (grade, section)
		key := fmt.Sprintf("%s/%s/%d", enr.GradeID, enr.SectionID.UUID, enr.RollNumber.Int)
		assert.False(t, seen[key], "duplicate roll assignment %s", key)
		seen[key] = true
	}
	assert.Equal(t, 2, perSection[secA.ID])
	assert.Equal(t, 3, perSection[secB.ID])
}

func TestService_Execute_OverCapacityWarning(t *testing.T) {
	f := newFixture(t)
	g1 := f.grade("Grade 1", 1)
	g2 := f.grade("Grade 2", 2)
	f.section(g2, "A", 2)

	for i := 1; i <= 3; i++ {
		student := f.student(fmt.Sprintf("S%03d", i), fmt.Sprintf("Student%d", i), "Test")
		f.enroll(student, g1, nil, i)
	}

	result, err := f.svc.Execute(ctx, f.request())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Counts.Promoted)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "over capacity")
}

func TestService_Execute_Twice(t *testing.T) {
	f := newFixture(t)
	g1 := f.grade("Grade 1", 1)
	f.grade("Grade 2", 2)
	f.enroll(f.student("S001", "Asha", "Odoi"), g1, nil, 1)

	_, err := f.svc.Execute(ctx, f.request())
	require.NoError(t, err)

	// a second run is rejected outright, even with fresh eligible students
	f.enroll(f.student("S002", "Badru", "Okello"), g1, nil, 2)

	result, err := f.svc.Execute(ctx, f.request())
	require.Error(t, err)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Errors)

	var verr *core.ValidationError
	require.True(t, errors.As(err, &verr), "want ValidationError, got %v", err)
	assert.Equal(t, promotion.ErrPrerequisites, verr.Err)

	// nothing was written by the rejected run
	assert.Len(t, f.enrollments(f.toYear.ID), 1)
	logs, err := f.svc.Logs(ctx, f.schoolID)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestService_ExecutePreviews_RaceRecheck(t *testing.T) {
	f := newFixture(t)
	g1 := f.grade("Grade 1", 1)
	f.grade("Grade 2", 2)
	f.enroll(f.student("S001", "Asha", "Odoi"), g1, nil, 1)

	// both callers previewed before either executed
	previews, err := f.svc.Preview(ctx, f.request())
	require.NoError(t, err)

	_, err = f.svc.ExecutePreviews(ctx, f.request(), previews)
	require.NoError(t, err)

	result, err := f.svc.ExecutePreviews(ctx, f.request(), previews)
	assert.Equal(t, promotion.ErrAlreadyPromoted, errors.Cause(err))
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Errors)
}

func TestService_ExecutePreviews_ConcurrentRunRejected(t *testing.T) {
	f := newFixture(t)
	g1 := f.grade("Grade 1", 1)
	f.grade("Grade 2", 2)
	f.enroll(f.student("S001", "Asha", "Odoi"), g1, nil, 1)

	previews, err := f.svc.Preview(ctx, f.request())
	require.NoError(t, err)

	// park the first execution right after it takes the school run guard
	entered := make(chan struct{})
	release := make(chan struct{})
	f.db.HoldNextPromotion(func() {
		close(entered)
		<-release
	})

	firstDone := make(chan error, 1)
	go func() {
		_, err := f.svc.ExecutePreviews(ctx, f.request(), previews)
		firstDone <- err
	}()
	<-entered

	// the overlapping run fails fast and commits nothing
	result, err := f.svc.ExecutePreviews(ctx, f.request(), previews)
	assert.Equal(t, promotion.ErrConcurrentPromotion, errors.Cause(err))
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Errors)
	assert.Empty(t, f.enrollments(f.toYear.ID))
	logs, err := f.svc.Logs(ctx, f.schoolID)
	require.NoError(t, err)
	assert.Empty(t, logs)

	// the held run completes normally once released
	close(release)
	require.NoError(t, <-firstDone)
	assert.Len(t, f.enrollments(f.toYear.ID), 1)
	logs, err = f.svc.Logs(ctx, f.schoolID)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestService_Execute_RollsBackOnFailure(t *testing.T) {
	f := newFixture(t)
	g1 := f.grade("Grade 1", 1)
	f.grade("Grade 2", 2)

	students := make([]school.Student, 0, 3)
	for i := 1; i <= 3; i++ {
		student := f.student(fmt.Sprintf("S%03d", i), fmt.Sprintf("Student%d", i), "Test")
		f.enroll(student, g1, nil, i)
		students = append(students, student)
	}

	f.db.FailAfterWrites(2)
	result, err := f.svc.Execute(ctx, f.request())
	assert.Equal(t, inmemdb.ErrInjectedFailure, errors.Cause(err))
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Errors)

	// all-or-nothing: the failed run left no trace at all
	assert.Empty(t, f.enrollments(f.toYear.ID))
	assert.Len(t, f.enrollments(f.fromYear.ID, school.StatusActive), 3)
	logs, err := f.svc.Logs(ctx, f.schoolID)
	require.NoError(t, err)
	assert.Empty(t, logs)
	for _, student := range students {
		got, err := f.schoolSvc.GetStudent(ctx, student.ID)
		require.NoError(t, err)
		assert.True(t, got.IsActive)
	}

	// the same rollover succeeds once the fault is gone
	f.db.FailAfterWrites(-1)
	result, err = f.svc.Execute(ctx, f.request())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Counts.Promoted)
}

func TestService_Execute_ValidatesRequest(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Execute(ctx, promotion.Request{})
	require.Error(t, err)

	req := f.request()
	req.Type = "sideways"
	_, err = f.svc.Execute(ctx, req)
	require.Error(t, err)
}
