package promotion_test

import (
	"context"
	"io/ioutil"
	"log"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/shulehub/shule/core"
	"github.com/shulehub/shule/core/promotion"
	"github.com/shulehub/shule/core/school"
	inmemdb "github.com/shulehub/shule/storage/database/inmem"
)

var ctx = context.Background()

// fixture wires the services onto a fresh in-memory store with one school and
// two consecutive academic years already created.
type fixture struct {
	t  *testing.T
	db *inmemdb.DB

	schoolSvc *school.Service
	svc       *promotion.Service

	schoolID uuid.UUID
	fromYear school.AcademicYear
	toYear   school.AcademicYear
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("opening in-memory db: %v", err)
	}
	schoolRepo := inmemdb.NewSchoolRepository(db)
	logger := core.NewStdLogger(log.New(ioutil.Discard, "", 0))

	f := &fixture{
		t:         t,
		db:        db,
		schoolSvc: school.NewService(schoolRepo),
		svc:       promotion.NewService(logger, schoolRepo, inmemdb.NewPromotionRepository(db)),
		schoolID:  uuid.New(),
	}
	f.fromYear = f.year("2023-2024", 2023)
	f.toYear = f.year("2024-2025", 2024)
	return f
}

func (f *fixture) year(name string, startYear int) school.AcademicYear {
	f.t.Helper()
	year, err := f.schoolSvc.CreateYear(ctx, school.NewAcademicYear{
		SchoolID:  f.schoolID,
		Name:      name,
		StartDate: time.Date(startYear, time.September, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(startYear+1, time.June, 30, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		f.t.Fatalf("creating year %s: %v", name, err)
	}
	return year
}

func (f *fixture) grade(name string, rank int) school.Grade {
	f.t.Helper()
	grade, err := f.schoolSvc.CreateGrade(ctx, school.NewGrade{SchoolID: f.schoolID, Name: name, Rank: rank})
	if err != nil {
		f.t.Fatalf("creating grade %s: %v", name, err)
	}
	return grade
}

// section creates a section of the grade; capacity <= 0 means unbounded.
func (f *fixture) section(grade school.Grade, name string, capacity int) school.Section {
	f.t.Helper()
	ns := school.NewSection{SchoolID: f.schoolID, GradeID: grade.ID, Name: name}
	if capacity > 0 {
		ns.Capacity = null.IntFrom(capacity)
	}
	section, err := f.schoolSvc.CreateSection(ctx, ns)
	if err != nil {
		f.t.Fatalf("creating section %s: %v", name, err)
	}
	return section
}

func (f *fixture) student(code, firstName, lastName string) school.Student {
	f.t.Helper()
	student, err := f.schoolSvc.CreateStudent(ctx, school.NewStudent{
		SchoolID: f.schoolID, Code: code, FirstName: firstName, LastName: lastName,
	})
	if err != nil {
		f.t.Fatalf("creating student %s: %v", code, err)
	}
	return student
}

// enroll enrolls the student into the source year; roll <= 0 leaves the roll
// number unset and a nil section leaves the student unsectioned.
func (f *fixture) enroll(student school.Student, grade school.Grade, section *school.Section, roll int) school.StudentEnrollment {
	f.t.Helper()
	ne := school.NewEnrollment{
		SchoolID:       f.schoolID,
		StudentID:      student.ID,
		AcademicYearID: f.fromYear.ID,
		GradeID:        grade.ID,
	}
	if section != nil {
		ne.SectionID = uuid.NullUUID{UUID: section.ID, Valid: true}
	}
	if roll > 0 {
		ne.RollNumber = null.IntFrom(roll)
	}
	enr, err := f.schoolSvc.Enroll(ctx, ne)
	if err != nil {
		f.t.Fatalf("enrolling student %s: %v", student.Code, err)
	}
	return enr
}

func (f *fixture) request() promotion.Request {
	return promotion.Request{
		SchoolID:   f.schoolID,
		FromYearID: f.fromYear.ID,
		ToYearID:   f.toYear.ID,
		Type:       promotion.TypeAutomatic,
		Actor:      "test-runner",
	}
}

func (f *fixture) enrollments(yearID uuid.UUID, statuses ...school.Status) []school.StudentEnrollment {
	f.t.Helper()
	enrollments, err := f.schoolSvc.Enrollments(ctx, yearID, statuses...)
	if err != nil {
		f.t.Fatalf("querying enrollments: %v", err)
	}
	return enrollments
}
