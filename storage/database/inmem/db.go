package inmemdb

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/shulehub/shule/core/promotion"
	"github.com/shulehub/shule/core/school"
)

// ErrInjectedFailure is returned by a DB configured with FailAfterWrites once
// the write budget is exhausted. Tests use it to prove rollback behavior.
var ErrInjectedFailure = errors.New("injected write failure")

// DB is an in-memory stand-in for the relational store. It honors the same
// uniqueness constraints as the SQL schema so the domain packages can be
// tested against it without postgres.
type DB struct {
	mu          sync.Mutex
	years       map[uuid.UUID]school.AcademicYear
	grades      map[uuid.UUID]school.Grade
	sections    map[uuid.UUID]school.Section
	students    map[uuid.UUID]school.Student
	enrollments map[uuid.UUID]school.StudentEnrollment
	logs        []promotion.Log

	promoting map[uuid.UUID]bool // school-scoped exclusive promotion guard

	failAfter int // -1: disabled
	txWrites  int
	holdRun   func()
}

func Open() (*DB, error) {
	return &DB{
		years:       make(map[uuid.UUID]school.AcademicYear),
		grades:      make(map[uuid.UUID]school.Grade),
		sections:    make(map[uuid.UUID]school.Section),
		students:    make(map[uuid.UUID]school.Student),
		enrollments: make(map[uuid.UUID]school.StudentEnrollment),
		promoting:   make(map[uuid.UUID]bool),
		failAfter:   -1,
	}, nil
}

// FailAfterWrites makes the next promotion execution fail on write n+1.
// Pass a negative n to disable.
func (db *DB) FailAfterWrites(n int) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.failAfter = n
	db.txWrites = 0
}

// HoldNextPromotion runs fn inside the next promotion execution, after the
// school run guard is acquired and before any write is staged. Consumed once.
// Tests use it to overlap two executions deterministically.
func (db *DB) HoldNextPromotion(fn func()) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.holdRun = fn
}

// countTxWrite is called for every write inside a promotion transaction.
func (db *DB) countTxWrite() error {
	db.txWrites++
	if db.failAfter >= 0 && db.txWrites > db.failAfter {
		return ErrInjectedFailure
	}
	return nil
}
