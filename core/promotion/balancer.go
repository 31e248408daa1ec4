package promotion

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/shulehub/shule/core/school"
)

// RebalanceSections assigns a section and roll number to every preview whose
// destination is `grade`. Only promote/retain previews participate; the rest
// are left untouched.
//
// Students are sorted by existing roll number (missing rolls last), ties
// broken by name then code, so the output is reproducible. Sections are
// filled round-robin in name order, skipping any section at capacity. When
// every section is full, remaining students go to the least-full section with
// a capacity-exceeded warning; a student is never dropped. Grades without
// sections get section-less assignments with sequential roll numbers.
func RebalanceSections(grade school.Grade, sections []school.Section, previews []*Preview) {
	candidates := make([]*Preview, 0, len(previews))
	for _, p := range previews {
		if p.Action.CreatesEnrollment() && p.ToGradeID.Valid && p.ToGradeID.UUID == grade.ID {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.FromRoll.Valid != b.FromRoll.Valid {
			return a.FromRoll.Valid // missing roll numbers sort last
		}
		if a.FromRoll.Valid && a.FromRoll.Int != b.FromRoll.Int {
			return a.FromRoll.Int < b.FromRoll.Int
		}
		if n := strings.Compare(a.StudentName, b.StudentName); n != 0 {
			return n < 0
		}
		return a.StudentCode < b.StudentCode
	})

	// sections are optional; without any, students stay unsectioned
	if len(sections) == 0 {
		for i, p := range candidates {
			p.ToRoll = null.IntFrom(i + 1)
		}
		return
	}

	counts := make([]int, len(sections))
	hasRoom := func(i int) bool {
		return !sections[i].Capacity.Valid || counts[i] < sections[i].Capacity.Int
	}

	var cursor int
	for _, p := range candidates {
		assigned := -1
		for i := 0; i < len(sections); i++ {
			idx := (cursor + i) % len(sections)
			if hasRoom(idx) {
				assigned = idx
				cursor = (idx + 1) % len(sections)
				break
			}
		}
		if assigned < 0 {
			// all sections full: overflow into the least-full one
			assigned = 0
			for i := range counts {
				if counts[i] < counts[assigned] {
					assigned = i
				}
			}
			p.Warnings = append(p.Warnings,
				fmt.Sprintf("section %q is over capacity (%d)", sections[assigned].Name, sections[assigned].Capacity.Int))
		}
		counts[assigned]++
		p.ToSectionID = uuid.NullUUID{UUID: sections[assigned].ID, Valid: true}
		p.ToRoll = null.IntFrom(counts[assigned])
	}
}
