// Package nav is the storefront navigation state machine.
//
// State is a value: every transition returns a new State and leaves the
// receiver untouched. The catalog tab owns a drill-down of four panels
// (departments, semesters, years, papers); the selection always holds exactly
// the fields the visible panel depends on.
package nav

import (
	"errors"
	"fmt"
)

// Tab is a top-level storefront section.
type Tab string

const (
	TabCatalog Tab = "question-papers"
	TabWallet  Tab = "topup-wallet"
	TabHistory Tab = "purchase-history"
	TabProfile Tab = "profile"
)

// Tabs lists the tabs in display order.
var Tabs = []Tab{TabCatalog, TabWallet, TabHistory, TabProfile}

// ParseTab resolves a tab identifier.
func ParseTab(s string) (Tab, bool) {
	for _, t := range Tabs {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// Panel is a catalog drill-down level.
type Panel int

const (
	PanelDepartments Panel = iota
	PanelSemesters
	PanelYears
	PanelPapers
)

func (p Panel) String() string {
	switch p {
	case PanelDepartments:
		return "departments"
	case PanelSemesters:
		return "semesters"
	case PanelYears:
		return "years"
	case PanelPapers:
		return "papers"
	}
	return fmt.Sprintf("panel(%d)", int(p))
}

// Selection is an ordered partial key into the catalog.
type Selection struct {
	Department string
	Semester   string
	Year       string
}

// Depth counts the consecutive levels set from the top.
func (s Selection) Depth() int {
	switch {
	case s.Department == "":
		return 0
	case s.Semester == "":
		return 1
	case s.Year == "":
		return 2
	default:
		return 3
	}
}

var (
	// ErrNoDepartment is returned when a semester is chosen without a department.
	ErrNoDepartment = errors.New("nav: no department selected")
	// ErrNoSemester is returned when a year is chosen without a semester.
	ErrNoSemester = errors.New("nav: no semester selected")
	// ErrEmptyValue is returned for blank selections.
	ErrEmptyValue = errors.New("nav: empty selection value")
)

// State is the full navigation view state.
type State struct {
	Tab       Tab
	Panel     Panel
	Selection Selection
	// Gen increases on every transition; keyboards carry it to detect staleness.
	Gen uint64
}

// Initial is the state on app load: catalog tab, departments panel.
func Initial() State {
	return State{Tab: TabCatalog, Panel: PanelDepartments}
}

// EnterCatalog activates the catalog tab and resets the drill-down.
func (s State) EnterCatalog() State {
	return State{Tab: TabCatalog, Panel: PanelDepartments, Gen: s.Gen + 1}
}

// SwitchTab activates t. Entering the catalog resets it; other tabs keep the
// catalog sub-state untouched.
func (s State) SwitchTab(t Tab) State {
	if t == TabCatalog {
		return s.EnterCatalog()
	}
	s.Tab = t
	s.Gen++
	return s
}

// SelectDepartment shows the semesters of d and clears finer levels.
func (s State) SelectDepartment(d string) (State, error) {
	if d == "" {
		return s, ErrEmptyValue
	}
	return State{
		Tab:       TabCatalog,
		Panel:     PanelSemesters,
		Selection: Selection{Department: d},
		Gen:       s.Gen + 1,
	}, nil
}

// SelectSemester shows the years of the selected department and semester.
func (s State) SelectSemester(sem string) (State, error) {
	if sem == "" {
		return s, ErrEmptyValue
	}
	if s.Selection.Department == "" {
		return s, ErrNoDepartment
	}
	return State{
		Tab:       TabCatalog,
		Panel:     PanelYears,
		Selection: Selection{Department: s.Selection.Department, Semester: sem},
		Gen:       s.Gen + 1,
	}, nil
}

// SelectYear shows the papers of the fully selected position.
func (s State) SelectYear(y string) (State, error) {
	if y == "" {
		return s, ErrEmptyValue
	}
	if s.Selection.Department == "" {
		return s, ErrNoDepartment
	}
	if s.Selection.Semester == "" {
		return s, ErrNoSemester
	}
	sel := s.Selection
	sel.Year = y
	return State{Tab: TabCatalog, Panel: PanelPapers, Selection: sel, Gen: s.Gen + 1}, nil
}

// Back returns to the parent panel, clearing the field owned by the panel
// being left. Back from departments is a no-op.
func (s State) Back() State {
	next := s
	switch s.Panel {
	case PanelDepartments:
		return s
	case PanelSemesters:
		next.Panel = PanelDepartments
		next.Selection = Selection{}
	case PanelYears:
		next.Panel = PanelSemesters
		next.Selection.Semester = ""
		next.Selection.Year = ""
	case PanelPapers:
		next.Panel = PanelYears
		next.Selection.Year = ""
	}
	next.Gen++
	return next
}

// Validate checks that the selection matches the visible panel.
func (s State) Validate() error {
	if _, ok := ParseTab(string(s.Tab)); !ok {
		return fmt.Errorf("nav: unknown tab %q", s.Tab)
	}
	if s.Panel < PanelDepartments || s.Panel > PanelPapers {
		return fmt.Errorf("nav: unknown panel %d", int(s.Panel))
	}
	if got, want := s.Selection.Depth(), int(s.Panel); got != want {
		return fmt.Errorf("nav: selection depth %d does not match panel %s", got, s.Panel)
	}
	sel := s.Selection
	if (sel.Semester != "" && sel.Department == "") || (sel.Year != "" && sel.Semester == "") {
		return errors.New("nav: selection has gaps")
	}
	return nil
}

// Visible reports whether panel p is the one shown. Outside the catalog tab no
// panel is shown.
func (s State) Visible(p Panel) bool {
	return s.Tab == TabCatalog && s.Panel == p
}
