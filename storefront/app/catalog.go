package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/m3rciful/paperbot/core/logger"
	"github.com/m3rciful/paperbot/storefront"
	"github.com/m3rciful/paperbot/storefront/bridge"
	"github.com/m3rciful/paperbot/storefront/nav"
)

// EnterCatalog loads the department list and resets the drill-down. A failed
// load leaves the current screen in place.
func (c *Controller) EnterCatalog(ctx context.Context, h bridge.Host) error {
	depts, err := c.api.ListDepartments(ctx)
	if err != nil {
		c.fail(ctx, h, "catalog.departments", err, MsgLoadDepartments)
		return err
	}
	m := c.Session(h).Update(func(m Model) Model {
		m.Nav = m.Nav.EnterCatalog()
		m.Departments = depts
		m.Semesters, m.Years, m.Papers = nil, nil, nil
		return m
	})
	return c.render(ctx, h, m)
}

// SelectDepartment opens the semesters of the department at idx on the
// keyboard of generation gen.
func (c *Controller) SelectDepartment(ctx context.Context, h bridge.Host, gen uint64, idx int) error {
	m, err := c.current(ctx, h, gen, nav.PanelDepartments)
	if err != nil {
		return err
	}
	dept, err := pick(m.Departments, idx)
	if err != nil {
		return c.stale(ctx, h, err)
	}
	sems, err := c.api.ListSemesters(ctx, dept)
	if err != nil {
		c.fail(ctx, h, "catalog.semesters", err, MsgLoadSemesters)
		return err
	}
	next, err := m.Nav.SelectDepartment(dept)
	if err != nil {
		return err
	}
	m, ok := c.Session(h).CommitAt(m.Nav.Gen, func(m Model) Model {
		m.Nav = next
		m.Semesters = sems
		m.Years, m.Papers = nil, nil
		return m
	})
	if !ok {
		return c.stale(ctx, h, ErrSuperseded)
	}
	return c.render(ctx, h, m)
}

// SelectSemester opens the years of the selected department and semester.
func (c *Controller) SelectSemester(ctx context.Context, h bridge.Host, gen uint64, idx int) error {
	m, err := c.current(ctx, h, gen, nav.PanelSemesters)
	if err != nil {
		return err
	}
	sem, err := pick(m.Semesters, idx)
	if err != nil {
		return c.stale(ctx, h, err)
	}
	next, err := m.Nav.SelectSemester(sem)
	if err != nil {
		return err
	}
	years, err := c.api.ListYears(ctx, next.Selection.Department, sem)
	if err != nil {
		c.fail(ctx, h, "catalog.years", err, MsgLoadYears)
		return err
	}
	m, ok := c.Session(h).CommitAt(m.Nav.Gen, func(m Model) Model {
		m.Nav = next
		m.Years = years
		m.Papers = nil
		return m
	})
	if !ok {
		return c.stale(ctx, h, ErrSuperseded)
	}
	return c.render(ctx, h, m)
}

// SelectYear opens the papers of the fully selected position.
func (c *Controller) SelectYear(ctx context.Context, h bridge.Host, gen uint64, idx int) error {
	m, err := c.current(ctx, h, gen, nav.PanelYears)
	if err != nil {
		return err
	}
	year, err := pick(m.Years, idx)
	if err != nil {
		return c.stale(ctx, h, err)
	}
	next, err := m.Nav.SelectYear(year)
	if err != nil {
		return err
	}
	sel := next.Selection
	papers, err := c.api.ListPapers(ctx, sel.Department, sel.Semester, sel.Year)
	if err != nil {
		c.fail(ctx, h, "catalog.papers", err, MsgLoadPapers)
		return err
	}
	m, ok := c.Session(h).CommitAt(m.Nav.Gen, func(m Model) Model {
		m.Nav = next
		m.Papers = papers
		return m
	})
	if !ok {
		return c.stale(ctx, h, ErrSuperseded)
	}
	return c.render(ctx, h, m)
}

// Back returns to the parent panel. Parent listings are still cached, so no
// request is made.
func (c *Controller) Back(ctx context.Context, h bridge.Host, gen uint64) error {
	m := c.Session(h).Model()
	if m.Nav.Gen != gen || m.Nav.Tab != nav.TabCatalog {
		return c.stale(ctx, h, ErrStale)
	}
	m = c.Session(h).Update(func(m Model) Model {
		left := m.Nav.Panel
		m.Nav = m.Nav.Back()
		switch left {
		case nav.PanelSemesters:
			m.Semesters = nil
		case nav.PanelYears:
			m.Years = nil
		case nav.PanelPapers:
			m.Papers = nil
		}
		return m
	})
	return c.render(ctx, h, m)
}

// SwitchTab activates tab t, loading its data first.
func (c *Controller) SwitchTab(ctx context.Context, h bridge.Host, t nav.Tab) error {
	switch t {
	case nav.TabCatalog:
		return c.EnterCatalog(ctx, h)
	case nav.TabWallet:
		return c.commitTab(ctx, h, t, nil)
	case nav.TabHistory:
		records, err := c.history(ctx, h)
		if err != nil {
			c.fail(ctx, h, "tab.history", err, MsgLoadHistory)
			return err
		}
		return c.commitTab(ctx, h, t, func(m *Model) { m.History = records })
	case nav.TabProfile:
		if !c.Session(h).Model().LoggedIn() {
			return c.commitTab(ctx, h, t, func(m *Model) { m.Profile = nil })
		}
		raw, err := h.InitData()
		if err == nil {
			stats, perr := c.api.GetProfile(ctx, raw)
			if perr == nil {
				return c.commitTab(ctx, h, t, func(m *Model) { m.Profile = &stats })
			}
			err = perr
		}
		c.fail(ctx, h, "tab.profile", err, MsgLoadProfile)
		return err
	}
	return fmt.Errorf("app: unknown tab %q", t)
}

func (c *Controller) history(ctx context.Context, h bridge.Host) ([]storefront.PurchaseRecord, error) {
	raw, err := h.InitData()
	if err != nil {
		return nil, err
	}
	return c.api.GetPurchaseHistory(ctx, raw)
}

func (c *Controller) commitTab(ctx context.Context, h bridge.Host, t nav.Tab, apply func(*Model)) error {
	m := c.Session(h).Update(func(m Model) Model {
		m.Nav = m.Nav.SwitchTab(t)
		if apply != nil {
			apply(&m)
		}
		return m
	})
	return c.render(ctx, h, m)
}

// current returns the model when gen still names the visible panel p.
func (c *Controller) current(ctx context.Context, h bridge.Host, gen uint64, p nav.Panel) (Model, error) {
	m := c.Session(h).Model()
	if m.Nav.Gen != gen || !m.Nav.Visible(p) {
		return m, c.stale(ctx, h, ErrStale)
	}
	return m, nil
}

// stale redraws the live screen over an outdated keyboard.
func (c *Controller) stale(ctx context.Context, h bridge.Host, err error) error {
	logger.Debug(ctx, component, "nav.stale", slog.String("err", err.Error()))
	if rerr := c.Rerender(ctx, h); rerr != nil {
		return rerr
	}
	return err
}

func pick(items []string, idx int) (string, error) {
	if idx < 0 || idx >= len(items) {
		return "", fmt.Errorf("%w: index %d out of %d", ErrStale, idx, len(items))
	}
	return items[idx], nil
}
