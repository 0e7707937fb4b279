// Package view renders storefront data into chat screens. Every function is
// pure: it maps domain values to text and button rows and nothing else.
package view

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/m3rciful/paperbot/core/telegram/format"
	"github.com/m3rciful/paperbot/storefront"
	"github.com/m3rciful/paperbot/storefront/nav"
)

// Callback actions carried by rendered buttons.
const (
	ActionDepartment = "dept"
	ActionSemester   = "sem"
	ActionYear       = "year"
	ActionPaper      = "paper"
	ActionBack       = "back"
	ActionTab        = "tab"
	ActionTopUp      = "topup"
	ActionGetPaper   = "getpaper"
)

const gridColumns = 2

// Button is a rendered control. Exactly one of Action or URL is set.
type Button struct {
	Text    string
	Action  string
	Payload string
	URL     string
}

// Screen is a rendered message: MarkdownV2 text and inline rows.
type Screen struct {
	Text string
	Rows [][]Button
}

// ItemPayload encodes a listing position bound to a navigation generation.
func ItemPayload(gen uint64, index int) string {
	return strconv.FormatUint(gen, 10) + "|" + strconv.Itoa(index)
}

// ParseItemPayload reverses ItemPayload.
func ParseItemPayload(payload string) (uint64, int, error) {
	genStr, idxStr, ok := strings.Cut(payload, "|")
	if !ok {
		return 0, 0, fmt.Errorf("view: malformed item payload %q", payload)
	}
	gen, err := strconv.ParseUint(genStr, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("view: item generation: %w", err)
	}
	idx, err := strconv.Atoi(idxStr)
	if err != nil || idx < 0 {
		return 0, 0, fmt.Errorf("view: item index %q", idxStr)
	}
	return gen, idx, nil
}

// Departments renders the top catalog level.
func Departments(gen uint64, departments []string) Screen {
	text := "🏛 *Select Department*"
	if len(departments) == 0 {
		text += "\n\n_No departments available yet\\._"
	}
	return Screen{
		Text: text,
		Rows: append(grid(ActionDepartment, "🏢 ", gen, departments), TabRow(nav.TabCatalog)),
	}
}

// Semesters renders the semesters of a department.
func Semesters(gen uint64, sel nav.Selection, semesters []string) Screen {
	text := "🎓 *Select Semester*\n" + breadcrumb(sel)
	if len(semesters) == 0 {
		text += "\n\n_No semesters listed for this department\\._"
	}
	rows := grid(ActionSemester, "🎓 ", gen, semesters)
	rows = append(rows, backRow(gen), TabRow(nav.TabCatalog))
	return Screen{Text: text, Rows: rows}
}

// Years renders the years of a department semester.
func Years(gen uint64, sel nav.Selection, years []string) Screen {
	text := "📅 *Select Year*\n" + breadcrumb(sel)
	if len(years) == 0 {
		text += "\n\n_No years listed for this semester\\._"
	}
	rows := grid(ActionYear, "📅 ", gen, years)
	rows = append(rows, backRow(gen), TabRow(nav.TabCatalog))
	return Screen{Text: text, Rows: rows}
}

// Papers renders the purchasable papers of a catalog position.
func Papers(gen uint64, sel nav.Selection, papers []storefront.Paper) Screen {
	var b strings.Builder
	b.WriteString("📄 *Available Papers*\n")
	b.WriteString(breadcrumb(sel))
	if len(papers) == 0 {
		b.WriteString("\n\n_No papers for this year yet\\._")
	} else {
		b.WriteString("\n\nTap a paper to buy it\\.")
	}
	rows := make([][]Button, 0, len(papers)+2)
	for _, p := range papers {
		rows = append(rows, []Button{{
			Text:    fmt.Sprintf("📄 %s · %d ⭐", p.Name, p.Price),
			Action:  ActionPaper,
			Payload: strconv.FormatInt(p.ID, 10),
		}})
	}
	rows = append(rows, backRow(gen), TabRow(nav.TabCatalog))
	return Screen{Text: b.String(), Rows: rows}
}

// Wallet renders the balance and top-up options.
func Wallet(user *storefront.User, topUps []int) Screen {
	var b strings.Builder
	b.WriteString("⭐ *Wallet*\n\n")
	if user == nil {
		b.WriteString("_Balance unavailable: not logged in\\._")
	} else {
		fmt.Fprintf(&b, "Current balance: *%d* stars", user.Stars)
	}
	var buttons []Button
	if user != nil {
		for _, amount := range topUps {
			if amount <= 0 {
				continue
			}
			buttons = append(buttons, Button{
				Text:    fmt.Sprintf("+%d ⭐", amount),
				Action:  ActionTopUp,
				Payload: strconv.Itoa(amount),
			})
		}
		if len(buttons) > 0 {
			b.WriteString("\n\nBuy more stars:")
		}
	}
	rows := chunk(buttons, gridColumns)
	rows = append(rows, TabRow(nav.TabWallet))
	return Screen{Text: b.String(), Rows: rows}
}

// History renders purchased papers with a delivery button each.
func History(records []storefront.PurchaseRecord) Screen {
	var b strings.Builder
	b.WriteString("🧾 *Purchase History*")
	if len(records) == 0 {
		b.WriteString("\n\n_You have not bought any papers yet\\._")
	}
	rows := make([][]Button, 0, len(records)+1)
	for _, r := range records {
		fmt.Fprintf(&b, "\n\n*%s*\n%s", format.MD(r.PaperName),
			format.MD(fmt.Sprintf("%s - %s - %s", r.Department, r.Semester, r.Year)))
		rows = append(rows, []Button{{
			Text:    "⬇️ Get Paper: " + r.PaperName,
			Action:  ActionGetPaper,
			Payload: strconv.FormatInt(r.PaperID, 10),
		}})
	}
	rows = append(rows, TabRow(nav.TabHistory))
	return Screen{Text: b.String(), Rows: rows}
}

// Profile renders account details and purchase statistics. Stats may be nil
// when they were not loaded.
func Profile(user *storefront.User, stats *storefront.ProfileStats) Screen {
	var b strings.Builder
	if user == nil {
		b.WriteString("👤 *Profile*\n\n_Not logged in\\._")
		return Screen{Text: b.String(), Rows: [][]Button{TabRow(nav.TabProfile)}}
	}
	fmt.Fprintf(&b, "👤 *%s*\n", format.MD(user.DisplayName()))
	fmt.Fprintf(&b, "ID: `%d`\n", user.ID)
	fmt.Fprintf(&b, "Balance: *%d* ⭐", user.Stars)
	if stats != nil {
		fmt.Fprintf(&b, "\n\nPapers owned: *%d*\nStars spent: *%d*", stats.TotalPapers, stats.TotalSpent)
		depts := make([]string, 0, len(stats.DepartmentStats))
		for d := range stats.DepartmentStats {
			depts = append(depts, d)
		}
		sort.Strings(depts)
		if len(depts) > 0 {
			b.WriteString("\n\n*By department*")
		}
		for _, d := range depts {
			fmt.Fprintf(&b, "\n🏢 %s: %d papers", format.MD(d), stats.DepartmentStats[d])
		}
	}
	return Screen{Text: b.String(), Rows: [][]Button{TabRow(nav.TabProfile)}}
}

var tabLabels = map[nav.Tab]string{
	nav.TabCatalog: "📚 Papers",
	nav.TabWallet:  "⭐ Wallet",
	nav.TabHistory: "🧾 History",
	nav.TabProfile: "👤 Profile",
}

// TabLabel returns the navigation label of a tab.
func TabLabel(t nav.Tab) string {
	return tabLabels[t]
}

// TabByLabel resolves a navigation label typed or tapped on the reply keyboard.
func TabByLabel(label string) (nav.Tab, bool) {
	label = strings.TrimSpace(label)
	for t, l := range tabLabels {
		if l == label {
			return t, true
		}
	}
	return "", false
}

// NavLabels returns the reply keyboard rows for tab navigation.
func NavLabels() [][]string {
	return [][]string{
		{TabLabel(nav.TabCatalog), TabLabel(nav.TabWallet)},
		{TabLabel(nav.TabHistory), TabLabel(nav.TabProfile)},
	}
}

// TabRow renders the tab switcher with the active tab marked.
func TabRow(active nav.Tab) []Button {
	row := make([]Button, 0, len(nav.Tabs))
	for _, t := range nav.Tabs {
		label := tabLabels[t]
		if t == active {
			label = "• " + label
		}
		row = append(row, Button{Text: label, Action: ActionTab, Payload: string(t)})
	}
	return row
}

func backRow(gen uint64) []Button {
	return []Button{{Text: "⬅️ Back", Action: ActionBack, Payload: strconv.FormatUint(gen, 10)}}
}

func breadcrumb(sel nav.Selection) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{sel.Department, sel.Semester, sel.Year} {
		if p == "" {
			break
		}
		parts = append(parts, format.MD(p))
	}
	return "_" + strings.Join(parts, " › ") + "_"
}

func grid(action, icon string, gen uint64, items []string) [][]Button {
	buttons := make([]Button, 0, len(items))
	for i, item := range items {
		buttons = append(buttons, Button{Text: icon + item, Action: action, Payload: ItemPayload(gen, i)})
	}
	return chunk(buttons, gridColumns)
}

func chunk(buttons []Button, n int) [][]Button {
	var rows [][]Button
	for i := 0; i < len(buttons); i += n {
		end := i + n
		if end > len(buttons) {
			end = len(buttons)
		}
		rows = append(rows, buttons[i:end])
	}
	return rows
}
