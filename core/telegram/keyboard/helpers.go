package keyboard

import tele "gopkg.in/telebot.v4"

// InlineBtn is one inline button. With URL set it opens the link; otherwise
// it sends Unique and Data back as a callback.
type InlineBtn struct {
	Text   string
	Unique string
	Data   string
	URL    string
}

func (b InlineBtn) inline(m *tele.ReplyMarkup) tele.InlineButton {
	if b.URL != "" {
		return *m.URL(b.Text, b.URL).Inline()
	}
	return *m.Data(b.Text, b.Unique, b.Data).Inline()
}

// ReplyButtons builds a resizable reply keyboard, one row per slice.
func ReplyButtons(rows ...[]string) *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{ResizeKeyboard: true}
	layout := make([]tele.Row, len(rows))
	for i, labels := range rows {
		for _, l := range labels {
			layout[i] = append(layout[i], m.Text(l))
		}
	}
	m.Reply(layout...)
	return m
}

// InlineButtonsRows builds an inline keyboard. Empty rows are dropped.
func InlineButtonsRows(rows ...[]InlineBtn) *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{}
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		line := make([]tele.InlineButton, 0, len(row))
		for _, b := range row {
			line = append(line, b.inline(m))
		}
		m.InlineKeyboard = append(m.InlineKeyboard, line)
	}
	return m
}

func InlineRow(buttons ...InlineBtn) *tele.ReplyMarkup {
	return InlineButtonsRows(buttons)
}
