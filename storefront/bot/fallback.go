package bot

import (
	tghelpers "github.com/m3rciful/paperbot/core/telegram/helpers"
	"github.com/m3rciful/paperbot/core/telegram/router"

	tele "gopkg.in/telebot.v4"
)

var _ router.Fallbacks = (*App)(nil)

// UnknownText answers free text that is neither a command nor a tab label.
func (a *App) UnknownText(c tele.Context) error {
	return tghelpers.SendText(c, "Use the buttons below or /help to browse the store.")
}

func (a *App) UnknownDocument(c tele.Context) error {
	return tghelpers.SendText(c, "Files are not accepted here.")
}

// UnknownCallback gives the single answer to presses on buttons this bot no
// longer serves; the callback route does not acknowledge them first.
func (a *App) UnknownCallback(c tele.Context) error {
	return c.Respond(&tele.CallbackResponse{Text: "This button has expired. Send /start to reload."})
}
