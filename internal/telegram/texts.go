package telegram

import tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

// UI texts in English
const (
	startText = "🔮 Welcome to the Oracle Lounge.\n\n" +
		"I'm the administrator here. Tell me a little about yourself with /profile <age> <m|f|other> " +
		"and I'll drop by with a message now and then.\n\n" +
		"/status shows your settings, /stop pauses my messages, /resume brings them back."
	profileHelp     = "Send it as: /profile 27 f (gender is m, f or other)"
	profileSaved    = "Thanks, got it ✨"
	stoppedText     = "Okay, I won't write first until you say /resume."
	resumedText     = "Yay, I'll check in on you from time to time 🤗"
	askQuiet        = "Enter quiet hours as HH:MM-HH:MM (e.g., 23:00-09:00)"
	askPostpone     = "How long should I hold off after you write to me? e.g.: 6h, 12h, 24"
	invalidQuiet    = "Invalid format. Example: 23:00-09:00"
	invalidPostpone = "Invalid duration. Use 1h to 72h, e.g.: 6h, 12h, 24"
	genericError    = "Something went wrong on my side. Please try again later."
	statusTitle     = "🧾 Your current settings:"
	statusFmt       = "• Messages from me: %s\n• Per day: up to %d\n• Quiet hours: %s–%s\n• Hold off after you write: %s\n• Subscription: %s\n• Free answers left: %d\n• Check-in mode: %s\n• Next message from me: %s\n"
)

// mainMenuKeyboard builds a reply keyboard with a single toggle button:
// if proactive messages are allowed -> "/stop", else -> "/resume".
func mainMenuKeyboard(allowed bool) tgbotapi.ReplyKeyboardMarkup {
	toggle := "/stop"
	if !allowed {
		toggle = "/resume"
	}
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("/status"),
			tgbotapi.NewKeyboardButton("/quiet"),
			tgbotapi.NewKeyboardButton("/postpone"),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(toggle),
		),
	)
}
