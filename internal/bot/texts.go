package bot

import (
	"errors"
	"fmt"

	"postbot/internal/broadcast"
)

const (
	textMainTitle    = "Posting to Chats"
	textMainHint     = "Attach accounts, pick groups, set a message and start the mailing."
	textAccounts     = "Account connection menu"
	textNoAccounts   = "No connected accounts"
	textAddAccount   = "Choose how to connect the account:"
	textAcctPick     = "Tap an account to disconnect it:"
	textAcctRemoved  = "Account disconnected."
	textAcctBusy     = "Stop the mailing before disconnecting accounts."
	textConfigure    = "Bot settings menu"
	textDestinations = "Group mailing settings"
	textNoGroups     = "No groups added"
	textRemovePick   = "Tap a group to remove it from the mailing:"
	textGroupRemoved = "Group removed."
	textStarting     = "Starting the mailing..."
	textNotRunning   = "No mailing is running."
	textStopping     = "Stopping the mailing after the current group."
	textError        = "Something went wrong. Please try again."

	textDescription = `This bot posts your message to Telegram groups from your own accounts.

1. Connect one or more accounts.
2. Add the groups to post to.
3. Set the message text.
4. Start the mailing.`

	textSupport = "Support: contact the bot owner."
)

// preconditionText maps dispatcher refusals to user-facing text.
func preconditionText(err error) (string, bool) {
	switch {
	case errors.Is(err, broadcast.ErrNoAccounts):
		return "No connected accounts!", true
	case errors.Is(err, broadcast.ErrNoDestinations):
		return "No groups added!", true
	case errors.Is(err, broadcast.ErrNoMessage):
		return "No message set for the mailing!", true
	case errors.Is(err, broadcast.ErrAlreadyRunning):
		return "A mailing is already running.", true
	}
	return "", false
}

func summaryText(res broadcast.Result) string {
	s := res.Summary
	switch {
	case s.Cancelled:
		return fmt.Sprintf("Mailing cancelled. Sent: %d, failed: %d.", s.Sent, s.Failed)
	case res.Err != nil:
		return "Mailing stopped with an error: " + res.Err.Error()
	}
	text := fmt.Sprintf("Mailing finished. Sent: %d, failed: %d.", s.Sent, s.Failed)
	if s.Skipped > 0 {
		text += fmt.Sprintf("\nAccounts without a session: %d.", s.Skipped)
	}
	if s.AccountErrors > 0 {
		text += fmt.Sprintf("\nAccounts that could not connect: %d.", s.AccountErrors)
	}
	return text
}
