package conversation

const (
	TextAskPhone       = "Enter the phone number in international format (for example, +79123456789):"
	TextBadPhone       = "Invalid number format. Please enter the number in international format (for example, +79123456789):"
	TextCodeSent       = "A confirmation code has been sent to your number. Enter the code:"
	TextBadCode        = "The code must be 5 digits. Please enter the code again:"
	TextAccountAdded   = "Account connected!"
	TextCodeAccepted   = "Code received. Finishing the login..."
	TextAPIAccepted    = "API data accepted. Trying to connect the account..."
	TextBadAPITriple   = "Invalid data format. Please enter the data as: api_id:api_hash:phone_number"
	TextAskDestination = "Enter the group username (for example, @groupname) or the group ID (starts with -100):"
	TextBadDestination = "The group cannot be empty. Enter a username or an ID:"
	TextAskMessage     = "Enter the message text for the mailing:"
	TextMessageSaved   = "Message text saved!"
	TextIdleHint       = "Use /start to open the menu."
	TextCancelled      = "Cancelled."

	TextAPIInstructions = `To connect an account you need:
1. API ID and API HASH (get them at my.telegram.org)
2. The account phone number

Enter the data as:
api_id:api_hash:phone_number

Example:
123456:abcdef123456abcdef123456abcdef12:+79123456789`
)

// TextDestinationAdded confirms a saved destination.
func TextDestinationAdded(ident string) string {
	return "Group " + ident + " added to the mailing!"
}
