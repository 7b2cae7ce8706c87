package delivery

import "strings"

// Telegram reports API failures as descriptive strings, so outcome
// classification is by substring match on the error text.

// IsNotModified reports an edit that submitted identical content.
// Harmless: the message already shows the intended text.
func IsNotModified(err error) bool {
	return err != nil && strings.Contains(err.Error(), "message is not modified")
}

// IsTooLong reports a message that exceeded the length limit. The
// session reacts by shrinking its pagination capacity.
func IsTooLong(err error) bool {
	return err != nil && strings.Contains(err.Error(), "message is too long")
}

// IsParseError reports malformed markup. The session reacts by
// permanently degrading to plain text.
func IsParseError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "can't parse entities")
}
