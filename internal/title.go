package internal

// TitleMaxLength is the number of characters kept from the first user message.
const TitleMaxLength = 50

// DefaultTitle is used for transcripts without a user message
const DefaultTitle = "New Conversation"

// DeriveTitle returns the session title for a transcript: the first
// user-authored message, cut to TitleMaxLength characters with "..." appended
// when it was longer.
func DeriveTitle(messages []Message) string {
	for _, msg := range messages {
		if msg.Sender != SenderUser {
			continue
		}
		return TruncateTitle(msg.Text)
	}
	return DefaultTitle
}

// TruncateTitle applies the title length rule to a single string
func TruncateTitle(text string) string {
	runes := []rune(text)
	if len(runes) <= TitleMaxLength {
		return text
	}
	return string(runes[:TitleMaxLength]) + "..."
}
