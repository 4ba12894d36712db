package ai

import "fmt"

const systemPrompt = "You are an email extraction expert. Extract email addresses from text, " +
	"even if they are obfuscated or formatted unusually. Look for patterns like " +
	"'email at domain dot com', spaces inside addresses, or other ways people hide emails. " +
	`Respond with JSON in this format: {"email": "found_email@domain.com" or null, ` +
	`"confidence": number_between_0_and_1}`

func userPrompt(text string) string {
	return fmt.Sprintf("Extract any email addresses from this text: %s", text)
}
