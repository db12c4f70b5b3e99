package extract

import "strings"

// Role tags a prompt message.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

// Message is one role-tagged prompt message.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

var systemInstruction = strings.Join([]string{
	"You extract expenses from user text.",
	"Respond ONLY with a raw JSON array of objects:",
	`{"amount":number,"currency":string,"category":string,"date":"YYYY-MM-DD","time"?:string,"note"?:string}`,
	"amount is a JSON number. date is required and uses the YYYY-MM-DD format. time and note are optional strings.",
	`Do not add an "id" field.`,
	"NO markdown, NO code fences, NO commentary.",
}, "\n")

// SystemInstruction returns the fixed instruction sent ahead of every request.
func SystemInstruction() string {
	return systemInstruction
}

// BuildPrompt returns the system instruction followed by the user's text,
// passed through verbatim.
func BuildPrompt(text string) []Message {
	return []Message{
		{Role: RoleSystem, Content: systemInstruction},
		{Role: RoleUser, Content: text},
	}
}
