package companion

import (
	"fmt"
	"strings"
)

// Style selects the tone suffix appended to the persona.
type Style string

const (
	StyleFriendly Style = "friendly"
	StyleMentor   Style = "mentor"
	StyleCoach    Style = "coach"
)

const persona = `You are Serenity, a youth mental wellness companion.
- Be empathetic, clear, and human. Sound like a caring close friend; warm, a little playful, never clinical.
- Offer practical coping strategies (breathing, journaling, grounding, movement) when appropriate.
- Be transparent and honest; if you don't know something, say so and suggest next steps.
- Respect healthy boundaries; you are supportive, not a therapist.
- If you detect self-harm or harm to others, recommend contacting trusted adults and helplines immediately.`

var styleSuffix = map[Style]string{
	StyleMentor:   "Use a calm, wise mentor tone. Encourage reflection, use gentle metaphors, and highlight one key insight to remember today.",
	StyleCoach:    "Use an energetic coach tone. Be concise, action-oriented, give 1–2 small steps, and add gentle accountability for tomorrow.",
	StyleFriendly: "Use a warm, friendly peer tone. Validate feelings, add a tiny spark of humor if appropriate, and keep sentences short.",
}

// ParseStyle maps free text to a Style; anything unknown is friendly.
func ParseStyle(s string) Style {
	st := Style(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := styleSuffix[st]; ok {
		return st
	}
	return StyleFriendly
}

// Persona returns the system instruction for a style.
func Persona(style Style) string {
	return persona + "\n" + styleSuffix[ParseStyle(string(style))]
}

// Prompt is everything the reply call needs besides the model.
type Prompt struct {
	Text     string
	Style    Style
	MoodHint string
	// Facts and Schedule are pre-rendered context lines; empty lines are omitted.
	Facts    string
	Schedule string
}

// Context renders the optional user-facts and schedule block.
func (p Prompt) Context() string {
	var parts []string
	if p.Facts != "" {
		parts = append(parts, "[User facts] "+p.Facts)
	}
	if p.Schedule != "" {
		parts = append(parts, "[Weekly schedule] "+p.Schedule)
	}
	if len(parts) == 0 {
		return ""
	}
	return "\n" + strings.Join(parts, "\n") + "\n"
}

// Render builds the full single-turn prompt text.
func (p Prompt) Render() string {
	var moodLine string
	if p.MoodHint != "" {
		moodLine = "User mood context: " + p.MoodHint
	}
	return fmt.Sprintf("%s\n%s\nUser: %s%s\nReply in 2-4 short sentences.",
		Persona(p.Style), moodLine, p.Text, p.Context())
}

func reflectPrompt(line string) string {
	return "Summarize the user's mood in one supportive sentence. Input: " + line
}

func affirmationPrompt(hint string) string {
	return fmt.Sprintf("Create a short, specific daily affirmation for a youth based on: %s. Keep it under 12 words.", hint)
}

const audioPrompt = "Summarize the core message and emotion in one sentence:"

// cleanAffirmation strips whitespace and wrapping quotes the model tends to add.
func cleanAffirmation(s string) string {
	return strings.Trim(strings.TrimSpace(s), "\"“” ")
}
