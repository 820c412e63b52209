package companion

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Risk string

const (
	RiskNone   Risk = "none"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

// Crisis is the classifier verdict for one message.
type Crisis struct {
	Risk   Risk   `json:"risk"`
	Reason string `json:"reason"`
}

const (
	HelplineMessage = "🚨 It sounds serious. Reach out to AASRA: 91-9820466726 or KIRAN: 1800-599-0019."
	NudgeMessage    = "You're going through a lot — consider talking to someone you trust ❤️"
)

// Notice is the safety line shown next to the reply, empty for no risk.
func (c Crisis) Notice() string {
	switch c.Risk {
	case RiskHigh:
		return HelplineMessage
	case RiskMedium:
		return NudgeMessage
	}
	return ""
}

func crisisPrompt(text string) string {
	return fmt.Sprintf("Classify the following text for crisis risk:\nText: \"\"\"%s\"\"\"\n"+
		"Respond as JSON with keys risk(one of: none, medium, high) and reason.\n"+
		"If user mentions self-harm/suicidal ideation -> high.\n"+
		"If severe hopelessness -> medium.\n"+
		"Otherwise none.\n", text)
}

// ParseCrisis decodes a classifier response. Unparseable output is treated as no risk.
func ParseCrisis(raw string) Crisis {
	raw = stripFence(raw)
	var c Crisis
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return Crisis{Risk: RiskNone, Reason: "Parser fallback"}
	}
	switch r := Risk(strings.ToLower(strings.TrimSpace(string(c.Risk)))); r {
	case RiskNone, RiskMedium, RiskHigh:
		c.Risk = r
	default:
		c.Risk = RiskNone
	}
	return c
}

// stripFence removes a ```json fence around model output.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
