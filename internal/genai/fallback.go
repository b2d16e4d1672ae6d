package genai

import (
	"strings"

	"github.com/BTreeMap/ScamPipe/internal/models"
)

// FallbackReply produces a template reply when the model backend is
// unavailable. Templates are keyed on persona, turn stage, and message
// content so the conversation still reads plausibly without generation.
func FallbackReply(personaName string, turnCount int, lastMessage string, action models.EngagementAction) string {
	if action == models.ActionDisengage {
		return "I have to go now, someone is at the door. Let me think about all this and I will message you later."
	}

	lower := strings.ToLower(lastMessage)
	switch {
	case turnCount <= 1:
		switch personaName {
		case "Elderly Person":
			return "Oh my! This is very confusing for me. Can you please explain again? Who are you calling from?"
		case "Young Professional":
			return "Hey, I'm a bit busy right now. Can you give me your name and company details? I'll verify and get back."
		case "Small Business Owner":
			return "What is this regarding? Is this about my business taxes? Please tell me clearly what is the issue."
		default:
			return "Oh wow, really? This sounds interesting! Can you tell me more? What's your name?"
		}
	case turnCount == 2:
		if strings.Contains(lower, "pay") || strings.Contains(lower, "send") || strings.Contains(lower, "transfer") {
			return "I want to help but I need to verify first. Can you share your official ID or bank details so I know this is legitimate?"
		}
		return "I understand. But how do I confirm you are genuine? Can you give me a number to call you back on?"
	default:
		for _, word := range []string{"bank", "account", "wallet", "wire", "deposit"} {
			if strings.Contains(lower, word) {
				return "OK I am ready to proceed. Just confirm the exact account number where I should send? And your full name for my records."
			}
		}
		return "I am getting confused with all this. Can you just tell me step by step what I need to do? And give me your supervisor's number also."
	}
}
