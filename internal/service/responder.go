package service

import (
	"context"
	"strings"
)

// Responder produces the assistant's reply to a user message
type Responder interface {
	Reply(ctx context.Context, message string) (string, error)
}

type keywordRule struct {
	keywords []string
	reply    string
}

// KeywordResponder answers with canned replies chosen by keyword.
// Rules are checked in order and match case-insensitive substrings.
type KeywordResponder struct {
	rules    []keywordRule
	fallback string
}

var _ Responder = (*KeywordResponder)(nil)

// NewKeywordResponder creates the default scripted responder
func NewKeywordResponder() *KeywordResponder {
	return &KeywordResponder{
		rules: []keywordRule{
			{
				keywords: []string{"hello", "hi"},
				reply:    "Hello there! How can I assist you today?",
			},
			{
				keywords: []string{"game", "games"},
				reply:    "I can recommend some great games based on your interests! Popular options include Minecraft, Fortnite, Among Us, and Roblox. What type of games do you enjoy?",
			},
			{
				keywords: []string{"productivity", "tools"},
				reply: "Here are some excellent productivity tools:\n" +
					"• Notion - All-in-one workspace\n" +
					"• Todoist - Task management\n" +
					"• Focus@Will - Productivity music\n" +
					"• Forest - Stay focused, be present\n\n" +
					"Would you like me to explain any of these in more detail?",
			},
			{
				keywords: []string{"youtube", "video"},
				reply:    "YouTube has many great channels for learning and entertainment. Some popular educational channels include Kurzgesagt, Vsauce, and TED-Ed. Would you like recommendations for specific topics?",
			},
		},
		fallback: "That's an interesting question! I'm still learning, but I'm here to help with browsing, finding information, and answering questions. What else would you like to know?",
	}
}

// Reply never fails
func (r *KeywordResponder) Reply(ctx context.Context, message string) (string, error) {
	lower := strings.ToLower(message)
	for _, rule := range r.rules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.reply, nil
			}
		}
	}
	return r.fallback, nil
}
