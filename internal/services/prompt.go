package services

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
)

const baseSystemPrompt = "You are a helpful AI assistant. Answer clearly and concisely, " +
	"and use the conversation history for context."

// buildSystemPrompt prepends the user's personalization signals, when a
// profile exists, to the base assistant prompt. A missing or empty profile
// falls back to the base prompt alone.
func (o *MessageOrchestrator) buildSystemPrompt(userID uuid.UUID) string {
	if o.profiles == nil {
		return baseSystemPrompt
	}
	profile, err := o.profiles.GetProfile(userID)
	if err != nil || profile == nil {
		return baseSystemPrompt
	}

	var sections []string
	if s := joinList("The user is interested in", profile.Interests); s != "" {
		sections = append(sections, s)
	}
	if s := joinList("The user has experience with", profile.Skills); s != "" {
		sections = append(sections, s)
	}
	if s := joinList("The user is working towards", profile.Goals); s != "" {
		sections = append(sections, s)
	}
	if len(sections) == 0 {
		return baseSystemPrompt
	}

	return baseSystemPrompt + "\n\nAbout the user:\n" + strings.Join(sections, "\n")
}

func joinList(prefix string, raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	var items []string
	if err := json.Unmarshal(raw, &items); err != nil || len(items) == 0 {
		return ""
	}
	return prefix + ": " + strings.Join(items, ", ") + "."
}
