package services

import (
	"context"
	"encoding/json"
	"strings"

	"persona_chat_go_backend/internal/llm"
	"persona_chat_go_backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// Messages shorter than this carry no personalization signal worth an
	// extra provider call.
	extractMinMessageLength = 20
	extractTemperature      = 0.1
	extractMaxTokens        = 1000
	extractListCap          = 20
	profileListCap          = 50
)

const extractionSystemPrompt = `You extract durable facts about a user from a single chat message.
Respond with JSON only, no prose, in exactly this shape:
{"interests": [], "skills": [], "goals": []}
Each entry is a short lowercase phrase. Include only facts stated or strongly
implied by the message; when unsure, leave the list empty.`

// ProfileExtractor mines personalization signals out of user messages after a
// completion finishes. It runs off the request path on a cheap model, and any
// failure is logged and dropped; extraction never affects the chat itself.
type ProfileExtractor struct {
	provider llm.Provider
	modelID  string
	profiles ProfileStore
	log      zerolog.Logger
}

func NewProfileExtractor(provider llm.Provider, modelID string, profiles ProfileStore, log zerolog.Logger) *ProfileExtractor {
	return &ProfileExtractor{
		provider: provider,
		modelID:  modelID,
		profiles: profiles,
		log:      log,
	}
}

type extractedProfile struct {
	Interests []string `json:"interests"`
	Skills    []string `json:"skills"`
	Goals     []string `json:"goals"`
}

// ExtractAndMerge runs one extraction pass over a user message and folds the
// result into the stored profile. Short messages are skipped without a
// provider call.
func (e *ProfileExtractor) ExtractAndMerge(ctx context.Context, userID uuid.UUID, userMessage string) {
	if len(strings.TrimSpace(userMessage)) < extractMinMessageLength {
		return
	}

	resp, err := e.provider.Complete(ctx, llm.Request{
		Model: e.modelID,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: extractionSystemPrompt},
			{Role: llm.RoleUser, Content: userMessage},
		},
		MaxTokens:   extractMaxTokens,
		Temperature: extractTemperature,
	})
	if err != nil {
		e.log.Warn().Err(err).Str("user_id", userID.String()).Msg("profile extraction call failed")
		return
	}

	var extracted extractedProfile
	if err := json.Unmarshal([]byte(stripCodeFences(resp.Content)), &extracted); err != nil {
		e.log.Warn().Err(err).Str("user_id", userID.String()).Msg("profile extraction returned unparseable output")
		return
	}

	interests := sanitizeList(extracted.Interests)
	skills := sanitizeList(extracted.Skills)
	goals := sanitizeList(extracted.Goals)
	if len(interests) == 0 && len(skills) == 0 && len(goals) == 0 {
		return
	}

	profile, err := e.profiles.GetProfile(userID)
	if err != nil || profile == nil {
		profile = &models.UserProfile{UserID: userID}
	}

	profile.Interests = mergeList(profile.Interests, interests)
	profile.Skills = mergeList(profile.Skills, skills)
	profile.Goals = mergeList(profile.Goals, goals)

	if err := e.profiles.UpsertProfile(profile); err != nil {
		e.log.Warn().Err(err).Str("user_id", userID.String()).Msg("failed to save extracted profile")
		return
	}
	e.log.Debug().Str("user_id", userID.String()).Msg("profile updated from message")
}

// stripCodeFences removes a surrounding ```json ... ``` block, which models
// emit even when told to answer with bare JSON.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func sanitizeList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
		if len(out) == extractListCap {
			break
		}
	}
	return out
}

// mergeList unions the stored JSON list with freshly extracted entries,
// case-insensitively, keeping stored entries first and capping the result.
func mergeList(stored []byte, fresh []string) []byte {
	var existing []string
	if len(stored) > 0 {
		_ = json.Unmarshal(stored, &existing)
	}

	seen := make(map[string]struct{}, len(existing)+len(fresh))
	merged := make([]string, 0, len(existing)+len(fresh))
	for _, item := range append(existing, fresh...) {
		key := strings.ToLower(strings.TrimSpace(item))
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		merged = append(merged, item)
		if len(merged) == profileListCap {
			break
		}
	}

	raw, err := json.Marshal(merged)
	if err != nil {
		return stored
	}
	return raw
}
