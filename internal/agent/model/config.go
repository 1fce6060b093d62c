package model

import "time"

// ================ Config ================
type ConversationConfig struct {
	// HistoryTurns caps how many prior messages are replayed to the agent.
	HistoryTurns     int    `envconfig:"CONVERSATION_HISTORY_TURNS" default:"20"`
	FallbackCategory string `envconfig:"CONVERSATION_FALLBACK_CATEGORY" default:"general"`
	Tools            struct {
		MaxCalls int `envconfig:"CONVERSATION_TOOL_MAX_CALLS" default:"6"`
	}
}

// ProviderConfig selects how the Gemini client authenticates.
type ProviderConfig struct {
	APIKey   string `envconfig:"GEMINI_API_KEY"`
	BaseURL  string `envconfig:"GEMINI_BASE_URL"`
	Backend  string `envconfig:"GEMINI_BACKEND" default:"gemini"`
	Project  string `envconfig:"GOOGLE_CLOUD_PROJECT"`
	Location string `envconfig:"GOOGLE_CLOUD_REGION" default:"us-central1"`
}

// Configured reports whether enough is set to build a client.
func (p ProviderConfig) Configured() bool {
	if p.Backend == "vertex" {
		return p.Project != ""
	}
	return p.APIKey != ""
}

type AgentModelConfig struct {
	Model          string        `envconfig:"AGENT_MODEL" default:"gemini-2.5-flash"`
	MaxTokens      int           `envconfig:"AGENT_MAX_TOKENS" default:"1024"`
	Temperature    float32       `envconfig:"AGENT_TEMPERATURE" default:"0.2"`
	ThinkingBudget int32         `envconfig:"AGENT_THINKING_BUDGET" default:"512"`
	Timeout        time.Duration `envconfig:"AGENT_TIMEOUT" default:"45s"`
}

type ClassifierModelConfig struct {
	Model       string        `envconfig:"CLASSIFIER_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens   int           `envconfig:"CLASSIFIER_MAX_TOKENS" default:"256"`
	Temperature float32       `envconfig:"CLASSIFIER_TEMPERATURE" default:"0"`
	Timeout     time.Duration `envconfig:"CLASSIFIER_TIMEOUT" default:"15s"`
}

type FollowUpModelConfig struct {
	Model       string        `envconfig:"FOLLOWUP_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens   int           `envconfig:"FOLLOWUP_MAX_TOKENS" default:"256"`
	Temperature float32       `envconfig:"FOLLOWUP_TEMPERATURE" default:"0.4"`
	Timeout     time.Duration `envconfig:"FOLLOWUP_TIMEOUT" default:"15s"`
	// HistoryTurns caps how many prior messages the follow-up prompt sees.
	HistoryTurns int `envconfig:"FOLLOWUP_HISTORY_TURNS" default:"6"`
}
