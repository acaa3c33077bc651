package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/tidwall/gjson"
)

// LanguageService is the language model surface the assistant depends on.
// Every method degrades gracefully: when the service is disabled or the model
// output violates its contract, callers get a nil result and fall back to
// deterministic behavior.
type LanguageService interface {
	// Enabled reports whether a model backend is configured.
	Enabled() bool

	// PlanTurn interprets one user turn and returns a reply plus the backend
	// actions to execute. Returns nil when planning is unavailable or the
	// model output cannot be parsed.
	PlanTurn(ctx context.Context, input *PlanInput) (*TurnPlan, error)

	// ExtractTaskTitle pulls one actionable to-do title out of free text.
	// Returns "" when no to-do intent is present.
	ExtractTaskTitle(ctx context.Context, text string) (string, error)

	// RewriteReply makes a drafted reply sound natural while keeping its
	// intent. Best effort: the draft is returned unchanged on any failure.
	RewriteReply(ctx context.Context, draft string, userText string) string

	// TranscribeAudio converts recorded speech to text. Returns "" when the
	// audio is empty or transcription fails.
	TranscribeAudio(ctx context.Context, audio []byte, filename string) (string, error)

	// SynthesizeSpeech renders text to audio. Returns nil when unavailable.
	SynthesizeSpeech(ctx context.Context, text string) (*Speech, error)

	// BuildRenderSpec generates a UI render spec for one task detail page.
	BuildRenderSpec(ctx context.Context, task map[string]any, timezoneName string) (*RenderSpec, error)

	// RefineArtifact updates one task artifact from a user instruction.
	RefineArtifact(ctx context.Context, task map[string]any, instruction string, timezoneName string) (*ArtifactRefinement, error)
}

type openAILanguageService struct {
	client *openai.Client
	cfg    *Config
}

// NewLanguageService creates a LanguageService from config. A disabled config
// yields a service whose methods all return nil results.
func NewLanguageService(cfg *Config) LanguageService {
	s := &openAILanguageService{cfg: cfg}
	if !cfg.Enabled || cfg.APIKey == "" {
		return s
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	s.client = openai.NewClientWithConfig(clientConfig)
	return s
}

func (s *openAILanguageService) Enabled() bool {
	return s.client != nil
}

const planSystemPrompt = "You are Cue, a personal assistant that can drive backend task operations. " +
	"Interpret the user's intent and output STRICT JSON only. " +
	"Be concise and natural in reply text. " +
	"Use the provided timezone and current local time when interpreting dates/times. " +
	"When user gives a concrete date/time (for example 'Feb 19 noon'), prefer due_at_iso " +
	"instead of due_in_days, and due_at_iso must include timezone offset matching the provided timezone. " +
	"Do not invent large due_in_days values for explicit date/time requests. " +
	"For shopping/grocery/buying tasks, include metadata_json with structure like " +
	`{"kind":"shopping_list","shopping_list":{"items":[{"label":"Milk","done":false}]}}. ` +
	"If user asks to add/remove shopping items, use update_task_metadata action. " +
	"If no backend write is needed, return actions as []."

// actionSchema documents the planner's action vocabulary inside the prompt
// payload. Field values describe expected types, not defaults.
var actionSchema = []map[string]any{
	{
		"type":              "create_task",
		"title":             "string",
		"notes":             "string_optional",
		"metadata_json":     "object_optional",
		"metadata_html":     "string_optional",
		"due_at_iso":        "ISO8601 datetime string optional",
		"due_in_days":       "number_optional",
		"estimated_minutes": "number_optional",
		"urgency":           "1-5_optional",
		"importance":        "1-5_optional",
	},
	{
		"type":           "complete_task",
		"task_id":        "number_optional",
		"title_contains": "string_optional",
	},
	{
		"type":           "snooze_task",
		"task_id":        "number_optional",
		"title_contains": "string_optional",
		"hours":          "number_optional",
	},
	{
		"type":           "update_task_due",
		"task_id":        "number_optional",
		"title_contains": "string_optional",
		"due_at_iso":     "ISO8601 datetime string preferred",
		"due_in_days":    "number_optional",
	},
	{
		"type":           "update_task_metadata",
		"task_id":        "number_optional",
		"title_contains": "string_optional",
		"metadata_json":  "object_optional",
		"metadata_html":  "string_optional",
	},
}

func (s *openAILanguageService) PlanTurn(ctx context.Context, input *PlanInput) (*TurnPlan, error) {
	if !s.Enabled() {
		return nil, nil
	}

	timezoneName := input.Timezone
	if timezoneName == "" {
		timezoneName = "UTC"
	}
	loc, err := time.LoadLocation(timezoneName)
	if err != nil {
		loc = time.UTC
	}

	payload := map[string]any{
		"timezone":        timezoneName,
		"now_local":       time.Now().In(loc).Format(time.RFC3339),
		"now_utc":         time.Now().UTC().Format(time.RFC3339),
		"user_text":       input.UserText,
		"recent_messages": input.RecentMessages,
		"tasks":           input.Tasks,
		"action_schema":   actionSchema,
		"output_contract": map[string]any{
			"reply":   "string",
			"actions": "array of action objects",
		},
	}
	prompt, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal plan payload: %w", err)
	}

	slog.Info("plan request",
		"model", s.cfg.Model,
		"timezone", timezoneName,
		"message_count", len(input.RecentMessages),
		"task_count", len(input.Tasks))

	output, err := s.complete(ctx, planSystemPrompt, string(prompt))
	if err != nil {
		return nil, err
	}

	parsed, ok := extractJSONObject(output)
	if !ok {
		slog.Warn("plan output is not a JSON object", "output", truncateForLog(output, 1000))
		return nil, nil
	}
	plan, ok := decodeTurnPlan(parsed)
	if !ok {
		slog.Warn("plan output violates contract", "output", truncateForLog(output, 1000))
		return nil, nil
	}
	return plan, nil
}

func (s *openAILanguageService) ExtractTaskTitle(ctx context.Context, text string) (string, error) {
	if !s.Enabled() {
		return "", nil
	}

	output, err := s.complete(ctx,
		"Extract one actionable to-do title from user text if present. "+
			"Return only the task title, or NONE if no to-do intent.",
		text)
	if err != nil {
		return "", err
	}

	output = strings.TrimSpace(output)
	if output == "" || strings.EqualFold(output, "NONE") {
		return "", nil
	}
	if len(output) > 200 {
		output = output[:200]
	}
	return output, nil
}

func (s *openAILanguageService) RewriteReply(ctx context.Context, draft string, userText string) string {
	if !s.Enabled() {
		return draft
	}

	output, err := s.complete(ctx,
		"You are Cue, a concise personal assistant. "+
			"Keep the same action intent as the draft, but make language natural and human.",
		fmt.Sprintf("User message: %s\nDraft assistant reply: %s\nReturn only the improved final reply.", userText, draft))
	if err != nil {
		slog.Warn("reply rewrite failed, using deterministic reply", "error", err)
		return draft
	}

	if rewritten := strings.TrimSpace(output); rewritten != "" {
		return rewritten
	}
	return draft
}

func (s *openAILanguageService) TranscribeAudio(ctx context.Context, audio []byte, filename string) (string, error) {
	if !s.Enabled() || len(audio) == 0 {
		return "", nil
	}
	if filename == "" {
		filename = "voice.m4a"
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	resp, err := s.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    s.cfg.TranscribeModel,
		FilePath: filename,
		Reader:   bytes.NewReader(audio),
	})
	if err != nil {
		return "", fmt.Errorf("transcription request failed: %w", err)
	}

	return strings.TrimSpace(resp.Text), nil
}

func (s *openAILanguageService) SynthesizeSpeech(ctx context.Context, text string) (*Speech, error) {
	if !s.Enabled() {
		return nil, nil
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(s.cfg.SpeechModel),
		Input:          text,
		Voice:          openai.SpeechVoice(s.cfg.SpeechVoice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, fmt.Errorf("speech request failed: %w", err)
	}
	defer resp.Close()

	raw, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read speech response: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	return &Speech{
		AudioBase64: base64.StdEncoding.EncodeToString(raw),
		MimeType:    "audio/mpeg",
		Format:      "mp3",
	}, nil
}

func (s *openAILanguageService) BuildRenderSpec(ctx context.Context, task map[string]any, timezoneName string) (*RenderSpec, error) {
	if !s.Enabled() {
		return nil, nil
	}
	if timezoneName == "" {
		timezoneName = "UTC"
	}

	payload := map[string]any{
		"timezone": timezoneName,
		"task":     task,
		"output_contract": map[string]any{
			"title": "string",
			"blocks": []map[string]any{
				{
					"type":    "text | key_value | list | checklist",
					"label":   "string_optional",
					"content": "string_optional",
					"key":     "string_optional",
					"value":   "string_optional",
					"items":   "string[] or [{label:string,done:boolean}]",
				},
			},
		},
	}
	prompt, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal render spec payload: %w", err)
	}

	output, err := s.complete(ctx,
		"You generate UI render specs for task detail pages. "+
			"Return STRICT JSON only with title + blocks. "+
			"Blocks must be compact and practical for mobile rendering. "+
			"Prefer checklist for actionable item collections, list for plain bullets.",
		string(prompt))
	if err != nil {
		return nil, err
	}

	parsed, ok := extractJSONObject(output)
	if !ok {
		slog.Warn("render spec output is not a JSON object", "output", truncateForLog(output, 1000))
		return nil, nil
	}

	blocksValue := parsed.Get("blocks")
	if !blocksValue.IsArray() {
		return nil, nil
	}

	titleValue := parsed.Get("title")
	title := titleValue.String()
	if titleValue.Type != gjson.String || title == "" {
		if fallback, ok := task["title"].(string); ok && fallback != "" {
			title = fallback
		} else {
			title = "Task"
		}
	}
	if len(title) > 200 {
		title = title[:200]
	}

	blocks := []map[string]any{}
	for _, item := range blocksValue.Array() {
		if block := jsonObjectToMap(item); block != nil {
			blocks = append(blocks, block)
		}
		if len(blocks) >= 20 {
			break
		}
	}

	return &RenderSpec{Title: title, Blocks: blocks}, nil
}

func (s *openAILanguageService) RefineArtifact(ctx context.Context, task map[string]any, instruction string, timezoneName string) (*ArtifactRefinement, error) {
	if !s.Enabled() {
		return nil, nil
	}
	if timezoneName == "" {
		timezoneName = "UTC"
	}

	payload := map[string]any{
		"timezone":    timezoneName,
		"task":        task,
		"instruction": instruction,
		"output_contract": map[string]any{
			"reply": "string",
			"task_patch": map[string]any{
				"notes":         "string_optional",
				"metadata_json": "object_optional",
				"metadata_html": "string_optional",
				"due_at_iso":    "ISO8601_optional",
			},
		},
	}
	prompt, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal refine payload: %w", err)
	}

	output, err := s.complete(ctx,
		"You update one existing task artifact based on user instruction. "+
			"Return STRICT JSON only with reply + task_patch. "+
			"Patch only relevant fields and preserve existing structure where possible.",
		string(prompt))
	if err != nil {
		return nil, err
	}

	parsed, ok := extractJSONObject(output)
	if !ok {
		slog.Warn("refine output is not a JSON object", "output", truncateForLog(output, 1000))
		return nil, nil
	}

	reply := parsed.Get("reply")
	patchValue := parsed.Get("task_patch")
	if reply.Type != gjson.String || !patchValue.IsObject() {
		return nil, nil
	}

	refinement := &ArtifactRefinement{Reply: strings.TrimSpace(reply.String())}
	if v := patchValue.Get("notes"); v.Type == gjson.String {
		notes := v.String()
		refinement.Patch.Notes = &notes
	}
	if v := patchValue.Get("metadata_html"); v.Type == gjson.String {
		html := v.String()
		refinement.Patch.MetadataHTML = &html
	}
	if v := patchValue.Get("due_at_iso"); v.Type == gjson.String {
		due := strings.TrimSpace(v.String())
		if due != "" {
			refinement.Patch.DueAtISO = &due
		}
	}
	refinement.Patch.MetadataJSON = jsonObjectToMap(patchValue.Get("metadata_json"))

	return refinement, nil
}

// complete runs one chat completion under the configured timeout and returns
// the raw assistant text.
func (s *openAILanguageService) complete(ctx context.Context, systemPrompt string, userContent string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userContent},
		},
	})
	latency := time.Since(start)

	if err != nil {
		slog.Error("chat completion failed",
			"error", err,
			"latency_ms", latency.Milliseconds())
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response from model")
	}

	slog.Debug("chat completion done",
		"latency_ms", latency.Milliseconds(),
		"tokens", resp.Usage.TotalTokens)

	return resp.Choices[0].Message.Content, nil
}

// truncateForLog truncates a string for logging purposes.
func truncateForLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
