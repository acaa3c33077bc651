package assistant

import (
	"context"
	"log/slog"
	"time"

	"github.com/cueapp/cue/plugin/ai"
	"github.com/cueapp/cue/store"
)

// RefreshRenderSpec regenerates the render spec stored under the task's
// metadata and persists it. Runs synchronously after every task mutation so
// detail pages never show stale layout. Failures fall back to a deterministic
// spec; this method never fails the mutation that triggered it.
func (s *Service) RefreshRenderSpec(ctx context.Context, task *store.Task, timezoneName string, useLLM bool) *store.Task {
	var spec *ai.RenderSpec
	if useLLM && s.language.Enabled() {
		generated, err := s.language.BuildRenderSpec(ctx, renderPayload(task), timezoneName)
		if err != nil {
			slog.Warn("render spec generation failed, using fallback",
				"task_id", task.ID,
				"error", err)
		}
		spec = generated
	}
	if spec == nil {
		spec = fallbackRenderSpec(task)
	}

	metadata := task.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	blocks := make([]any, 0, len(spec.Blocks))
	for _, block := range spec.Blocks {
		blocks = append(blocks, block)
	}
	metadata[store.RenderSpecKey] = map[string]any{
		"title":  spec.Title,
		"blocks": blocks,
	}

	updated, err := s.store.UpdateTask(ctx, &store.UpdateTask{ID: task.ID, Metadata: metadata})
	if err != nil {
		slog.Error("failed to persist render spec",
			"task_id", task.ID,
			"error", err)
		return task
	}
	return updated
}

// renderPayload is the compact task view handed to the render spec generator.
func renderPayload(task *store.Task) map[string]any {
	return map[string]any{
		"id":            task.ID,
		"title":         task.Title,
		"notes":         task.Notes,
		"status":        string(task.Status),
		"due_at":        taskDueISO(task),
		"metadata_json": task.Metadata,
		"updated_at":    time.Unix(task.UpdatedTs, 0).UTC().Format(time.RFC3339),
	}
}

// fallbackRenderSpec builds the deterministic spec used whenever generation
// is disabled or fails. A status row is always present.
func fallbackRenderSpec(task *store.Task) *ai.RenderSpec {
	blocks := []map[string]any{}
	if task.Notes != "" {
		blocks = append(blocks, map[string]any{"type": "text", "label": "Notes", "content": task.Notes})
	}
	if due := taskDueISO(task); due != nil {
		blocks = append(blocks, map[string]any{"type": "key_value", "key": "Due", "value": *due})
	}
	blocks = append(blocks, map[string]any{"type": "key_value", "key": "Status", "value": string(task.Status)})

	return &ai.RenderSpec{
		Title:  task.Title,
		Blocks: blocks,
	}
}

func taskDueISO(task *store.Task) *string {
	if task.DueTs == nil {
		return nil
	}
	iso := time.Unix(*task.DueTs, 0).UTC().Format(time.RFC3339)
	return &iso
}
