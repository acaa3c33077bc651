package assistant

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cueapp/cue/plugin/ai"
	"github.com/cueapp/cue/store"
)

// mockStore is an in-memory Store (and preference.Store) for tests.
type mockStore struct {
	clock int64

	tasks       map[int32]*store.Task
	activities  []*store.TaskActivity
	sessions    map[int32]*store.ConversationSession
	messages    []*store.ConversationMessage
	decisions   []*store.DecisionLog
	nudges      []*store.Nudge
	preferences map[int32]*store.UserPreferences

	nextTaskID    int32
	nextSessionID int32
	nextMessageID int32
}

func newMockStore() *mockStore {
	return &mockStore{
		tasks:       map[int32]*store.Task{},
		sessions:    map[int32]*store.ConversationSession{},
		preferences: map[int32]*store.UserPreferences{},
	}
}

func (m *mockStore) tick() int64 {
	m.clock++
	return m.clock
}

func (m *mockStore) CreateTask(_ context.Context, create *store.Task) (*store.Task, error) {
	m.nextTaskID++
	create.ID = m.nextTaskID
	create.CreatedTs = m.tick()
	create.UpdatedTs = create.CreatedTs
	m.tasks[create.ID] = create
	return create, nil
}

func (m *mockStore) ListTasks(_ context.Context, find *store.FindTask) ([]*store.Task, error) {
	list := []*store.Task{}
	ids := make([]int32, 0, len(m.tasks))
	for id := range m.tasks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		task := m.tasks[id]
		if find.ID != nil && task.ID != *find.ID {
			continue
		}
		if find.OwnerID != nil && task.OwnerID != *find.OwnerID {
			continue
		}
		if find.Status != nil && task.Status != *find.Status {
			continue
		}
		if find.TitleContains != nil &&
			!strings.Contains(strings.ToLower(task.Title), strings.ToLower(*find.TitleContains)) {
			continue
		}
		list = append(list, task)
	}

	if find.OrderByUpdatedTsDesc {
		sort.SliceStable(list, func(i, j int) bool { return list[i].UpdatedTs > list[j].UpdatedTs })
	}
	if find.Limit != nil && len(list) > *find.Limit {
		list = list[:*find.Limit]
	}
	return list, nil
}

func (m *mockStore) GetTask(ctx context.Context, find *store.FindTask) (*store.Task, error) {
	list, err := m.ListTasks(ctx, find)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return list[0], nil
}

func (m *mockStore) UpdateTask(_ context.Context, update *store.UpdateTask) (*store.Task, error) {
	task, ok := m.tasks[update.ID]
	if !ok {
		return nil, fmt.Errorf("task %d not found", update.ID)
	}
	if update.Title != nil {
		task.Title = *update.Title
	}
	if update.Notes != nil {
		task.Notes = *update.Notes
	}
	if update.Metadata != nil {
		task.Metadata = update.Metadata
	}
	if update.MetadataHTML != nil {
		task.MetadataHTML = *update.MetadataHTML
	}
	if update.DueTs != nil {
		task.DueTs = update.DueTs
	}
	if update.Status != nil {
		task.Status = *update.Status
	}
	if update.FollowUpState != nil {
		task.FollowUpState = *update.FollowUpState
	}
	if update.SnoozedUntilTs != nil {
		task.SnoozedUntilTs = update.SnoozedUntilTs
	}
	if update.LastNudgedTs != nil {
		task.LastNudgedTs = update.LastNudgedTs
	}
	task.UpdatedTs = m.tick()
	return task, nil
}

func (m *mockStore) CreateTaskActivity(_ context.Context, create *store.TaskActivity) (*store.TaskActivity, error) {
	create.ID = int32(len(m.activities) + 1)
	create.CreatedTs = m.tick()
	m.activities = append(m.activities, create)
	return create, nil
}

func (m *mockStore) CreateConversationSession(_ context.Context, create *store.ConversationSession) (*store.ConversationSession, error) {
	m.nextSessionID++
	create.ID = m.nextSessionID
	create.CreatedTs = m.tick()
	create.UpdatedTs = create.CreatedTs
	m.sessions[create.ID] = create
	return create, nil
}

func (m *mockStore) GetConversationSession(_ context.Context, find *store.FindConversationSession) (*store.ConversationSession, error) {
	for _, session := range m.sessions {
		if find.ID != nil && session.ID != *find.ID {
			continue
		}
		if find.UID != nil && session.UID != *find.UID {
			continue
		}
		if find.OwnerID != nil && session.OwnerID != *find.OwnerID {
			continue
		}
		return session, nil
	}
	return nil, nil
}

func (m *mockStore) TouchConversationSession(_ context.Context, id int32) error {
	if session, ok := m.sessions[id]; ok {
		session.UpdatedTs = m.tick()
	}
	return nil
}

func (m *mockStore) CreateConversationMessage(_ context.Context, create *store.ConversationMessage) (*store.ConversationMessage, error) {
	m.nextMessageID++
	create.ID = m.nextMessageID
	create.CreatedTs = m.tick()
	m.messages = append(m.messages, create)
	return create, nil
}

func (m *mockStore) ListConversationMessages(_ context.Context, find *store.FindConversationMessage) ([]*store.ConversationMessage, error) {
	list := []*store.ConversationMessage{}
	for _, message := range m.messages {
		if find.SessionID != nil && message.SessionID != *find.SessionID {
			continue
		}
		list = append(list, message)
	}
	if find.Limit != nil && len(list) > *find.Limit {
		list = list[len(list)-*find.Limit:]
	}
	return list, nil
}

func (m *mockStore) CreateDecisionLog(_ context.Context, create *store.DecisionLog) (*store.DecisionLog, error) {
	create.ID = int32(len(m.decisions) + 1)
	create.CreatedTs = m.tick()
	m.decisions = append(m.decisions, create)
	return create, nil
}

func (m *mockStore) CreateNudge(_ context.Context, create *store.Nudge) (*store.Nudge, error) {
	create.ID = int32(len(m.nudges) + 1)
	create.CreatedTs = m.tick()
	m.nudges = append(m.nudges, create)
	return create, nil
}

func (m *mockStore) GetUserPreferences(_ context.Context, find *store.FindUserPreferences) (*store.UserPreferences, error) {
	row, ok := m.preferences[*find.UserID]
	if !ok {
		return nil, nil
	}
	return row, nil
}

func (m *mockStore) UpsertUserPreferences(_ context.Context, upsert *store.UpsertUserPreferences) (*store.UserPreferences, error) {
	row := &store.UserPreferences{UserID: upsert.UserID, Preferences: upsert.Preferences}
	m.preferences[upsert.UserID] = row
	return row, nil
}

func (m *mockStore) lastActivity() *store.TaskActivity {
	if len(m.activities) == 0 {
		return nil
	}
	return m.activities[len(m.activities)-1]
}

func (m *mockStore) activityActions() []string {
	actions := []string{}
	for _, activity := range m.activities {
		actions = append(actions, activity.Action)
	}
	return actions
}

// mockLanguage is a scriptable LanguageService for tests.
type mockLanguage struct {
	enabled bool

	plan    *ai.TurnPlan
	planErr error

	extractedTitle string
	transcript     string
	speech         *ai.Speech
	renderSpec     *ai.RenderSpec
	refinement     *ai.ArtifactRefinement

	rewritePrefix string

	planCalls       int
	renderSpecCalls int
	rewriteCalls    int
	lastPlanInput   *ai.PlanInput
}

func (m *mockLanguage) Enabled() bool { return m.enabled }

func (m *mockLanguage) PlanTurn(_ context.Context, input *ai.PlanInput) (*ai.TurnPlan, error) {
	m.planCalls++
	m.lastPlanInput = input
	return m.plan, m.planErr
}

func (m *mockLanguage) ExtractTaskTitle(_ context.Context, _ string) (string, error) {
	return m.extractedTitle, nil
}

func (m *mockLanguage) RewriteReply(_ context.Context, draft string, _ string) string {
	m.rewriteCalls++
	if m.rewritePrefix != "" {
		return m.rewritePrefix + draft
	}
	return draft
}

func (m *mockLanguage) TranscribeAudio(_ context.Context, _ []byte, _ string) (string, error) {
	return m.transcript, nil
}

func (m *mockLanguage) SynthesizeSpeech(_ context.Context, _ string) (*ai.Speech, error) {
	return m.speech, nil
}

func (m *mockLanguage) BuildRenderSpec(_ context.Context, _ map[string]any, _ string) (*ai.RenderSpec, error) {
	m.renderSpecCalls++
	return m.renderSpec, nil
}

func (m *mockLanguage) RefineArtifact(_ context.Context, _ map[string]any, _ string, _ string) (*ai.ArtifactRefinement, error) {
	return m.refinement, nil
}
