package taskgen

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
)

const (
	minCriteria    = 3
	criteriaSpread = 3
	minSubtasks    = 5
	subtaskSpread  = 3
)

// Mock generates placeholder task text from the built-in lexicon after a
// simulated network delay. It is safe for concurrent use.
type Mock struct {
	describeLatency  LatencyProfile
	checklistLatency LatencyProfile
	sleep            Sleeper
	logger           *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

type Option func(*Mock)

// WithSeed makes selection and delays reproducible. Zero picks a random seed.
func WithSeed(seed uint64) Option {
	return func(m *Mock) {
		if seed != 0 {
			m.rng = rand.New(rand.NewPCG(seed, seed))
		}
	}
}

func WithSleeper(s Sleeper) Option {
	return func(m *Mock) {
		if s != nil {
			m.sleep = s
		}
	}
}

func WithLatency(describe, checklist LatencyProfile) Option {
	return func(m *Mock) {
		m.describeLatency = describe
		m.checklistLatency = checklist
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Mock) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func NewMock(opts ...Option) *Mock {
	m := &Mock{
		describeLatency:  DescriptionLatency,
		checklistLatency: ChecklistLatency,
		sleep:            Sleep,
		logger:           slog.Default(),
		rng:              rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(slog.String("component", "taskgen"))
	return m
}

// GenerateTaskDescription returns a user story and three to five distinct
// acceptance criteria for title. The only error is ctx's.
func (m *Mock) GenerateTaskDescription(ctx context.Context, title string) (TaskDescription, error) {
	m.logger.Info("generating task description", slog.String("title", title))

	if err := m.wait(ctx, m.describeLatency); err != nil {
		return TaskDescription{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	story := userStory(m.rng.IntN(len(userStoryTemplates)), title)
	criteria := m.shuffledPrefix(acceptanceCriteria(title), minCriteria, criteriaSpread)
	return TaskDescription{UserStory: story, AcceptanceCriteria: criteria}, nil
}

// GenerateSubtaskChecklist returns five or six subtasks drawn from the
// team's pool. The title is only logged; it never shapes the output.
func (m *Mock) GenerateSubtaskChecklist(ctx context.Context, title, team string) ([]string, error) {
	m.logger.Info("generating subtask checklist", slog.String("title", title), slog.String("team", team))

	if err := m.wait(ctx, m.checklistLatency); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shuffledPrefix(subtaskTemplates[ResolveTeam(team)], minSubtasks, subtaskSpread), nil
}

func (m *Mock) wait(ctx context.Context, profile LatencyProfile) error {
	m.mu.Lock()
	d := profile.draw(m.rng)
	m.mu.Unlock()
	return m.sleep(ctx, d)
}

// shuffledPrefix permutes pool and keeps the first base+IntN(spread) items.
// The length is capped at len(pool). Callers hold m.mu.
func (m *Mock) shuffledPrefix(pool []string, base, spread int) []string {
	perm := m.rng.Perm(len(pool))
	n := base + m.rng.IntN(spread)
	if n > len(pool) {
		n = len(pool)
	}
	out := make([]string, n)
	for i := range out {
		out[i] = pool[perm[i]]
	}
	return out
}
