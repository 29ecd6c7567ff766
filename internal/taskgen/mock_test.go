package taskgen

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func newTestMock(t *testing.T, seed uint64, rec *recordingSleeper) *Mock {
	t.Helper()
	if rec == nil {
		rec = &recordingSleeper{}
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewMock(WithSeed(seed), WithSleeper(rec.sleep), WithLogger(logger))
}

func TestTaskDescriptionShape(t *testing.T) {
	m := newTestMock(t, 42, nil)
	ctx := context.Background()

	for i := 0; i < 200; i++ {
		desc, err := m.GenerateTaskDescription(ctx, "Login page")
		require.NoError(t, err)
		require.Contains(t, desc.UserStory, "Login page")
		require.GreaterOrEqual(t, len(desc.AcceptanceCriteria), 3)
		require.LessOrEqual(t, len(desc.AcceptanceCriteria), 5)

		seen := make(map[string]struct{}, len(desc.AcceptanceCriteria))
		for _, c := range desc.AcceptanceCriteria {
			require.Contains(t, c, "Login page")
			_, dup := seen[c]
			require.False(t, dup, "duplicate criterion %q", c)
			seen[c] = struct{}{}
		}
	}
}

func TestTaskDescriptionCoversAllTemplatesAndLengths(t *testing.T) {
	m := newTestMock(t, 7, nil)
	ctx := context.Background()
	title := "Export to CSV"

	stories := make(map[string]int)
	lengths := make(map[int]int)
	for i := 0; i < 2000; i++ {
		desc, err := m.GenerateTaskDescription(ctx, title)
		require.NoError(t, err)
		stories[desc.UserStory]++
		lengths[len(desc.AcceptanceCriteria)]++
	}

	for i := range userStoryTemplates {
		require.Positive(t, stories[userStory(i, title)], "template %d never chosen", i)
	}
	require.Len(t, stories, len(userStoryTemplates))
	for _, n := range []int{3, 4, 5} {
		require.Positive(t, lengths[n], "criteria length %d never produced", n)
	}
	require.Len(t, lengths, 3)
}

func TestTaskDescriptionEmptyTitle(t *testing.T) {
	m := newTestMock(t, 1, nil)
	desc, err := m.GenerateTaskDescription(context.Background(), "")
	require.NoError(t, err)
	require.NotEmpty(t, desc.UserStory)
	require.NotEmpty(t, desc.AcceptanceCriteria)
}

func TestChecklistDrawsFromTeamPool(t *testing.T) {
	m := newTestMock(t, 99, nil)
	ctx := context.Background()
	pool := SubtaskPool("Frontend")
	require.Len(t, pool, 6)

	lengths := make(map[int]int)
	for i := 0; i < 500; i++ {
		items, err := m.GenerateSubtaskChecklist(ctx, "Dashboard", "Frontend")
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(items), 5)
		require.LessOrEqual(t, len(items), 6)
		require.Subset(t, pool, items)
		lengths[len(items)]++
	}
	require.Positive(t, lengths[5])
	require.Positive(t, lengths[6])
}

func TestChecklistUnknownTeamFallsBack(t *testing.T) {
	m := newTestMock(t, 3, nil)
	general := SubtaskPool(FallbackTeam)

	for _, team := range []string{"UnknownTeamXYZ", "frontend", ""} {
		items, err := m.GenerateSubtaskChecklist(context.Background(), "Anything", team)
		require.NoError(t, err)
		require.Subset(t, general, items, "team %q", team)
	}
	require.Equal(t, FallbackTeam, ResolveTeam("UnknownTeamXYZ"))
	require.Equal(t, general, SubtaskPool("UnknownTeamXYZ"))
}

func TestChecklistIgnoresTitle(t *testing.T) {
	a := newTestMock(t, 1234, nil)
	b := newTestMock(t, 1234, nil)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		left, err := a.GenerateSubtaskChecklist(ctx, "first title", "Backend")
		require.NoError(t, err)
		right, err := b.GenerateSubtaskChecklist(ctx, "a completely different title", "Backend")
		require.NoError(t, err)
		require.Equal(t, left, right)
	}
}

func TestDelaysStayWithinProfiles(t *testing.T) {
	rec := &recordingSleeper{}
	m := newTestMock(t, 5, rec)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		_, err := m.GenerateTaskDescription(ctx, "x")
		require.NoError(t, err)
	}
	require.Len(t, rec.delays, 100)
	for _, d := range rec.delays {
		require.GreaterOrEqual(t, d, 1000*time.Millisecond)
		require.Less(t, d, DescriptionLatency.Max())
	}

	rec.delays = nil
	for i := 0; i < 100; i++ {
		_, err := m.GenerateSubtaskChecklist(ctx, "x", "QA")
		require.NoError(t, err)
	}
	require.Len(t, rec.delays, 100)
	for _, d := range rec.delays {
		require.GreaterOrEqual(t, d, 800*time.Millisecond)
		require.Less(t, d, ChecklistLatency.Max())
	}
}

func TestRealSleepHonoursBase(t *testing.T) {
	profile := LatencyProfile{Base: 30 * time.Millisecond, Jitter: 10 * time.Millisecond}
	m := NewMock(WithSeed(11), WithLatency(profile, profile), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	start := time.Now()
	_, err := m.GenerateTaskDescription(context.Background(), "timed")
	require.NoError(t, err)
	require.GreaterOrEqual(t, time.Since(start), profile.Base)

	start = time.Now()
	_, err = m.GenerateSubtaskChecklist(context.Background(), "timed", "Design")
	require.NoError(t, err)
	require.GreaterOrEqual(t, time.Since(start), profile.Base)
}

func TestCancelledContextReturnsNoResult(t *testing.T) {
	m := NewMock(WithSeed(2), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	desc, err := m.GenerateTaskDescription(ctx, "slow")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Empty(t, desc.UserStory)

	items, err := m.GenerateSubtaskChecklist(ctx, "slow", "Backend")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Nil(t, items)
}

func TestResultsAreIndependentCopies(t *testing.T) {
	m := newTestMock(t, 8, nil)
	ctx := context.Background()

	items, err := m.GenerateSubtaskChecklist(ctx, "t", "DevOps")
	require.NoError(t, err)
	for i := range items {
		items[i] = "mutated"
	}
	require.NotContains(t, SubtaskPool("DevOps"), "mutated")

	pool := SubtaskPool("DevOps")
	pool[0] = "mutated"
	require.NotContains(t, SubtaskPool("DevOps"), "mutated")

	desc, err := m.GenerateTaskDescription(ctx, "t")
	require.NoError(t, err)
	desc.AcceptanceCriteria[0] = "mutated"
	again, err := m.GenerateTaskDescription(ctx, "t")
	require.NoError(t, err)
	require.NotContains(t, again.AcceptanceCriteria, "mutated")
}

func TestConcurrentCalls(t *testing.T) {
	profile := LatencyProfile{Base: time.Millisecond, Jitter: 2 * time.Millisecond}
	m := NewMock(WithLatency(profile, profile), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.GenerateTaskDescription(ctx, "parallel"); err != nil {
				t.Errorf("describe: %v", err)
			}
			if _, err := m.GenerateSubtaskChecklist(ctx, "parallel", "Frontend"); err != nil {
				t.Errorf("checklist: %v", err)
			}
		}()
	}
	wg.Wait()
}

func TestTeamsListsEveryCategory(t *testing.T) {
	teams := Teams()
	require.Contains(t, teams, FallbackTeam)
	require.Contains(t, teams, "Frontend")
	require.IsIncreasing(t, teams)
	for _, team := range teams {
		require.Len(t, SubtaskPool(team), 6, "team %s", team)
		require.Equal(t, team, ResolveTeam(team))
	}
}
