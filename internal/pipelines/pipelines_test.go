package pipelines

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drmaniak/discovery-dojo/internal/expressions"
	"github.com/drmaniak/discovery-dojo/pkg/clients"
	"github.com/drmaniak/discovery-dojo/pkg/flow"
	"github.com/drmaniak/discovery-dojo/pkg/schema"
)

// scriptedCompleter answers by prompt shape, standing in for the model.
type scriptedCompleter struct {
	mu       sync.Mutex
	calls    int
	verdicts []string // consumed by critique prompts, in order
}

func (s *scriptedCompleter) Complete(_ context.Context, prompt string, _ json.RawMessage) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	switch {
	case strings.Contains(prompt, "search queries"):
		return `{"queries": ["q1", "q2"]}`, nil
	case strings.Contains(prompt, "Critique the research idea"),
		strings.Contains(prompt, "Review the research plan"):
		verdict := "approve"
		if len(s.verdicts) > 0 {
			verdict = s.verdicts[0]
			s.verdicts = s.verdicts[1:]
		}
		return fmt.Sprintf(`{"verdict": %q, "feedback": "tighten the scope"}`, verdict), nil
	case strings.Contains(prompt, "research planning consultant"):
		return `{
			"title": "Test Plan",
			"summary": "a plan for validating things",
			"phases": [{
				"title": "Scope",
				"duration": "1 week",
				"description": "pin down the question",
				"tasks": ["read prior work"],
				"deliverables": ["scope doc"]
			}],
			"resources": ["a laptop"],
			"challenges": ["scope creep"],
			"success_metrics": ["scope doc signed off"]
		}`, nil
	case strings.Contains(prompt, "Summarize the key findings"):
		return "summary of findings", nil
	case strings.Contains(prompt, "Assess the novelty"):
		return "sufficiently novel", nil
	case strings.Contains(prompt, "research idea"):
		return "a concrete idea", nil
	default:
		return "generic summary", nil
	}
}

type stubSearcher struct{ mu sync.Mutex }

func (s *stubSearcher) Search(_ context.Context, query string, maxResults int) ([]clients.SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return []clients.SearchResult{{Title: "doc " + query, URL: "https://x", Snippet: "about " + query}}, nil
}

type stubEmbedder struct{}

func (stubEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func testDeps(t *testing.T, completer clients.Completer) Deps {
	t.Helper()
	cel, err := expressions.NewCELEngine()
	require.NoError(t, err)

	idx := clients.NewMemoryIndex()
	require.NoError(t, idx.Add([]float32{1, 0.2}, map[string]any{"title": "prior art", "abstract": "close work"}))

	return Deps{
		Completer:      completer,
		Searcher:       &stubSearcher{},
		Index:          idx,
		Embedder:       stubEmbedder{},
		JQ:             expressions.NewGoJQEngine(),
		CEL:            cel,
		OutputPath:     filepath.Join(t.TempDir(), "report.md"),
		PlanOutputPath: filepath.Join(t.TempDir(), "plan.md"),
	}
}

func TestRegister_AllFlows(t *testing.T) {
	reg := flow.NewRegistry()
	require.NoError(t, Register(reg, testDeps(t, &scriptedCompleter{})))
	assert.Equal(t, []string{"research-assistant", "research-plan", "summarize", "summarize-parallel"}, reg.Names())

	for _, name := range reg.Names() {
		node, err := reg.Build(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, node.Name())
	}
}

func TestResearchFlow_ApprovedFirstPass(t *testing.T) {
	sc := &scriptedCompleter{}
	deps := testDeps(t, sc)

	f, err := NewResearchFlow(deps)
	require.NoError(t, err)

	shared := schema.NewShared(map[string]any{"topic": "graph task runners"})
	_, err = f.RunSync(shared)
	require.NoError(t, err)

	assert.Equal(t, []any{"q1", "q2"}, shared.GetSlice("queries"))
	assert.Equal(t, "summary of findings", shared.GetString("research_summary"))
	assert.Equal(t, "a concrete idea", shared.GetString("idea"))
	assert.Equal(t, "sufficiently novel", shared.GetString("novelty_assessment"))
	assert.Equal(t, 0, shared.GetInt("refine_cycles"))

	data, err := os.ReadFile(deps.OutputPath)
	require.NoError(t, err)
	report := string(data)
	assert.Contains(t, report, "graph task runners")
	assert.Contains(t, report, "a concrete idea")
	assert.Contains(t, report, "sufficiently novel")
}

func TestResearchFlow_RefineLoop(t *testing.T) {
	sc := &scriptedCompleter{verdicts: []string{"refine", "refine", "approve"}}
	deps := testDeps(t, sc)
	deps.MaxRefineCycles = 5

	f, err := NewResearchFlow(deps)
	require.NoError(t, err)

	shared := schema.NewShared(map[string]any{"topic": "vector search"})
	_, err = f.RunSync(shared)
	require.NoError(t, err)

	assert.Equal(t, 2, shared.GetInt("refine_cycles"))
	assert.Equal(t, "tighten the scope", shared.GetString("feedback"))
	_, err = os.Stat(deps.OutputPath)
	assert.NoError(t, err)
}

func TestResearchFlow_MaxCyclesStopsLoop(t *testing.T) {
	// The critique never approves; the bound forces completion.
	sc := &scriptedCompleter{verdicts: []string{"refine", "refine", "refine", "refine", "refine"}}
	deps := testDeps(t, sc)
	deps.MaxRefineCycles = 2

	f, err := NewResearchFlow(deps)
	require.NoError(t, err)

	shared := schema.NewShared(map[string]any{"topic": "anything"})
	_, err = f.RunSync(shared)
	require.NoError(t, err)

	assert.Equal(t, 2, shared.GetInt("refine_cycles"))
	_, err = os.Stat(deps.OutputPath)
	assert.NoError(t, err)
}

func TestResearchFlow_MissingTopicFails(t *testing.T) {
	f, err := NewResearchFlow(testDeps(t, &scriptedCompleter{}))
	require.NoError(t, err)

	_, err = f.RunSync(schema.NewShared(nil))
	require.Error(t, err)
}

func TestPlanFlow_ApprovedFirstPass(t *testing.T) {
	deps := testDeps(t, &scriptedCompleter{})

	f, err := NewPlanFlow(deps)
	require.NoError(t, err)

	shared := schema.NewShared(map[string]any{"idea": "a concrete idea"})
	_, err = f.RunSync(shared)
	require.NoError(t, err)

	assert.Equal(t, 0, shared.GetInt("plan_refine_cycles"))

	data, err := os.ReadFile(deps.PlanOutputPath)
	require.NoError(t, err)
	report := string(data)
	assert.Contains(t, report, "# Research Plan: Test Plan")
	assert.Contains(t, report, "a plan for validating things")
	assert.Contains(t, report, "### Phase 1: Scope")
	assert.Contains(t, report, "scope doc signed off")
	assert.Contains(t, report, "a concrete idea")
	// Default configuration lands in the overview.
	assert.Contains(t, report, "general research")
	assert.Contains(t, report, "1 month")
	assert.Contains(t, report, "Plan approved after 0 refinement cycle(s).")
}

func TestPlanFlow_RefineLoop(t *testing.T) {
	sc := &scriptedCompleter{verdicts: []string{"refine", "approve"}}
	deps := testDeps(t, sc)
	deps.MaxRefineCycles = 5

	f, err := NewPlanFlow(deps)
	require.NoError(t, err)

	shared := schema.NewShared(map[string]any{"idea": "an idea to plan"})
	_, err = f.RunSync(shared)
	require.NoError(t, err)

	assert.Equal(t, 1, shared.GetInt("plan_refine_cycles"))
	assert.Equal(t, "tighten the scope", shared.GetString("plan_feedback"))

	data, err := os.ReadFile(deps.PlanOutputPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Plan approved after 1 refinement cycle(s).")
}

func TestPlanFlow_MaxCyclesStopsLoop(t *testing.T) {
	// The review never approves; the bound forces completion.
	sc := &scriptedCompleter{verdicts: []string{"refine", "refine", "refine", "refine"}}
	deps := testDeps(t, sc)
	deps.MaxRefineCycles = 2

	f, err := NewPlanFlow(deps)
	require.NoError(t, err)

	shared := schema.NewShared(map[string]any{"idea": "an unplannable idea"})
	_, err = f.RunSync(shared)
	require.NoError(t, err)

	assert.Equal(t, 2, shared.GetInt("plan_refine_cycles"))

	data, err := os.ReadFile(deps.PlanOutputPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "refinement bound (2 cycle(s))")
}

func TestPlanFlow_MissingIdeaFails(t *testing.T) {
	f, err := NewPlanFlow(testDeps(t, &scriptedCompleter{}))
	require.NoError(t, err)

	_, err = f.RunSync(schema.NewShared(nil))
	require.Error(t, err)
}

func TestPlanFlow_RejectsUnknownProjectType(t *testing.T) {
	deps := testDeps(t, &scriptedCompleter{})
	f, err := NewPlanFlow(deps)
	require.NoError(t, err)

	shared := schema.NewShared(map[string]any{
		"idea":         "an idea",
		"project_type": "screenplay",
	})
	_, err = f.RunSync(shared)
	require.Error(t, err)
	// Nothing was planned or written.
	_, statErr := os.Stat(deps.PlanOutputPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestPlanFlow_ConfigFromFlowParams(t *testing.T) {
	deps := testDeps(t, &scriptedCompleter{})

	f, err := NewPlanFlow(deps)
	require.NoError(t, err)
	f.SetParams(schema.Params{"timeline": "1_week", "target_audience": "industry"})

	shared := schema.NewShared(map[string]any{"idea": "a quick idea"})
	_, err = f.RunSync(shared)
	require.NoError(t, err)

	data, err := os.ReadFile(deps.PlanOutputPath)
	require.NoError(t, err)
	report := string(data)
	assert.Contains(t, report, "1 week")
	assert.Contains(t, report, "industry")
}

func TestSummarizeFlow_ShortPath(t *testing.T) {
	sc := &scriptedCompleter{}
	deps := testDeps(t, sc)
	deps.ChunkSize = 100

	f, err := NewSummarizeFlow(deps, false)
	require.NoError(t, err)

	shared := schema.NewShared(map[string]any{"text": "a short note"})
	_, err = f.RunSync(shared)
	require.NoError(t, err)

	assert.Equal(t, "generic summary", shared.GetString("summary"))
	assert.Equal(t, 1, sc.calls)
	assert.Nil(t, shared.GetSlice("chunks"), "short path must not chunk")
}

func TestSummarizeFlow_LongPathChunksAndCombines(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		t.Run(fmt.Sprintf("parallel=%v", parallel), func(t *testing.T) {
			sc := &scriptedCompleter{}
			deps := testDeps(t, sc)
			deps.ChunkSize = 50

			f, err := NewSummarizeFlow(deps, parallel)
			require.NoError(t, err)

			text := strings.Repeat("some sentence about the subject matter. ", 10)
			shared := schema.NewShared(map[string]any{"text": text})
			_, err = f.RunSync(shared)
			require.NoError(t, err)

			chunks := shared.GetSlice("chunks")
			require.Greater(t, len(chunks), 1)
			for i := range chunks {
				assert.NotEmpty(t, shared.GetString(chunkSummaryKey(i)), "chunk %d", i)
			}
			assert.Equal(t, "generic summary", shared.GetString("summary"))
			// One call per chunk plus the combine pass.
			assert.Equal(t, len(chunks)+1, sc.calls)
		})
	}
}

func TestSummarizeFlow_MissingTextFails(t *testing.T) {
	f, err := NewSummarizeFlow(testDeps(t, &scriptedCompleter{}), false)
	require.NoError(t, err)

	_, err = f.RunSync(schema.NewShared(nil))
	require.Error(t, err)
}

func TestSplitChunks(t *testing.T) {
	chunks := splitChunks("alpha beta gamma delta", 11)
	require.Len(t, chunks, 3)
	assert.Equal(t, "alpha beta", chunks[0])
	assert.Equal(t, "gamma", chunks[1])
	assert.Equal(t, "delta", chunks[2])

	// Text within the budget stays whole.
	assert.Equal(t, []any{"tiny"}, splitChunks("tiny", 100))
}
