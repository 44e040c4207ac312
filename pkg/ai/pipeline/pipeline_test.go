package pipeline

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"db-agent-be/pkg/ai/stream"
	"db-agent-be/pkg/apperrors"
	"db-agent-be/pkg/database"
	"db-agent-be/pkg/database/dbtest"
	"db-agent-be/pkg/llm/llmtest"
	"db-agent-be/pkg/tools"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu       sync.Mutex
	thoughts []stream.Thought
}

func (r *recorder) Thinking(ctx context.Context, tool, input string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.thoughts = append(r.thoughts, stream.Thought{Tool: tool, Input: input})
	return nil
}

func (r *recorder) Text(ctx context.Context, text string) error { return nil }

func (r *recorder) tools() []string {
	out := make([]string, len(r.thoughts))
	for i, th := range r.thoughts {
		out[i] = th.Tool
	}
	return out
}

func newPipeline(t *testing.T, fake *llmtest.Fake) (*Pipeline, *database.Executor) {
	t.Helper()
	cat := dbtest.Catalog(t)
	db := dbtest.Open(t, cat, dbtest.Seed())
	exec := database.NewExecutor(db, dbtest.Logger())
	return New(fake, cat, exec, "SQLite", dbtest.Logger()), exec
}

func chartFrom(t *testing.T, reply string) ChartConfig {
	t.Helper()
	start := strings.Index(reply, ChartOpenTag)
	end := strings.Index(reply, ChartCloseTag)
	require.True(t, start >= 0 && end > start, "reply has no chart block: %s", reply)

	var cfg ChartConfig
	require.NoError(t, json.Unmarshal([]byte(reply[start+len(ChartOpenTag):end]), &cfg))
	return cfg
}

func TestRunChartRequest(t *testing.T) {
	fake := llmtest.New(
		llmtest.Rule{Marker: planMarker, Reply: `{"tables": ["flights"]}`},
		llmtest.Rule{Marker: generateMarker, Reply: "```sql\nSELECT origin, COUNT(*) AS flights FROM flights GROUP BY origin ORDER BY origin;\n```"},
		llmtest.Rule{Marker: narrateMarker, Reply: "Each origin has one flight.\n```json\n{\"chart\": {\"type\": \"pie\"}}\n```"},
	)
	p, _ := newPipeline(t, fake)
	rec := &recorder{}

	reply, err := p.Run(context.Background(), "Graph flights per origin", rec)

	require.NoError(t, err)
	assert.Equal(t, []string{tools.ListTablesName, tools.DescribeTableName, tools.ValidateSQLName, tools.ExecuteSQLName}, rec.tools())
	assert.True(t, strings.HasPrefix(reply, "Each origin has one flight."))
	assert.Equal(t, 1, strings.Count(reply, ChartOpenTag), "model chart must be replaced, not kept")

	cfg := chartFrom(t, reply)
	assert.Equal(t, "bar", cfg.Chart.Type)
	assert.Equal(t, []string{"JFK", "LHR"}, cfg.XAxis.Categories)
	require.Len(t, cfg.Series, 1)
	assert.Equal(t, []any{1.0, 1.0}, cfg.Series[0].Data)
	assert.Equal(t, "dark", cfg.Theme.Mode)
}

func TestRunRejectsMutationAfterOneRetry(t *testing.T) {
	fake := llmtest.New(
		llmtest.Rule{Marker: generateMarker, Reply: "DROP TABLE flights"},
	)
	p, exec := newPipeline(t, fake)
	rec := &recorder{}

	reply, err := p.Run(context.Background(), "Drop the flights table", rec)

	require.NoError(t, err)
	assert.Contains(t, reply, "not allowed")
	assert.Equal(t, 2, fake.Calls(generateMarker))
	assert.NotContains(t, rec.tools(), tools.ExecuteSQLName)

	res := exec.Execute(context.Background(), "SELECT COUNT(*) AS n FROM flights")
	require.Nil(t, res.Err)
	assert.EqualValues(t, 2, res.Rows[0]["n"])
}

func TestRunRetryCanRecover(t *testing.T) {
	fake := llmtest.New(
		llmtest.Rule{Marker: "REJECTED:", Reply: "SELECT name FROM pilots ORDER BY id"},
		llmtest.Rule{Marker: generateMarker, Reply: "DELETE FROM pilots"},
	)
	p, _ := newPipeline(t, fake)
	rec := &recorder{}

	reply, err := p.Run(context.Background(), "Which pilots do we have?", rec)

	require.NoError(t, err)
	assert.Equal(t, "- **name**: Maverick\n- **name**: Amelia", reply)
	assert.Equal(t, []string{
		tools.ListTablesName, tools.DescribeTableName,
		tools.ValidateSQLName, tools.ValidateSQLName, tools.ExecuteSQLName,
	}, rec.tools())

	prompts := fake.Prompts()
	var retryPrompt string
	for _, pr := range prompts {
		if strings.Contains(pr, "REJECTED:") {
			retryPrompt = pr
		}
	}
	assert.Contains(t, retryPrompt, "Mutable operation 'DELETE'")
}

func TestRunSuggestsMisspelledTable(t *testing.T) {
	fake := llmtest.New()
	p, _ := newPipeline(t, fake)
	rec := &recorder{}

	reply, err := p.Run(context.Background(), "Show me the flighst", rec)

	require.NoError(t, err)
	assert.Equal(t, "Table 'flighst' not found. Did you mean 'flights'?", reply)
	assert.Equal(t, 0, fake.Calls(generateMarker))
	require.Len(t, rec.thoughts, 2)
	assert.Equal(t, stream.Thought{Tool: tools.DescribeTableName, Input: "flighst"}, rec.thoughts[1])
}

func TestRunPrefersModelSelectionOverNearMisses(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{name: "verb close to flights", query: "Who flies the most?"},
		{name: "noun close to planes", query: "Which places are busiest?"},
		{name: "misspelling-like word", query: "How many plans exist?"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := llmtest.New(
				llmtest.Rule{Marker: planMarker, Reply: `{"tables": ["flights"]}`},
				llmtest.Rule{Marker: generateMarker, Reply: "SELECT COUNT(*) AS total FROM flights"},
			)
			p, _ := newPipeline(t, fake)
			rec := &recorder{}

			reply, err := p.Run(context.Background(), tt.query, rec)

			require.NoError(t, err)
			assert.Equal(t, 1, fake.Calls(planMarker))
			assert.NotContains(t, reply, "not found")
			assert.Equal(t, "The total is 2.", reply)
			assert.Equal(t, stream.Thought{Tool: tools.DescribeTableName, Input: "flights"}, rec.thoughts[1])
		})
	}
}

func TestRunBroadRequestNamesDescriptiveColumns(t *testing.T) {
	fake := llmtest.New(
		llmtest.Rule{Marker: planMarker, Reply: `{"tables": ["flights"]}`},
		llmtest.Rule{Marker: generateMarker, Reply: "SELECT origin, destination FROM flights ORDER BY id"},
	)
	p, _ := newPipeline(t, fake)

	_, err := p.Run(context.Background(), "show all flights", &recorder{})
	require.NoError(t, err)

	var prompt string
	for _, pr := range fake.Prompts() {
		if strings.Contains(pr, generateMarker) {
			prompt = pr
		}
	}
	require.NotEmpty(t, prompt)
	assert.Contains(t, prompt, "Descriptive columns: flights: origin, destination, departure_time.")
	assert.NotContains(t, prompt, "models")
}

func TestRunNarrowRequestSkipsDescriptiveColumns(t *testing.T) {
	fake := llmtest.New(
		llmtest.Rule{Marker: planMarker, Reply: `{"tables": ["flights"]}`},
		llmtest.Rule{Marker: generateMarker, Reply: "SELECT COUNT(*) AS total FROM flights"},
	)
	p, _ := newPipeline(t, fake)

	_, err := p.Run(context.Background(), "How many flights are there?", &recorder{})
	require.NoError(t, err)

	for _, pr := range fake.Prompts() {
		assert.NotContains(t, pr, "Descriptive columns:")
	}
}

func TestRunWithoutModel(t *testing.T) {
	p, _ := newPipeline(t, llmtest.New())

	reply, err := p.Run(context.Background(), "How many planes are there?", &recorder{})

	require.NoError(t, err)
	assert.Equal(t, "I couldn't write a query for that question right now.", reply)
}

func TestRunUnknownSubject(t *testing.T) {
	p, _ := newPipeline(t, llmtest.New())

	reply, err := p.Run(context.Background(), "What is the weather?", &recorder{})

	require.NoError(t, err)
	assert.Contains(t, reply, "Available tables: flights, pilots, planes.")
}

func TestRunFormatsRowsWhenNarrationFails(t *testing.T) {
	tests := []struct {
		name  string
		sql   string
		want  string
		check func(t *testing.T, reply string)
	}{
		{
			name: "single value",
			sql:  "SELECT COUNT(*) AS total FROM flights",
			want: "The total is 2.",
		},
		{
			name: "two records",
			sql:  "SELECT name, license_type FROM pilots ORDER BY id",
			want: "- **name**: Maverick, **license_type**: Military\n- **name**: Amelia, **license_type**: Commercial",
		},
		{
			name: "empty",
			sql:  "SELECT * FROM pilots WHERE id = 0",
			want: noResults,
		},
		{
			name: "database error",
			sql:  "SELECT * FROM hangars JOIN flights ON 1 = 1",
			check: func(t *testing.T, reply string) {
				assert.True(t, strings.HasPrefix(reply, "The query could not be completed. Database error:"))
				assert.Contains(t, reply, "hangars")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := llmtest.New(llmtest.Rule{Marker: generateMarker, Reply: tt.sql})
			p, _ := newPipeline(t, fake)

			reply, err := p.Run(context.Background(), "Tell me about flights and pilots", &recorder{})

			require.NoError(t, err)
			if tt.check != nil {
				tt.check(t, reply)
				return
			}
			assert.Equal(t, tt.want, reply)
		})
	}
}

func TestRunStopsWhenCancelled(t *testing.T) {
	p, _ := newPipeline(t, llmtest.New())
	rec := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx, "How many flights?", rec)

	assert.True(t, apperrors.Is(err, apperrors.Stream))
	assert.Empty(t, rec.thoughts)
}

type failingSink struct{ recorder }

func (f *failingSink) Thinking(ctx context.Context, tool, input string) error {
	return apperrors.New(apperrors.Stream, "consumer went away")
}

func TestRunStopsWhenConsumerLeaves(t *testing.T) {
	fake := llmtest.New(llmtest.Rule{Marker: generateMarker, Reply: "SELECT 1"})
	p, _ := newPipeline(t, fake)

	_, err := p.Run(context.Background(), "How many flights?", &failingSink{})

	assert.True(t, apperrors.Is(err, apperrors.Stream))
	assert.Equal(t, 0, fake.Calls(generateMarker))
}
