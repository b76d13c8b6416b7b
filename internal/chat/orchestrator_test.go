package chat

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/trial-chat/internal/llm"
	"github.com/sells-group/trial-chat/internal/model"
	"github.com/sells-group/trial-chat/internal/ranking"
	"github.com/sells-group/trial-chat/internal/registry"
	"github.com/sells-group/trial-chat/internal/sse"
	"github.com/sells-group/trial-chat/pkg/clinicaltrials"
)

const readyBlock = "```json\n" +
	`{"age": 45, "symptoms": ["wheezing", "cough"], "duration": "3 weeks", "location": "Boston, MA",` +
	` "conditions": [{"name": "Asthma", "probability": 80, "reason": "wheeze"}], "readyToSearch": true}` +
	"\n```"

const notReadyBlock = "```json\n" +
	`{"symptoms": ["cough"], "conditions": [], "readyToSearch": false}` +
	"\n```"

var (
	history  = []model.ChatMessage{{Role: model.RoleUser, Content: "I'm 45 and have been wheezing for 3 weeks in Boston"}}
	settings = Settings{Model: "claude-sonnet-4-5-20250929", MaxTokens: 1000, Temperature: 0.7, SearchLimit: 30}

	asthmaTrials = []model.Trial{
		{NCTID: "NCT00000001", Title: "Inhaled therapy for asthma", Status: model.TrialStatusRecruiting, Conditions: []string{"Asthma"}, Phase: "Phase 3"},
		{NCTID: "NCT00000002", Title: "Cough registry", Status: model.TrialStatusCompleted, Conditions: []string{"Chronic Cough"}},
	}
)

// chunked splits s into pieces of n bytes.
func chunked(s string, n int) []string {
	var out []string
	for len(s) > n {
		out = append(out, s[:n])
		s = s[n:]
	}
	return append(out, s)
}

func newOrchestrator(p llm.Provider, s registry.Searcher) *Orchestrator {
	return New(p, s, ranking.New(ranking.DefaultMaxResults), settings)
}

func TestRunTurn_PlainText(t *testing.T) {
	reply := "I'm sorry to hear that. How long have you had the cough?"
	stream := &chunkStream{chunks: chunked(reply, 7)}
	mp := new(mockProvider)
	mp.On("Stream", mock.Anything, mock.MatchedBy(func(r llm.Request) bool {
		return r.System == llm.SystemPrompt && r.Model == settings.Model && r.MaxTokens == 1000 && len(r.Messages) == 1
	})).Return(stream, nil).Once()
	ms := new(mockSearcher)

	rec := &recorder{}
	require.NoError(t, newOrchestrator(mp, ms).RunTurn(context.Background(), history, rec))

	assert.Equal(t, reply, rec.text())
	for _, k := range rec.kinds() {
		assert.Equal(t, sse.KindText, k)
	}
	assert.True(t, stream.closed)
	ms.AssertNotCalled(t, "Search", mock.Anything, mock.Anything)
	mp.AssertExpectations(t)
}

func TestRunTurn_ExtractionTriggersSearch(t *testing.T) {
	reply := "Thank you. Here is what I gathered:\n" + readyBlock + "\nI'll look for trials now."
	mp := new(mockProvider)
	mp.On("Stream", mock.Anything, mock.Anything).Return(&chunkStream{chunks: chunked(reply, 5)}, nil).Once()
	ms := new(mockSearcher)
	ms.On("Search", mock.Anything, clinicaltrials.SearchParams{
		Conditions: []string{"Asthma"},
		Age:        model.IntPtr(45),
		Location:   "Boston, MA",
		MaxResults: 30,
	}).Return(asthmaTrials, nil).Once()

	rec := &recorder{}
	require.NoError(t, newOrchestrator(mp, ms).RunTurn(context.Background(), history, rec))

	assert.Equal(t, []sse.Kind{sse.KindText, sse.KindExtraction, sse.KindTrials, sse.KindText}, rec.flowKinds())
	assert.Equal(t, "Thank you. Here is what I gathered:\n\nI'll look for trials now.", rec.text())
	assert.NotContains(t, rec.text(), "```")

	extEv, ok := rec.first(sse.KindExtraction)
	require.True(t, ok)
	ext := extEv.Extraction
	require.NotNil(t, ext)
	assert.Equal(t, 45, *ext.Age)
	assert.True(t, ext.ReadyToSearch)

	trialsEv, ok := rec.first(sse.KindTrials)
	require.True(t, ok)
	trials := trialsEv.Trials
	require.Len(t, trials, 2)
	assert.Equal(t, "NCT00000001", trials[0].NCTID)
	assert.Equal(t, 92, trials[0].RelevanceScore)
	ms.AssertExpectations(t)
}

func TestRunTurn_AtMostOneSearchPerTurn(t *testing.T) {
	reply := readyBlock + "\nLet me restate:\n" + readyBlock
	mp := new(mockProvider)
	mp.On("Stream", mock.Anything, mock.Anything).Return(&chunkStream{chunks: chunked(reply, 11)}, nil).Once()
	ms := new(mockSearcher)
	ms.On("Search", mock.Anything, mock.Anything).Return(asthmaTrials, nil).Once()

	rec := &recorder{}
	require.NoError(t, newOrchestrator(mp, ms).RunTurn(context.Background(), history, rec))

	assert.Equal(t, []sse.Kind{sse.KindExtraction, sse.KindTrials, sse.KindText, sse.KindExtraction}, rec.flowKinds())
	ms.AssertNumberOfCalls(t, "Search", 1)
}

func TestRunTurn_NotReadyDoesNotSearch(t *testing.T) {
	mp := new(mockProvider)
	mp.On("Stream", mock.Anything, mock.Anything).Return(&chunkStream{chunks: []string{"Noted.\n", notReadyBlock}}, nil).Once()
	ms := new(mockSearcher)

	rec := &recorder{}
	require.NoError(t, newOrchestrator(mp, ms).RunTurn(context.Background(), history, rec))

	assert.Equal(t, []sse.Kind{sse.KindText, sse.KindExtraction}, rec.flowKinds())
	ms.AssertNotCalled(t, "Search", mock.Anything, mock.Anything)
}

func TestRunTurn_ReadyWithoutConditionsDoesNotSearch(t *testing.T) {
	block := "```json\n{\"symptoms\": [\"fatigue\"], \"conditions\": [{\"name\": \"  \", \"probability\": 10}], \"readyToSearch\": true}\n```"
	mp := new(mockProvider)
	mp.On("Stream", mock.Anything, mock.Anything).Return(&chunkStream{chunks: []string{block}}, nil).Once()
	ms := new(mockSearcher)

	rec := &recorder{}
	require.NoError(t, newOrchestrator(mp, ms).RunTurn(context.Background(), history, rec))

	assert.Equal(t, []sse.Kind{sse.KindExtraction}, rec.kinds())
	ms.AssertNotCalled(t, "Search", mock.Anything, mock.Anything)
}

func TestRunTurn_InvalidExtractionContinues(t *testing.T) {
	bad := "```json\n{\"symptoms\": \"cough\", \"readyToSearch\": \"yes\"}\n```"
	mp := new(mockProvider)
	mp.On("Stream", mock.Anything, mock.Anything).Return(&chunkStream{chunks: []string{"Before ", bad, " after."}}, nil).Once()
	ms := new(mockSearcher)

	rec := &recorder{}
	require.NoError(t, newOrchestrator(mp, ms).RunTurn(context.Background(), history, rec))

	assert.Equal(t, "Before  after.", rec.text())
	assert.NotContains(t, rec.kinds(), sse.KindExtraction)
	ms.AssertNotCalled(t, "Search", mock.Anything, mock.Anything)
}

func TestRunTurn_NonJSONFenceIsText(t *testing.T) {
	reply := "Try this:\n```\nrest and fluids\n```\nThen see a doctor."
	mp := new(mockProvider)
	mp.On("Stream", mock.Anything, mock.Anything).Return(&chunkStream{chunks: chunked(reply, 2)}, nil).Once()

	rec := &recorder{}
	require.NoError(t, newOrchestrator(mp, new(mockSearcher)).RunTurn(context.Background(), history, rec))
	assert.Equal(t, reply, rec.text())
}

func TestRunTurn_UnclosedFenceFlushedAsText(t *testing.T) {
	reply := "Partial: ```json\n{\"symptoms\": []"
	mp := new(mockProvider)
	mp.On("Stream", mock.Anything, mock.Anything).Return(&chunkStream{chunks: chunked(reply, 4)}, nil).Once()

	rec := &recorder{}
	require.NoError(t, newOrchestrator(mp, new(mockSearcher)).RunTurn(context.Background(), history, rec))
	assert.Equal(t, reply, rec.text())
}

func TestRunTurn_SearchFailureServesFallback(t *testing.T) {
	mp := new(mockProvider)
	mp.On("Stream", mock.Anything, mock.Anything).Return(&chunkStream{chunks: []string{readyBlock}}, nil).Once()
	ms := new(mockSearcher)
	ms.On("Search", mock.Anything, mock.Anything).Return(nil, &clinicaltrials.APIError{StatusCode: 503, Body: "down"}).Once()

	rec := &recorder{}
	o := newOrchestrator(mp, registry.NewFallback(ms, nil))
	require.NoError(t, o.RunTurn(context.Background(), history, rec))

	require.Equal(t, []sse.Kind{sse.KindExtraction, sse.KindTrials}, rec.kinds())
	fallbackIDs := map[string]bool{}
	for _, tr := range clinicaltrials.FallbackTrials() {
		fallbackIDs[tr.NCTID] = true
	}
	trialsEv, ok := rec.first(sse.KindTrials)
	require.True(t, ok)
	require.NotEmpty(t, trialsEv.Trials)
	for _, tr := range trialsEv.Trials {
		assert.True(t, fallbackIDs[tr.NCTID], tr.NCTID)
		assert.NotEmpty(t, tr.MatchReasons)
	}
}

func TestRunTurn_SearchErrorEndsTurn(t *testing.T) {
	mp := new(mockProvider)
	mp.On("Stream", mock.Anything, mock.Anything).Return(&chunkStream{chunks: []string{readyBlock}}, nil).Once()
	ms := new(mockSearcher)
	ms.On("Search", mock.Anything, mock.Anything).Return(nil, context.Canceled).Once()

	rec := &recorder{}
	err := newOrchestrator(mp, ms).RunTurn(context.Background(), history, rec)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []sse.Kind{sse.KindExtraction}, rec.kinds())
}

func TestRunTurn_StartErrorEmitsNothing(t *testing.T) {
	mp := new(mockProvider)
	mp.On("Stream", mock.Anything, mock.Anything).Return(nil, llm.ErrMissingCredential).Once()

	rec := &recorder{}
	err := newOrchestrator(mp, new(mockSearcher)).RunTurn(context.Background(), history, rec)
	assert.ErrorIs(t, err, llm.ErrMissingCredential)
	assert.Empty(t, rec.events)
}

func TestRunTurn_StreamErrorBeforeOutput(t *testing.T) {
	upstream := assert.AnError
	mp := new(mockProvider)
	mp.On("Stream", mock.Anything, mock.Anything).Return(&chunkStream{err: upstream}, nil).Once()

	rec := &recorder{}
	err := newOrchestrator(mp, new(mockSearcher)).RunTurn(context.Background(), history, rec)
	assert.ErrorIs(t, err, upstream)
	assert.Empty(t, rec.events)
}

func TestRunTurn_StreamErrorMidway(t *testing.T) {
	mp := new(mockProvider)
	mp.On("Stream", mock.Anything, mock.Anything).Return(&chunkStream{chunks: []string{"Hello there"}, err: assert.AnError}, nil).Once()

	rec := &recorder{}
	err := newOrchestrator(mp, new(mockSearcher)).RunTurn(context.Background(), history, rec)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, "Hello there", rec.text())
}

func TestRunTurn_EmitterFailureStops(t *testing.T) {
	mp := new(mockProvider)
	stream := &chunkStream{chunks: []string{"one ", "two ", "three"}}
	mp.On("Stream", mock.Anything, mock.Anything).Return(stream, nil).Once()

	rec := &recorder{failOn: 1, sendErr: errClientGone}
	err := newOrchestrator(mp, new(mockSearcher)).RunTurn(context.Background(), history, rec)
	assert.ErrorIs(t, err, errClientGone)
	assert.Equal(t, "one ", rec.text())
	assert.Less(t, stream.i, 3)
	assert.True(t, stream.closed)
}

func TestRunTurn_EmptyHistory(t *testing.T) {
	mp := new(mockProvider)
	err := newOrchestrator(mp, new(mockSearcher)).RunTurn(context.Background(), nil, &recorder{})
	assert.ErrorIs(t, err, ErrEmptyHistory)
	mp.AssertNotCalled(t, "Stream", mock.Anything, mock.Anything)
}

func TestRunTurn_TextEventsNeverCarryFence(t *testing.T) {
	reply := "A " + readyBlock + " B " + notReadyBlock + " C"
	for size := 1; size <= 9; size++ {
		mp := new(mockProvider)
		mp.On("Stream", mock.Anything, mock.Anything).Return(&chunkStream{chunks: chunked(reply, size)}, nil).Once()
		ms := new(mockSearcher)
		ms.On("Search", mock.Anything, mock.Anything).Return([]model.Trial{}, nil).Once()

		rec := &recorder{}
		require.NoError(t, newOrchestrator(mp, ms).RunTurn(context.Background(), history, rec))
		assert.Equal(t, "A  B  C", rec.text(), "chunk size %d", size)
		for _, ev := range rec.events {
			if ev.Kind == sse.KindText {
				assert.False(t, strings.Contains(ev.Text, "`"), "chunk size %d: %q", size, ev.Text)
			}
		}
	}
}
