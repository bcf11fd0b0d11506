package judge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/hearthside/gigi-learning/internal/store"
)

type fakeClient struct {
	model    string
	response string
	err      error
	prompts  []string
}

func (f *fakeClient) Call(ctx context.Context, input string, options ...llms.CallOption) (string, error) {
	f.prompts = append(f.prompts, input)
	return f.response, f.err
}

func (f *fakeClient) Model() string { return f.model }

const goodRubricResponse = `{"accuracy": {"score": 4, "evidence": "q", "reasoning": "r"},
"helpfulness": {"score": 4, "evidence": "", "reasoning": ""},
"tone": {"score": 4, "evidence": "", "reasoning": ""},
"tool_selection": {"score": 3, "evidence": "", "reasoning": ""},
"safety": {"score": 5, "evidence": "", "reasoning": ""}}`

func newTestJudge(batch, strong Client) *Judge {
	return New(batch, strong, 1000, time.Second)
}

func TestEvaluateResponseOK(t *testing.T) {
	batch := &fakeClient{model: "gemini-2.5-flash", response: goodRubricResponse}
	j := newTestJudge(batch, nil)

	res := j.EvaluateResponse(context.Background(), store.ChannelSMS, "can someone cover my shift", "I'll check and text you back", TierBatch)
	require.True(t, res.OK())
	assert.Equal(t, "gemini-2.5-flash", res.Model)
	assert.Equal(t, 4, res.Scores[store.CriterionAccuracy].Score)
	assert.Len(t, res.Scores, 5)

	require.Len(t, batch.prompts, 1)
	assert.Contains(t, batch.prompts[0], "can someone cover my shift")
	assert.Contains(t, batch.prompts[0], "Channel: sms")
}

func TestEvaluateResponseTierSelection(t *testing.T) {
	batch := &fakeClient{model: "cheap", response: goodRubricResponse}
	strong := &fakeClient{model: "strong", response: goodRubricResponse}
	j := newTestJudge(batch, strong)

	res := j.EvaluateResponse(context.Background(), store.ChannelVoice, "u", "a", TierStrong)
	require.True(t, res.OK())
	assert.Equal(t, "strong", res.Model)
	assert.Empty(t, batch.prompts)
	assert.Len(t, strong.prompts, 1)
}

func TestEvaluateResponseInvocationError(t *testing.T) {
	batch := &fakeClient{model: "m", err: errors.New("invalid api key")}
	j := newTestJudge(batch, nil)

	res := j.EvaluateResponse(context.Background(), store.ChannelSMS, "u", "a", TierBatch)
	assert.False(t, res.OK())
	assert.Contains(t, res.Err, "judge invocation failed")
	assert.Nil(t, res.Scores)
}

func TestEvaluateResponseCallsOncePerTurn(t *testing.T) {
	// A failing turn is not re-attempted until the next scheduled cycle.
	batch := &fakeClient{model: "m", err: errors.New("context deadline exceeded (timeout)")}
	j := newTestJudge(batch, nil)

	res := j.EvaluateResponse(context.Background(), store.ChannelSMS, "u", "a", TierBatch)
	assert.False(t, res.OK())
	assert.Len(t, batch.prompts, 1)

	_, err := j.CompareDraft(context.Background(), store.ChannelSMS, "i", "d", "r")
	assert.Error(t, err)
	assert.Len(t, batch.prompts, 2)
}

func TestEvaluateResponseUnparseableOutput(t *testing.T) {
	batch := &fakeClient{model: "m", response: "I cannot score this conversation."}
	j := newTestJudge(batch, nil)

	res := j.EvaluateResponse(context.Background(), store.ChannelSMS, "u", "a", TierBatch)
	assert.False(t, res.OK())
	assert.Contains(t, res.Err, "judge output unparseable")
}

func TestCompareDraft(t *testing.T) {
	batch := &fakeClient{model: "m", response: `{"difference_score": 2, "difference_type": "tone", "gigi_was_better": false, "correction": "nothing", "reasoning": "same meaning"}`}
	j := newTestJudge(batch, nil)

	analysis, err := j.CompareDraft(context.Background(), store.ChannelSMS, "I can't make it tonight, sick", "I've logged your call-out", "No problem, feel better!")
	require.NoError(t, err)
	assert.Equal(t, 2, analysis.DifferenceScore)
	assert.Equal(t, "nothing", analysis.Correction)

	require.Len(t, batch.prompts, 1)
	assert.Contains(t, batch.prompts[0], "Gigi's draft")
	assert.Contains(t, batch.prompts[0], "Staff's actual reply")
}

func TestCompareDraftError(t *testing.T) {
	batch := &fakeClient{model: "m", response: "not json"}
	j := newTestJudge(batch, nil)

	_, err := j.CompareDraft(context.Background(), store.ChannelSMS, "i", "d", "r")
	assert.Error(t, err)
}

func TestStrongTierFallsBackToBatch(t *testing.T) {
	batch := &fakeClient{model: "only", response: goodRubricResponse}
	j := newTestJudge(batch, nil)

	res := j.EvaluateResponse(context.Background(), store.ChannelDM, "u", "a", TierStrong)
	require.True(t, res.OK())
	assert.Equal(t, "only", res.Model)
}
