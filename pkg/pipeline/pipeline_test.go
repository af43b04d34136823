package pipeline

import (
	"testing"

	"logforwarder/pkg/rules"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEvaluator struct {
	drop    bool
	dropped *rules.DropedEvent
	err     error
}

func (f fakeEvaluator) EvalRules(map[string]any) (bool, *rules.DropedEvent, error) {
	return f.drop, f.dropped, f.err
}

func TestShouldDrop_NilRulesNeverDrops(t *testing.T) {
	p := &Pipeline{}
	drop, err := p.shouldDrop([]byte(`{"eventName":"DeleteBucket"}`))
	require.NoError(t, err)
	assert.False(t, drop)
}

func TestShouldDrop_NonJSONPayloadNeverDropped(t *testing.T) {
	p := &Pipeline{Rules: fakeEvaluator{drop: true, dropped: &rules.DropedEvent{RuleName: "any"}}}
	drop, err := p.shouldDrop([]byte("not json at all"))
	require.NoError(t, err)
	assert.False(t, drop, "a payload that doesn't parse as a JSON object can't be matched against field rules")
}

func TestShouldDrop_RuleMatches(t *testing.T) {
	p := &Pipeline{Rules: fakeEvaluator{drop: true, dropped: &rules.DropedEvent{RuleName: "ignore-describe"}}}
	drop, err := p.shouldDrop([]byte(`{"eventName":"DescribeInstances"}`))
	require.NoError(t, err)
	assert.True(t, drop)
}

func TestShouldDrop_EvaluationErrorPropagates(t *testing.T) {
	p := &Pipeline{Rules: fakeEvaluator{err: assert.AnError}}
	_, err := p.shouldDrop([]byte(`{"eventName":"DescribeInstances"}`))
	assert.ErrorIs(t, err, assert.AnError)
}

func TestSetRules_InstallsEvaluator(t *testing.T) {
	p := &Pipeline{}
	eval := fakeEvaluator{drop: true, dropped: &rules.DropedEvent{RuleName: "x"}}
	p.SetRules(eval)
	drop, err := p.shouldDrop([]byte(`{"a":1}`))
	require.NoError(t, err)
	assert.True(t, drop)
}
