package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func advices(n int) []Advice {
	out := make([]Advice, n)
	for i := range out {
		out[i] = &AdviceFuncs{Label: string(rune('a' + i))}
	}
	return out
}

func TestModerator_WalksChain(t *testing.T) {
	chain := advices(2)
	m := NewModerator(chain)
	assert.Nil(t, m.Current())

	var steps []string
	for !m.Finished {
		step, advice := m.Advance()
		steps = append(steps, step.String()+":"+AdviceName(advice))
		if step == StepBefore || step == StepAfter {
			assert.Same(t, advice, m.Current())
		}
	}
	assert.Equal(t, []string{
		"before:a", "before:b", "task:<none>", "after:b", "after:a", "finished:<none>",
	}, steps)
	assert.Equal(t, 2, m.BeforeCalled)
	assert.Equal(t, 2, m.AfterCalled)
	assert.True(t, m.TaskCalled)
	assert.Nil(t, m.Current())

	step, _ := m.Advance()
	assert.Equal(t, StepFinished, step)
}

func TestModerator_EmptyChain(t *testing.T) {
	m := NewModerator(nil)
	step, _ := m.Advance()
	assert.Equal(t, StepTask, step)
	step, _ = m.Advance()
	assert.Equal(t, StepFinished, step)
	assert.True(t, m.Finished)
}

func TestModerator_Phase(t *testing.T) {
	m := NewModerator(advices(1))
	m.Advance()
	assert.Equal(t, "before", m.Phase())
	m.Advance()
	assert.Equal(t, "after", m.Phase())
}

func TestModerator_Conclude(t *testing.T) {
	chain := advices(3)
	m := NewModerator(chain)
	m.Advance()
	m.Advance() // inside b.Before
	m.Conclude()
	assert.Equal(t, 3, m.BeforeCalled)
	assert.Equal(t, 1, m.AfterCalled)

	step, advice := m.Advance()
	assert.Equal(t, StepAfter, step)
	assert.Same(t, chain[1], advice)
	step, advice = m.Advance()
	assert.Equal(t, StepAfter, step)
	assert.Same(t, chain[0], advice)
	step, _ = m.Advance()
	assert.Equal(t, StepFinished, step)
}

func TestModerator_SerializedRoundTrip(t *testing.T) {
	chain := advices(3)
	m := NewModerator(chain)
	for i := 0; i < 5; i++ {
		m.Advance()
	}
	values := m.Serialized()
	assert.Equal(t, map[string]any{
		"before_called": 3, "after_called": 1, "task_called": true, "finished": false,
	}, values)

	// numbers decoded from JSON are float64
	values["before_called"] = float64(3)
	restored, err := ModeratorFromSerialized(values, chain)
	require.NoError(t, err)
	assert.Equal(t, m.BeforeCalled, restored.BeforeCalled)
	assert.Equal(t, m.AfterCalled, restored.AfterCalled)
	assert.Equal(t, m.TaskCalled, restored.TaskCalled)
	assert.Same(t, m.Current(), restored.Current())
}
