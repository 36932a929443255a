package footstep

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

const (
	horizon = 16
	feet    = 2
	nstep   = 8
	period  = 0.1
	tStep   = 0.8
)

func requireRowStochastic(t *testing.T, s Selection) {
	t.Helper()
	n, _ := s.Dims()
	for i := 0; i < n; i++ {
		require.Equal(t, 1.0, s.Vec().AtVec(i)+mat.Sum(s.Mat().RowView(i)), "row %d", i)
	}
}

func TestSelection_InitialReseed(t *testing.T) {
	sel, newStep := NewSelection(horizon, feet, nstep).Advance()
	require.True(t, newStep)

	for i := 0; i < horizon; i++ {
		want := 0.0
		if i < nstep {
			want = 1
		}
		assert.Equal(t, want, sel.Vec().AtVec(i), "v[%d]", i)

		step := i / nstep
		for j := 0; j < feet; j++ {
			want := 0.0
			if i+1 > nstep && j == step-1 {
				want = 1
			}
			assert.Equal(t, want, sel.Mat().At(i, j), "V[%d,%d]", i, j)
		}
	}
	assert.Equal(t, 1, sel.Active())
	requireRowStochastic(t, sel)
}

func TestSelection_ShiftFillsLowestIncompleteColumn(t *testing.T) {
	sel, _ := NewSelection(horizon, feet, nstep).Advance()
	sel, newStep := sel.Advance()
	require.False(t, newStep)

	// placed foot keeps nstep-1 samples, first future column is full,
	// the trailing sample opens the second future column
	assert.Equal(t, float64(nstep-1), mat.Sum(sel.Vec()))
	assert.Equal(t, float64(nstep), mat.Sum(sel.Mat().ColView(0)))
	assert.Equal(t, 1.0, sel.Mat().At(horizon-1, 1))
	assert.Equal(t, 2, sel.Active())
	requireRowStochastic(t, sel)
}

func TestSelection_ReseedsEveryNStepCycles(t *testing.T) {
	sel, _ := NewSelection(horizon, feet, nstep).Advance()
	for k := 1; k <= 5*nstep; k++ {
		var newStep bool
		sel, newStep = sel.Advance()
		assert.Equal(t, k%nstep == 0, newStep, "cycle %d", k)
		requireRowStochastic(t, sel)
	}
}

func TestSelection_RowWithoutFreeColumnPanics(t *testing.T) {
	// N exceeds nf*nstep+1: the trailing row cannot be attributed
	sel, _ := NewSelection(8, 1, 4).Advance()
	assert.Panics(t, func() { sel.Advance() })
}

func TestPlan_MatchesSelection(t *testing.T) {
	sel, _ := NewSelection(horizon, feet, nstep).Advance()
	current := Support{Foot: Left}
	now := 0.0

	for cycle := 0; cycle < 100; cycle++ {
		plan := Plan(sel, current, now, tStep)
		require.Len(t, plan, horizon)

		limit := current.TimeLimit
		for i := 0; i < horizon; i++ {
			col := sel.Column(i)
			assert.Equal(t, col, plan[i].StepNumber)
			if col%2 == 0 {
				assert.Equal(t, current.Foot, plan[i].Foot)
			} else {
				assert.Equal(t, current.Foot.Opposite(), plan[i].Foot)
			}
			if i > 0 {
				assert.Equal(t, col-plan[i-1].StepNumber, plan[i].DS)
			}
			if plan[i].DS == 1 {
				limit = now + tStep
			}
			assert.Equal(t, limit, plan[i].TimeLimit)
		}
		require.NoError(t, CheckPlan(plan))

		var newStep bool
		sel, newStep = sel.Advance()
		now += period
		if newStep {
			current = Support{Foot: current.Foot.Opposite(), TimeLimit: now + tStep}
		}
	}
}

func TestPlan_RoundTrip(t *testing.T) {
	sel, _ := NewSelection(horizon, feet, nstep).Advance()
	for cycle := 0; cycle < 3*nstep; cycle++ {
		plan := Plan(sel, Support{Foot: Right}, 0, tStep)
		back := SelectionFromPlan(plan, feet, nstep)
		require.True(t, mat.Equal(sel.Mat(), back.Mat()), "cycle %d", cycle)
		require.True(t, mat.Equal(sel.Vec(), back.Vec()), "cycle %d", cycle)
		sel, _ = sel.Advance()
	}
}

func TestPlan_EmptyRowPanics(t *testing.T) {
	assert.Panics(t, func() {
		Plan(NewSelection(horizon, feet, nstep), Support{}, 0, tStep)
	})
}

func TestCheckPlan_DetectsInconsistency(t *testing.T) {
	plan := []Support{
		{Foot: Left, StepNumber: 0},
		{Foot: Right, StepNumber: 1, DS: 0},
	}
	assert.Error(t, CheckPlan(plan))

	plan[1].DS = 1
	assert.NoError(t, CheckPlan(plan))

	plan[1].Foot = Left
	assert.Error(t, CheckPlan(plan))
}

func TestParseFoot(t *testing.T) {
	f, err := ParseFoot("R")
	require.NoError(t, err)
	assert.Equal(t, Right, f)
	assert.Equal(t, Left, f.Opposite())
	assert.Equal(t, "right", f.String())

	_, err = ParseFoot("middle")
	assert.Error(t, err)
}
