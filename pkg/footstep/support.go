// Package footstep tracks which foot supports the robot at every sample of
// the preview horizon.
//
// Two pure functions are composed once per control cycle, always in this
// order: Selection.Advance moves the selection matrices one sample forward,
// then Plan derives the per-sample support states from the new selection.
package footstep

import "fmt"

// Foot names a physical foot.
type Foot int

const (
	Left Foot = iota
	Right
)

// Opposite returns the other foot.
func (f Foot) Opposite() Foot {
	if f == Left {
		return Right
	}
	return Left
}

func (f Foot) String() string {
	if f == Left {
		return "left"
	}
	return "right"
}

// ParseFoot accepts "left"/"right" and the short forms "L"/"R".
func ParseFoot(s string) (Foot, error) {
	switch s {
	case "left", "L", "l":
		return Left, nil
	case "right", "R", "r":
		return Right, nil
	}
	return Left, fmt.Errorf("footstep: unknown foot %q", s)
}

// Support is the support state at one instant.
type Support struct {
	Foot       Foot
	StepNumber int     // 0 for the placed foot, j+1 for future footstep j
	DS         int     // 1 where a new footstep begins, else 0
	TimeLimit  float64 // end of the step's single-support phase (s)
}

// Plan derives the support state of every horizon sample from the
// selection. Foot sides alternate with the step number starting from
// current.Foot. TimeLimit starts at current.TimeLimit and becomes
// now+tStep at every step boundary.
//
// Plan panics if consecutive samples skip a step or go backwards.
func Plan(sel Selection, current Support, now, tStep float64) []Support {
	n, _ := sel.Dims()
	plan := make([]Support, n)
	limit := current.TimeLimit

	for i := 0; i < n; i++ {
		col := sel.Column(i)
		if col < 0 {
			panic(fmt.Sprintf("footstep: horizon sample %d has no support foot", i))
		}
		sp := Support{StepNumber: col, Foot: current.Foot}
		if col%2 == 1 {
			sp.Foot = current.Foot.Opposite()
		}
		if i > 0 {
			sp.DS = col - plan[i-1].StepNumber
			if sp.DS != 0 && sp.DS != 1 {
				panic(fmt.Sprintf("footstep: step number jumps by %d at sample %d", sp.DS, i))
			}
		}
		if sp.DS == 1 {
			limit = now + tStep
		}
		sp.TimeLimit = limit
		plan[i] = sp
	}
	return plan
}

// CheckPlan reports the first inconsistency between DS flags, step numbers
// and time limits in a plan.
func CheckPlan(plan []Support) error {
	for i := 1; i < len(plan); i++ {
		prev, cur := plan[i-1], plan[i]
		changed := cur.StepNumber != prev.StepNumber
		if (cur.DS == 1) != changed {
			return fmt.Errorf("footstep: sample %d: ds=%d but step %d -> %d", i, cur.DS, prev.StepNumber, cur.StepNumber)
		}
		if cur.StepNumber < prev.StepNumber {
			return fmt.Errorf("footstep: sample %d: step number decreases", i)
		}
		if !changed && cur.TimeLimit < prev.TimeLimit {
			return fmt.Errorf("footstep: sample %d: time limit decreases within step %d", i, cur.StepNumber)
		}
		if changed && cur.Foot == prev.Foot {
			return fmt.Errorf("footstep: sample %d: new step keeps the %s foot", i, cur.Foot)
		}
	}
	return nil
}
