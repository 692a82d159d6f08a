package monitor

import "testing"

func TestTransitionFromAbsent(t *testing.T) {
	cases := []struct {
		kind rawKind
		want coalescedState
	}{
		{rawCreate, stateCreated},
		{rawDelete, stateDeleted},
		{rawModify, stateModified},
	}
	for _, c := range cases {
		if got := transition(stateNoop, false, c.kind); got != c.want {
			t.Errorf("transition(absent, %v) = %v, want %v", c.kind, got, c.want)
		}
	}
}

func TestTransitionCreateThenDeleteIsNoop(t *testing.T) {
	state := transition(stateNoop, false, rawCreate)
	state = transition(state, true, rawDelete)
	if state != stateNoop {
		t.Fatalf("create-then-delete folded to %v, want NOOP", state)
	}
}

func TestTransitionDeleteThenCreateIsModified(t *testing.T) {
	state := transition(stateNoop, false, rawDelete)
	state = transition(state, true, rawCreate)
	if state != stateModified {
		t.Fatalf("delete-then-create folded to %v, want MODIFIED", state)
	}
}

func TestTransitionCreatedStaysCreatedAcrossModify(t *testing.T) {
	state := transition(stateNoop, false, rawCreate)
	state = transition(state, true, rawModify)
	if state != stateCreated {
		t.Fatalf("create-then-modify folded to %v, want CREATED", state)
	}
}

func TestTransitionDeletedStaysDeletedAcrossRepeat(t *testing.T) {
	state := transition(stateNoop, false, rawDelete)
	state = transition(state, true, rawDelete)
	if state != stateDeleted {
		t.Fatalf("delete-then-delete folded to %v, want DELETED", state)
	}
}

func TestTransitionModifiedAbsorbsFurtherModify(t *testing.T) {
	state := transition(stateNoop, false, rawModify)
	state = transition(state, true, rawModify)
	if state != stateModified {
		t.Fatalf("modify-then-modify folded to %v, want MODIFIED", state)
	}
}
