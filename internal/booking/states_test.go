package booking

import "testing"

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		from State
		ev   Event
		want State
		ok   bool
	}{
		{StateEmpty, EventChooseClinic, StateClinicChosen, true},
		{StateEmpty, EventChooseDate, 0, false},
		{StateEmpty, EventSelectSlot, 0, false},
		{StateEmpty, EventSubmit, 0, false},
		{StateClinicChosen, EventChooseDate, StateDateChosen, true},
		{StateClinicChosen, EventSelectSlot, 0, false},
		{StateDateChosen, EventSelectSlot, StateSlotChosen, true},
		{StateSlotChosen, EventDraftComplete, StateSubmittable, true},
		{StateSubmittable, EventDraftIncomplete, StateSlotChosen, true},
		{StateSubmittable, EventChooseClinic, StateClinicChosen, true},
		{StateSubmittable, EventSubmit, StateSubmitting, true},
		{StateSlotChosen, EventSubmit, 0, false},
		{StateSubmitting, EventChooseClinic, 0, false},
		{StateSubmitting, EventEdit, 0, false},
		{StateSubmitting, EventSubmit, 0, false},
		{StateSubmitting, EventReset, StateEmpty, true},
		{StateSubmitting, EventSubmitSucceeded, StateSuccess, true},
		{StateSubmitting, EventSubmitFailed, StateFailed, true},
		{StateFailed, EventSubmit, StateSubmitting, true},
		{StateFailed, EventChooseDate, StateDateChosen, true},
		{StateSuccess, EventChooseClinic, StateClinicChosen, true},
		{StateSuccess, EventChooseDate, StateDateChosen, true},
		{StateSuccess, EventSubmit, 0, false},
	}
	for _, tc := range cases {
		got, ok := Next(tc.from, tc.ev)
		if ok != tc.ok || (ok && got != tc.want) {
			t.Fatalf("Next(%s, %s) = %s, %v; want %s, %v", tc.from, tc.ev, got, ok, tc.want, tc.ok)
		}
	}
}

func TestEveryIdleStateAcceptsReset(t *testing.T) {
	for s := StateEmpty; s <= StateFailed; s++ {
		if got, ok := Next(s, EventReset); !ok || got != StateEmpty {
			t.Fatalf("reset from %s: got %s, %v", s, got, ok)
		}
	}
}

func TestIllegalTransitionError(t *testing.T) {
	err := &IllegalTransitionError{From: StateSubmitting, Event: EventChooseClinic}
	if err.Error() != "booking: choose_clinic is not allowed in state submitting" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if State(42).String() != "state(42)" {
		t.Fatalf("unexpected name %q", State(42).String())
	}
}
