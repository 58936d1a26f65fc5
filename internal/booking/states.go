package booking

import "fmt"

// State is the position of the booking form in the clinic -> date -> slot
// cascade.
type State int

const (
	StateEmpty State = iota
	StateClinicChosen
	StateDateChosen
	StateSlotChosen
	StateSubmittable
	StateSubmitting
	StateSuccess
	StateFailed
)

var stateNames = [...]string{
	StateEmpty:        "empty",
	StateClinicChosen: "clinic_chosen",
	StateDateChosen:   "date_chosen",
	StateSlotChosen:   "slot_chosen",
	StateSubmittable:  "submittable",
	StateSubmitting:   "submitting",
	StateSuccess:      "success",
	StateFailed:       "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Event drives a state change.
type Event int

const (
	EventReset Event = iota
	EventChooseClinic
	EventChooseDate
	EventSelectSlot
	EventEdit
	EventDraftComplete
	EventDraftIncomplete
	EventSubmit
	EventSubmitSucceeded
	EventSubmitFailed
)

var eventNames = [...]string{
	EventReset:           "reset",
	EventChooseClinic:    "choose_clinic",
	EventChooseDate:      "choose_date",
	EventSelectSlot:      "select_slot",
	EventEdit:            "edit",
	EventDraftComplete:   "draft_complete",
	EventDraftIncomplete: "draft_incomplete",
	EventSubmit:          "submit",
	EventSubmitSucceeded: "submit_succeeded",
	EventSubmitFailed:    "submit_failed",
}

func (e Event) String() string {
	if e < 0 || int(e) >= len(eventNames) {
		return fmt.Sprintf("event(%d)", int(e))
	}
	return eventNames[e]
}

type transitionKey struct {
	from  State
	event Event
}

// idle lists the states in which the user may change selections.
var idle = []State{
	StateEmpty, StateClinicChosen, StateDateChosen, StateSlotChosen,
	StateSubmittable, StateSuccess, StateFailed,
}

// transitions is the full table. Pairs missing from it are illegal.
var transitions = buildTransitions()

func buildTransitions() map[transitionKey]State {
	t := map[transitionKey]State{}
	t[transitionKey{StateSubmitting, EventReset}] = StateEmpty
	for _, s := range idle {
		t[transitionKey{s, EventReset}] = StateEmpty
		t[transitionKey{s, EventChooseClinic}] = StateClinicChosen
		t[transitionKey{s, EventEdit}] = StateSlotChosen
	}
	for _, s := range []State{StateClinicChosen, StateDateChosen, StateSlotChosen, StateSubmittable, StateSuccess, StateFailed} {
		t[transitionKey{s, EventChooseDate}] = StateDateChosen
	}
	for _, s := range []State{StateDateChosen, StateSlotChosen, StateSubmittable, StateFailed} {
		t[transitionKey{s, EventSelectSlot}] = StateSlotChosen
	}
	for _, s := range []State{StateSlotChosen, StateSubmittable, StateFailed} {
		t[transitionKey{s, EventDraftComplete}] = StateSubmittable
		t[transitionKey{s, EventDraftIncomplete}] = StateSlotChosen
	}
	t[transitionKey{StateSubmittable, EventSubmit}] = StateSubmitting
	t[transitionKey{StateFailed, EventSubmit}] = StateSubmitting
	t[transitionKey{StateSubmitting, EventSubmitSucceeded}] = StateSuccess
	t[transitionKey{StateSubmitting, EventSubmitFailed}] = StateFailed
	return t
}

// Next returns the state reached from s on e.
func Next(s State, e Event) (State, bool) {
	next, ok := transitions[transitionKey{s, e}]
	return next, ok
}

// IllegalTransitionError reports an event the current state does not accept.
type IllegalTransitionError struct {
	From  State
	Event Event
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("booking: %s is not allowed in state %s", e.Event, e.From)
}
