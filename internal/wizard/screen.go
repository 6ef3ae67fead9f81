package wizard

import (
	"errors"
	"fmt"
)

// Screen is one step of the guided flow. Exactly one is current.
type Screen int

const (
	ScreenLanguage Screen = iota
	ScreenContact
	ScreenDetails
	ScreenReview
	ScreenSuccess
)

// Screens lists every screen in flow order.
func Screens() []Screen {
	return []Screen{ScreenLanguage, ScreenContact, ScreenDetails, ScreenReview, ScreenSuccess}
}

func (s Screen) String() string {
	switch s {
	case ScreenLanguage:
		return "language"
	case ScreenContact:
		return "contact"
	case ScreenDetails:
		return "details"
	case ScreenReview:
		return "review"
	case ScreenSuccess:
		return "success"
	default:
		return fmt.Sprintf("screen(%d)", int(s))
	}
}

// Step returns the 1-based position shown in the progress indicator.
func (s Screen) Step() int {
	return int(s) + 1
}

// Action is a user or system event that may move the flow.
type Action int

const (
	ActionContinue Action = iota
	ActionBack
	ActionSubmitSucceeded
	ActionReset
)

// Actions lists every action.
func Actions() []Action {
	return []Action{ActionContinue, ActionBack, ActionSubmitSucceeded, ActionReset}
}

func (a Action) String() string {
	switch a {
	case ActionContinue:
		return "continue"
	case ActionBack:
		return "back"
	case ActionSubmitSucceeded:
		return "submit-succeeded"
	case ActionReset:
		return "reset"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// ErrInvalidTransition is returned for any (screen, action) pair outside the
// transition table.
var ErrInvalidTransition = errors.New("wizard: invalid transition")

// transition is total over (Screen, Action): it either names the next screen
// or rejects the pair. It performs no validation of form data.
func transition(from Screen, action Action) (Screen, error) {
	switch {
	case from == ScreenLanguage && action == ActionContinue:
		return ScreenContact, nil
	case from == ScreenContact && action == ActionContinue:
		return ScreenDetails, nil
	case from == ScreenDetails && action == ActionContinue:
		return ScreenReview, nil
	case from == ScreenReview && action == ActionSubmitSucceeded:
		return ScreenSuccess, nil
	case from == ScreenSuccess && action == ActionReset:
		return ScreenLanguage, nil
	case from == ScreenContact && action == ActionBack:
		return ScreenLanguage, nil
	case from == ScreenDetails && action == ActionBack:
		return ScreenContact, nil
	case from == ScreenReview && action == ActionBack:
		return ScreenDetails, nil
	}
	return from, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, action, from)
}
