package escalation

import "strings"

const (
	actionCompletedLabelConstant  = "completed"
	actionTerminatedLabelConstant = "terminated"
	actionKilledLabelConstant     = "killed"
	actionSeparatorConstant       = "|"
)

// Action is a bitmask of the signals WaitOrTerminate sent.
type Action int

// Action values. ActionCompleted is the empty mask.
const (
	ActionCompleted  Action = 0
	ActionTerminated Action = 1
	ActionKilled     Action = 2
)

// Has reports whether every bit of flag is set.
func (action Action) Has(flag Action) bool {
	return action&flag == flag
}

// String renders the mask as completed, terminated, killed or terminated|killed.
func (action Action) String() string {
	if action == ActionCompleted {
		return actionCompletedLabelConstant
	}
	var labels []string
	if action.Has(ActionTerminated) {
		labels = append(labels, actionTerminatedLabelConstant)
	}
	if action.Has(ActionKilled) {
		labels = append(labels, actionKilledLabelConstant)
	}
	return strings.Join(labels, actionSeparatorConstant)
}

// MarshalText renders the mask for JSON and YAML output.
func (action Action) MarshalText() ([]byte, error) {
	return []byte(action.String()), nil
}
