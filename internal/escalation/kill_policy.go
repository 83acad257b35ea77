package escalation

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultTerminateToKill is the grace period between terminate and kill
	// used by DefaultKillPolicy.
	DefaultTerminateToKill = 1500 * time.Millisecond

	killPolicyNeverLabelConstant       = "none"
	killPolicyNeverAliasConstant       = "never"
	killPolicyImmediateLabelConstant   = "0"
	killPolicyInvalidTemplateConstant  = "invalid kill policy %q: expected none, 0, a duration or a number of seconds"
	killPolicyNegativeTemplateConstant = "invalid kill policy %q: duration must not be negative"
)

// KillPolicy decides what WaitOrTerminate does once the primary wait is
// spent. The zero value never kills.
type KillPolicy struct {
	kills bool
	delay time.Duration
}

// NeverKill sends terminate only, waits one poll interval and reports
// whatever status is then available.
func NeverKill() KillPolicy {
	return KillPolicy{}
}

// KillImmediately skips terminate and kills at once.
func KillImmediately() KillPolicy {
	return KillPolicy{kills: true}
}

// KillAfter sends terminate and kills if the process is still running after
// delay. A non-positive delay is KillImmediately.
func KillAfter(delay time.Duration) KillPolicy {
	if delay <= 0 {
		return KillImmediately()
	}
	return KillPolicy{kills: true, delay: delay}
}

// DefaultKillPolicy kills DefaultTerminateToKill after terminating.
func DefaultKillPolicy() KillPolicy {
	return KillAfter(DefaultTerminateToKill)
}

// ParseKillPolicy accepts "none" or "never", "0", a Go duration such as
// "1500ms", or a number of seconds such as "1.5".
func ParseKillPolicy(value string) (KillPolicy, error) {
	normalizedValue := strings.ToLower(strings.TrimSpace(value))
	switch normalizedValue {
	case killPolicyNeverLabelConstant, killPolicyNeverAliasConstant:
		return NeverKill(), nil
	case killPolicyImmediateLabelConstant:
		return KillImmediately(), nil
	}

	delay, durationError := time.ParseDuration(normalizedValue)
	if durationError != nil {
		seconds, secondsError := strconv.ParseFloat(normalizedValue, 64)
		if secondsError != nil {
			return KillPolicy{}, fmt.Errorf(killPolicyInvalidTemplateConstant, value)
		}
		delay = time.Duration(seconds * float64(time.Second))
	}
	if delay < 0 {
		return KillPolicy{}, fmt.Errorf(killPolicyNegativeTemplateConstant, value)
	}
	return KillAfter(delay), nil
}

// Kills reports whether the policy ever sends kill.
func (policy KillPolicy) Kills() bool {
	return policy.kills
}

// Immediate reports whether the policy kills without terminating first.
func (policy KillPolicy) Immediate() bool {
	return policy.kills && policy.delay == 0
}

// Delay returns the grace period between terminate and kill.
func (policy KillPolicy) Delay() time.Duration {
	return policy.delay
}

// String renders the policy in the form ParseKillPolicy accepts.
func (policy KillPolicy) String() string {
	switch {
	case !policy.kills:
		return killPolicyNeverLabelConstant
	case policy.delay == 0:
		return killPolicyImmediateLabelConstant
	default:
		return policy.delay.String()
	}
}

// MarshalText implements encoding.TextMarshaler.
func (policy KillPolicy) MarshalText() ([]byte, error) {
	return []byte(policy.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler so configuration
// decoding can produce policies directly.
func (policy *KillPolicy) UnmarshalText(text []byte) error {
	parsedPolicy, parseError := ParseKillPolicy(string(text))
	if parseError != nil {
		return parseError
	}
	*policy = parsedPolicy
	return nil
}
