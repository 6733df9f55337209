package license

import (
	"time"

	"licensing-controlplane/services/policy"
)

// TriggerKind enumerates the lifecycle events that may assign a license's
// expiry for the first time.
type TriggerKind int

const (
	TriggerCreation TriggerKind = iota
	TriggerFirstValidation
	TriggerFirstActivation
	TriggerFirstUse
	TriggerFirstDownload
)

func (k TriggerKind) String() string {
	switch k {
	case TriggerCreation:
		return "creation"
	case TriggerFirstValidation:
		return "first_validation"
	case TriggerFirstActivation:
		return "first_activation"
	case TriggerFirstUse:
		return "first_use"
	case TriggerFirstDownload:
		return "first_download"
	default:
		return "unknown"
	}
}

// enabled reports whether the policy gates this trigger on. The five flags
// are independent; nothing assumes only one is set.
func (k TriggerKind) enabled(pol *policy.Policy) bool {
	switch k {
	case TriggerCreation:
		return pol.ExpireFromCreation
	case TriggerFirstValidation:
		return pol.ExpireFromFirstValidation
	case TriggerFirstActivation:
		return pol.ExpireFromFirstActivation
	case TriggerFirstUse:
		return pol.ExpireFromFirstUse
	case TriggerFirstDownload:
		return pol.ExpireFromFirstDownload
	default:
		return false
	}
}

// ApplyTrigger assigns expiry = now + duration when the trigger is gated on,
// a duration is configured, and expiry is still unset. Idempotent: a second
// invocation observes the set expiry and no-ops, so the first satisfied
// trigger wins. Reports whether it fired.
func ApplyTrigger(lic *License, pol *policy.Policy, kind TriggerKind, now time.Time) bool {
	if lic.Expiry != nil {
		return false
	}

	d, ok := pol.ExpiryDuration()
	if !ok {
		return false
	}
	if !kind.enabled(pol) {
		return false
	}

	expiry := now.Add(d)
	lic.Expiry = &expiry
	return true
}

// Renew extends the license by one policy duration, from the current expiry
// when set and from now otherwise. Allowed regardless of trigger state.
// Reports whether a duration was available to apply.
func Renew(lic *License, pol *policy.Policy, now time.Time) bool {
	d, ok := pol.ExpiryDuration()
	if !ok {
		return false
	}

	base := now
	if lic.Expiry != nil {
		base = *lic.Expiry
	}
	expiry := base.Add(d)
	lic.Expiry = &expiry
	return true
}

// Transfer re-times the license against its new policy: expiry resets to
// now + duration when the policy defines one and asks for a reset on
// transfer, and clears otherwise. An explicit operator action, not a
// trigger.
func Transfer(lic *License, newPol *policy.Policy, now time.Time) {
	lic.PolicyID = newPol.ID

	d, ok := newPol.ExpiryDuration()
	if ok && newPol.TransferResetsExpiry {
		expiry := now.Add(d)
		lic.Expiry = &expiry
		return
	}
	lic.Expiry = nil
}
