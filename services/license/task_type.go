package license

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	TaskLicenseValidated        = "license:validated"
	TaskMachineCreated          = "machine:created"
	TaskLicenseUsageIncremented = "license:usage_incremented"
	TaskArtifactDownloaded      = "artifact:downloaded"
	TaskReleaseDownloaded       = "release:downloaded"
	TaskReleaseUpgraded         = "release:upgraded"
)

// triggerByTask is the static dispatch table from event kind to expiry
// trigger. Every subscribed event maps to exactly one trigger.
var triggerByTask = map[string]TriggerKind{
	TaskLicenseValidated:        TriggerFirstValidation,
	TaskMachineCreated:          TriggerFirstActivation,
	TaskLicenseUsageIncremented: TriggerFirstUse,
	TaskArtifactDownloaded:      TriggerFirstDownload,
	TaskReleaseDownloaded:       TriggerFirstDownload,
	TaskReleaseUpgraded:         TriggerFirstDownload,
}

// EventPayload is carried by every licensing domain event.
type EventPayload struct {
	AccountID string `json:"account_id"`
	LicenseID string `json:"license_id"`
	TraceID   string `json:"trace_id,omitempty"`
}

// NewEvent builds the asynq task for a licensing domain event.
func NewEvent(taskType string, p EventPayload) *asynq.Task {
	payload, _ := json.Marshal(p)
	return asynq.NewTask(taskType, payload, asynq.MaxRetry(5), asynq.Queue("default"))
}
