package dispatch

import (
	"github.com/dmitrymomot/notifykit/pkg/device"
	"github.com/dmitrymomot/notifykit/pkg/push"
	"github.com/dmitrymomot/notifykit/pkg/queue"
)

// JobName keys the dispatch handler in the queue worker. All dispatch
// queues share one handler; the job type travels in the payload.
const JobName = "notifications.dispatch"

// JobType classifies a notification job and decides its queue placement.
type JobType string

const (
	JobTypeTimetable    JobType = "timetable"
	JobTypeCustom       JobType = "custom"
	JobTypeAnnouncement JobType = "announcement"
)

// Valid checks whether the job type is one of the known kinds.
func (t JobType) Valid() bool {
	switch t {
	case JobTypeTimetable, JobTypeCustom, JobTypeAnnouncement:
		return true
	default:
		return false
	}
}

// QueueName returns the queue this job type is routed to.
func (t JobType) QueueName() string {
	return "notifications:" + string(t)
}

// QueuePriority returns the claim priority for the job type. Timetable
// changes and announcements are time-sensitive and overtake custom sends.
func (t JobType) QueuePriority() queue.Priority {
	if t == JobTypeCustom {
		return queue.PriorityNormal
	}
	return queue.PriorityHigh
}

// QueueNames lists all dispatch queues, most urgent first. Workers pass
// this to queue.WithQueues so claim order matches urgency.
func QueueNames() []string {
	return []string{
		JobTypeTimetable.QueueName(),
		JobTypeAnnouncement.QueueName(),
		JobTypeCustom.QueueName(),
	}
}

// Job describes one notification delivery unit.
type Job struct {
	Type         JobType           `json:"type"`
	Tokens       []string          `json:"tokens"`
	Platform     device.Platform   `json:"platform"`
	Payload      push.Payload      `json:"payload"`
	DepartmentID *string           `json:"department_id,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Validate checks the job before it is queued or processed.
func (j Job) Validate() error {
	if !j.Type.Valid() {
		return ErrInvalidJobType
	}
	if len(j.Tokens) == 0 {
		return ErrNoTokens
	}
	switch j.Platform {
	case device.PlatformIOS, device.PlatformAndroid, device.PlatformWeb:
		return nil
	default:
		return ErrInvalidPlatform
	}
}

// devices expands the token list into device records for the router.
func (j Job) devices() []device.Device {
	devices := make([]device.Device, len(j.Tokens))
	for i, token := range j.Tokens {
		devices[i] = device.Device{Token: token, Platform: j.Platform}
	}
	return devices
}
