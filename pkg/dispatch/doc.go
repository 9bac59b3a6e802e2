// Package dispatch connects the job queue to the push delivery pipeline.
//
// Producers enqueue a Job describing what to send and to whom; the job type
// decides the queue and its claim priority, so timetable changes and
// announcements always overtake bulk custom notifications. Workers hand
// claimed jobs to the Dispatcher, which delivers through the push router,
// purges device tokens the providers reported as permanently invalid, and
// appends exactly one delivery-log record per attempt outcome.
//
// A dispatch attempt whose deliveries all failed with transient codes
// returns an error so the queue's retry policy re-runs it; partial delivery
// is a success and is not retried, matching at-least-once semantics per
// job rather than per device.
package dispatch
