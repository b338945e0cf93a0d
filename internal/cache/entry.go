package cache

import "time"

// Entry records the most recent build of a target
type Entry struct {
	// RunID identifies the ccb invocation that wrote this entry
	RunID string `json:"run_id"`

	// Target is the logical output name
	Target string `json:"target"`

	// Archive is the absolute path of lib<target>.a
	Archive string `json:"archive"`

	// Fingerprint is computed from compiler, flags, include directories and source list
	Fingerprint string `json:"fingerprint"`

	// Reason is the staleness reason that led to this build
	Reason string `json:"reason"`

	// Rebuilt is false when the archive was found up to date
	Rebuilt bool `json:"rebuilt"`

	// Success indicates if the build was successful
	Success bool `json:"success"`

	// Duration of evaluation plus compilation
	Duration time.Duration `json:"duration"`

	// Timestamp when this entry was created
	Timestamp time.Time `json:"timestamp"`
}
