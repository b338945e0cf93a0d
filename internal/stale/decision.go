package stale

// Reason names the signal that concluded an evaluation.
type Reason string

const (
	ReasonMissingArtifact  Reason = "missing-artifact"
	ReasonMissingSource    Reason = "missing-source"
	ReasonSourceNewer      Reason = "source-newer"
	ReasonUnreadableSource Reason = "unreadable-source"
	ReasonHeaderNewer      Reason = "header-newer"
	ReasonUnreadableHeader Reason = "unreadable-header"
	ReasonUpToDate         Reason = "up-to-date"
)

// Decision is the outcome of a staleness evaluation.
type Decision struct {
	// Rebuild is true when the archive must be produced again
	Rebuild bool
	// Reason is the signal that decided the outcome
	Reason Reason
	// Path is the file that triggered the rebuild, if any
	Path string
	// Archive is the archive compared against, empty when none was found
	Archive string
}

func rebuild(reason Reason, path, archive string) Decision {
	return Decision{Rebuild: true, Reason: reason, Path: path, Archive: archive}
}
