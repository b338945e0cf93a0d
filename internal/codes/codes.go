package codes

// Process exit codes of ccb
const (
	Success           = 0
	Failure           = 1
	RebuildRequired   = 2
	AmbiguousArtifact = 3
	CompileFailed     = 4
)

// ExitCodes maps ccb exit codes to their descriptions
var ExitCodes = map[int]string{
	Success:           "Success",
	Failure:           "General failure",
	RebuildRequired:   "One or more archives are out of date",
	AmbiguousArtifact: "More than one archive matches an output name",
	CompileFailed:     "Compiler or archiver failed",
}

// IsSuccess returns true if the exit code indicates success
func IsSuccess(code int) bool {
	return code == Success
}

// GetErrorMessage returns the message for a given exit code, or a generic message if unknown
func GetErrorMessage(code int) string {
	if msg, ok := ExitCodes[code]; ok {
		return msg
	}

	return "Unknown error"
}
