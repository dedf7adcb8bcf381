package failures

// remediations maps stage names to ordered suggestions surfaced when a run
// fails in that stage.
var remediations = map[string][]string{
	"ingestion": {
		"verify the source file exists and is readable",
		"check that the file extension matches a supported format",
	},
	"extraction": {
		"inspect the source document for malformed heading markers",
		"re-run with --no-retry to reproduce the failure quickly",
	},
	"transformation": {
		"review the extracted sections in the latest checkpoint payload",
		"resume from the extraction checkpoint after correcting the source",
	},
	"layout": {
		"set pipeline.layout explicitly instead of auto",
	},
	"validation": {
		"inspect the reported sections for empty bodies or deep nesting",
		"register a skip fallback if validation should not block the run",
	},
	"generation": {
		"confirm the output directory is writable and has free space",
		"resume from the validation checkpoint once resolved",
	},
}

var defaultRemediation = []string{
	"inspect the run log for the failing stage",
	"resume from the last good checkpoint once the cause is addressed",
}

// Remediation returns ordered remediation suggestions for a stage. Unknown
// stages get generic guidance.
func Remediation(stage string) []string {
	if suggestions, ok := remediations[stage]; ok {
		combined := make([]string, 0, len(suggestions)+len(defaultRemediation))
		combined = append(combined, suggestions...)
		combined = append(combined, defaultRemediation...)
		return combined
	}
	out := make([]string, len(defaultRemediation))
	copy(out, defaultRemediation)
	return out
}
