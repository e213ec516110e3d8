package model

// progressByLabel maps well-known lifecycle labels to their completion percentage.
// Values increase along the order in which stages report them.
var progressByLabel = map[JobStatus]int{
	JobStatusInitializing:     0,
	JobStatusScraping:         25,
	JobStatusAnalyzing:        50,
	JobStatusGeneratingReport: 75,
	JobStatusCompleted:        100,
}

// ProgressFor returns the percentage for a label. Unknown labels map to 0 so new
// stage labels never break polling clients.
func ProgressFor(label JobStatus) int {
	return progressByLabel[label]
}

// isBehind reports whether label is a known label below the given progress.
func isBehind(label JobStatus, progress int) bool {
	p, ok := progressByLabel[label]
	return ok && p < progress
}
