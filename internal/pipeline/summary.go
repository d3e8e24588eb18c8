package pipeline

import "time"

// Counter is one operation-specific figure of a run summary.
type Counter struct {
	Key   string
	Value int
}

// Summary aggregates the outcome of one run.
type Summary struct {
	RunID     string
	Operation Operation
	Source    string
	Dest      string
	StartedAt time.Time
	Elapsed   time.Duration

	Discovered      int
	Converted       int
	Skipped         int
	Failed          int
	Optimized       int
	IgnoredArchives int
	IgnoredCues     int
	ArchiveErrors   int
	ErrorCount      int

	Cancelled bool
	CleanedUp bool
	Items     []*Item
}

// Counters returns the figures reported for the summary's operation, under
// the names the operation uses for them.
func (s Summary) Counters() []Counter {
	var out []Counter
	switch s.Operation {
	case PatchXboxISO:
		out = []Counter{
			{"convertedGames", s.Converted},
			{"optimizedGames", s.Optimized},
			{"ignoredArchives", s.IgnoredArchives},
			{"skippedGames", s.Skipped},
		}
	case ConvertToCHD, ConvertToRVZ:
		out = []Counter{{"convertedGames", s.Converted}, {"skippedGames", s.Skipped}}
	case ExtractCHD:
		out = []Counter{{"extractedGames", s.Converted}, {"skippedGames", s.Skipped}}
	case CompressSquashFS:
		out = []Counter{{"compressedFolders", s.Converted}, {"skippedFolders", s.Skipped}}
	case ExtractSquashFS:
		out = []Counter{{"extractedFiles", s.Converted}, {"skippedFiles", s.Skipped}}
	case MergeBinCue:
		out = []Counter{
			{"mergedGames", s.Converted},
			{"skippedGames", s.Skipped},
			{"ignoredCues", s.IgnoredCues},
		}
	}
	return append(out, Counter{"errorCount", s.ErrorCount})
}

// Counter returns the value of the named counter, or zero.
func (s Summary) Counter(key string) int {
	for _, c := range s.Counters() {
		if c.Key == key {
			return c.Value
		}
	}
	return 0
}

func (s *Summary) record(it *Item) {
	switch it.Status {
	case StatusSucceeded:
		s.Converted++
	case StatusSkipped:
		s.Skipped++
	case StatusFailed:
		s.Failed++
		s.ErrorCount++
	}
}
