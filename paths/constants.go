package paths

// Roots of the collection id namespace. Path managers build every id
// under one of these.
const (
	CLIENTS_ROOT = "/clients"
	HUNTS_ROOT   = "/hunts"

	// Daily bucketed server metrics.
	STATS_ROOT = "/stats"

	// Scratch space for the bench command.
	BENCHMARKS_ROOT = "/benchmarks"
)
