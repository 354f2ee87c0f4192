// Package mode implements the configuration-driven activation machine
// (C13): ECHO/STORE/FULL base modes plus the EXTERNAL_SYNC, JSONL_ALWAYS,
// JSONL_FALLBACK and REPLAY_ENABLED toggles.
package mode

const (
	Echo  = "ECHO"
	Store = "STORE"
	Full  = "FULL"
)

// Toggles are the orthogonal configuration switches layered on top of the
// base mode.
type Toggles struct {
	ExternalSync  bool
	JSONLAlways   bool
	JSONLFallback bool
	ReplayEnabled bool
}

// Plan is the resolved set of active subsystems for one mode+toggle
// combination.
type Plan struct {
	Mode string

	// DedupAndSummary activates C2 (duplicate window) and C3 (summary
	// ring).
	DedupAndSummary bool

	// ForwardQueue activates C4+C10 (forward queue and its worker).
	ForwardQueue bool

	// SpoolWrites activates C5 (spool writer) for any accepted /ingest
	// event; JSONLAlways/JSONLFallback further decide *when* it's used.
	SpoolWrites bool

	// Replay activates C6/C7/C11 (spool reader, replay state, replay
	// worker).
	Replay bool
}

// Resolve builds a Plan from baseMode and toggles, normalising an
// unrecognised mode to FULL (the spec's default OPS_MODE).
func Resolve(baseMode string, toggles Toggles) Plan {
	switch baseMode {
	case Echo:
		return Plan{Mode: Echo}
	case Store:
		return Plan{Mode: Store, DedupAndSummary: true}
	case Full:
		return Plan{
			Mode:            Full,
			DedupAndSummary: true,
			ForwardQueue:    toggles.ExternalSync,
			SpoolWrites:     toggles.JSONLAlways || toggles.JSONLFallback,
			Replay:          toggles.ReplayEnabled,
		}
	default:
		return Resolve(Full, toggles)
	}
}
