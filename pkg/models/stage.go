package models

// Stage is a pipeline stage. The DAG is linear and fixed.
type Stage string

// Pipeline stages in execution order.
const (
	StageInitialization Stage = "initialization"
	StageExpansion      Stage = "expansion"
	StageUniverse       Stage = "universe"
	StageClustering     Stage = "clustering"
	StageScoring        Stage = "scoring"
	StageRoadmap        Stage = "roadmap"
	StageExport         Stage = "export"
	StageCleanup        Stage = "cleanup"
)

// StageOrder is the fixed execution order of the pipeline.
var StageOrder = []Stage{
	StageInitialization,
	StageExpansion,
	StageUniverse,
	StageClustering,
	StageScoring,
	StageRoadmap,
	StageExport,
	StageCleanup,
}

// StageWeights are the per-stage contributions to overall run progress,
// in percent. They sum to 100; cleanup is weightless (best-effort).
var StageWeights = map[Stage]float64{
	StageInitialization: 5,
	StageExpansion:      40,
	StageUniverse:       25,
	StageClustering:     15,
	StageScoring:        8,
	StageRoadmap:        5,
	StageExport:         2,
	StageCleanup:        0,
}

// Index returns the position of the stage in StageOrder, or -1 when unknown.
func (s Stage) Index() int {
	for i, stage := range StageOrder {
		if stage == s {
			return i
		}
	}
	return -1
}

// Next returns the stage following s, or empty when s is last or unknown.
func (s Stage) Next() Stage {
	i := s.Index()
	if i < 0 || i+1 >= len(StageOrder) {
		return ""
	}
	return StageOrder[i+1]
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	return s.Index() >= 0
}
