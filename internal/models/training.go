package models

import "time"

// Stage is a training run stage.
type Stage string

const (
	StageIdle       Stage = "idle"
	StageScanning   Stage = "scanning"
	StageExtracting Stage = "extracting"
	StageEmbedding  Stage = "embedding"
	StageWriting    Stage = "writing"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

// Terminal reports whether the stage ends a run.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageFailed
}

// order ranks stages so transitions can be checked for monotonicity.
var stageOrder = map[Stage]int{
	StageIdle:       0,
	StageScanning:   1,
	StageExtracting: 2,
	StageEmbedding:  3,
	StageWriting:    4,
	StageDone:       5,
	StageFailed:     5,
}

// Before reports whether s comes strictly before other in a run.
func (s Stage) Before(other Stage) bool {
	return stageOrder[s] < stageOrder[other]
}

// TrainingState is the snapshot served by GET /train/status.
type TrainingState struct {
	IsTraining bool       `json:"is_training"`
	Stage      Stage      `json:"stage"`
	Progress   int        `json:"progress"`
	Message    string     `json:"message"`
	RunID      string     `json:"run_id,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Warnings   []string   `json:"warnings,omitempty"`
}

// IndexInfo describes the live index. It is replaced wholesale on publish.
type IndexInfo struct {
	VectorCount    int        `json:"vectors_indexed"`
	EmbeddingModel string     `json:"embedding_model"`
	LLMModel       string     `json:"llm_model"`
	LastTrainedAt  *time.Time `json:"last_trained_at"`
}

// ServiceInfo is the body of GET /info.
type ServiceInfo struct {
	PDFCount       int64         `json:"pdf_count"`
	VectorsIndexed int           `json:"vectors_indexed"`
	LastTrainedAt  *time.Time    `json:"last_trained_at"`
	EmbeddingModel string        `json:"embedding_model"`
	LLMModel       string        `json:"llm_model"`
	DiskUsageBytes int64         `json:"disk_usage_bytes"`
	Training       TrainingState `json:"training"`
}
