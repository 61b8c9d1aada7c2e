package domain

import "time"

type TaskState string

const (
	StateQueued      TaskState = "queued"
	StateIngesting   TaskState = "ingesting"
	StateExtracting  TaskState = "extracting"
	StateSummarizing TaskState = "summarizing"
	StateClassifying TaskState = "classifying"
	StateDone        TaskState = "done"
	StateFailed      TaskState = "failed"
)

func (s TaskState) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Stage is a progress checkpoint inside a task lifecycle.
type Stage string

const (
	StageQueued         Stage = "QUEUED"
	StageIngestStart    Stage = "INGEST_START"
	StageIngestDone     Stage = "INGEST_DONE"
	StageExtractStart   Stage = "EXTRACT_START"
	StageExtractDone    Stage = "EXTRACT_DONE"
	StageSummarizeStart Stage = "SUMMARIZE_START"
	StageSummarizeDone  Stage = "SUMMARIZE_DONE"
	StageClassifyStart  Stage = "CLASSIFY_START"
	StageDone           Stage = "DONE"
	StageFailed         Stage = "FAILED"
)

type stageInfo struct {
	percent int
	state   TaskState
}

var stageTable = map[Stage]stageInfo{
	StageQueued:         {0, StateQueued},
	StageIngestStart:    {10, StateIngesting},
	StageIngestDone:     {40, StateIngesting},
	StageExtractStart:   {45, StateExtracting},
	StageExtractDone:    {60, StateExtracting},
	StageSummarizeStart: {70, StateSummarizing},
	StageSummarizeDone:  {90, StateSummarizing},
	StageClassifyStart:  {92, StateClassifying},
	StageDone:           {100, StateDone},
	StageFailed:         {0, StateFailed},
}

// Percent returns the table percent for the stage. FAILED carries no percent of its own.
func (s Stage) Percent() int {
	return stageTable[s].percent
}

func (s Stage) State() TaskState {
	info, ok := stageTable[s]
	if !ok {
		return StateQueued
	}
	return info.state
}

// Progress is the status record written for a task on every stage transition.
type Progress struct {
	TaskID     string     `json:"taskId"`
	BatchID    string     `json:"batchId,omitempty"`
	State      TaskState  `json:"state"`
	Stage      Stage      `json:"stage"`
	Percent    int        `json:"percent"`
	ETASeconds float64    `json:"etaSeconds"`
	FinishAt   *time.Time `json:"finishAt,omitempty"`
	Filename   string     `json:"filename,omitempty"`
	Message    string     `json:"message,omitempty"`
	Attempt    int        `json:"attempt,omitempty"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// TaskMessage is the queue payload for one submitted unit of work.
type TaskMessage struct {
	TaskID      string     `json:"taskId"`
	Source      SourceFile `json:"source"`
	SubmittedAt time.Time  `json:"submittedAt"`
}

type LLMMeta struct {
	Attempts       int     `json:"attempts"`
	LastReason     string  `json:"lastReason,omitempty"`
	ElapsedSeconds float64 `json:"elapsedSeconds"`
	Mode           string  `json:"mode"`
}

// TaskResult is the persisted outcome of a task. It is rewritten as a whole on retry.
type TaskResult struct {
	TaskID           string             `json:"taskId"`
	BatchID          string             `json:"batchId"`
	OriginalFilename string             `json:"originalFilename"`
	StoredFilename   string             `json:"storedFilename,omitempty"`
	StoredPath       string             `json:"storedPath,omitempty"`
	ContentHash      string             `json:"contentHash"`
	Route            Route              `json:"route,omitempty"`
	Summary          string             `json:"summary"`
	SummaryTwoLine   string             `json:"summaryTwoLine"`
	Title            string             `json:"title,omitempty"`
	Bullets          []string           `json:"bullets,omitempty"`
	Category         Category           `json:"category"`
	CategorySource   CategorySource     `json:"categorySource"`
	LLMOk            bool               `json:"llmOk"`
	LLMMeta          LLMMeta            `json:"llmMeta"`
	Pages            int                `json:"pages"`
	ExtractionStats  ExtractionStats    `json:"extractionStats"`
	Timings          map[string]float64 `json:"timings"`
	Success          bool               `json:"success"`
	Error            string             `json:"error,omitempty"`
	Committed        bool               `json:"committed"`
	CompletedAt      time.Time          `json:"completedAt"`
}

// BatchStatus aggregates task progress for one batch.
type BatchStatus struct {
	BatchID  string            `json:"batchId"`
	Total    int               `json:"total"`
	Done     int               `json:"done"`
	Progress float64           `json:"progress"`
	Counts   map[TaskState]int `json:"counts"`
	Tasks    []Progress        `json:"tasks"`
}

// BatchMeta is the batch manifest written at submission time.
type BatchMeta struct {
	BatchID   string    `json:"batchId"`
	TaskIDs   []string  `json:"taskIds"`
	Files     []string  `json:"files"`
	CreatedAt time.Time `json:"createdAt"`
}
