package models

import (
	"fmt"
	"time"

	"github.com/dyike/ThesisGo/consts"
)

// StageOutput is the text one stage produced and when it was recorded.
type StageOutput struct {
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// AnalysisState accumulates the outputs of one analysis run. Each stage key
// is written at most once.
type AnalysisState struct {
	RunID          string                        `json:"run_id"`
	Company        string                        `json:"company"`
	Stages         map[consts.Stage]*StageOutput `json:"stages"`
	ToolsUsed      []string                      `json:"tools_used"`
	Errors         []string                      `json:"errors"`
	CurrentStep    string                        `json:"current_step"`
	Confidence     float64                       `json:"confidence"`
	Recommendation string                        `json:"recommendation"`
	Sources        []*CrawledPage                `json:"sources,omitempty"`
	Revision       *StageOutput                  `json:"revision,omitempty"`
	StartedAt      time.Time                     `json:"started_at"`
	FinishedAt     time.Time                     `json:"finished_at"`
	recorded       map[consts.Stage]bool
}

func NewAnalysisState(runID, company string) *AnalysisState {
	s := &AnalysisState{
		RunID:     runID,
		Company:   company,
		Stages:    make(map[consts.Stage]*StageOutput, len(consts.Stages)),
		ToolsUsed: []string{},
		Errors:    []string{},
		StartedAt: time.Now(),
		recorded:  make(map[consts.Stage]bool, len(consts.Stages)),
	}
	for _, stage := range consts.Stages {
		s.Stages[stage] = &StageOutput{}
	}
	return s
}

// Record stores a stage's output and marks the stage completed.
func (s *AnalysisState) Record(stage consts.Stage, content, tool string) error {
	if s.recorded == nil {
		s.recorded = map[consts.Stage]bool{}
	}
	if s.recorded[stage] {
		return fmt.Errorf("stage %s already recorded", stage)
	}
	s.recorded[stage] = true
	s.Stages[stage] = &StageOutput{Content: content, Timestamp: time.Now()}
	if tool != "" {
		s.ToolsUsed = append(s.ToolsUsed, tool)
	}
	s.CurrentStep = string(stage) + "_completed"
	return nil
}

// Fail appends a stage failure to the error log.
func (s *AnalysisState) Fail(stage consts.Stage, err error) {
	s.Errors = append(s.Errors, fmt.Sprintf("%s error: %v", stage.Title(), err))
}

// Output returns the recorded content for a stage, or "".
func (s *AnalysisState) Output(stage consts.Stage) string {
	if out, ok := s.Stages[stage]; ok && out != nil {
		return out.Content
	}
	return ""
}

// RevisedThesis returns the post-critique rewrite, or "" when none was made.
func (s *AnalysisState) RevisedThesis() string {
	if s.Revision == nil {
		return ""
	}
	return s.Revision.Content
}

// Completed counts stages with non-empty output.
func (s *AnalysisState) Completed() int {
	n := 0
	for _, stage := range consts.Stages {
		if s.Output(stage) != "" {
			n++
		}
	}
	return n
}

// RunReport is the top-level result of an analysis run.
type RunReport struct {
	Status         string         `json:"status"`
	Error          string         `json:"error,omitempty"`
	State          *AnalysisState `json:"state,omitempty"`
	StepsCompleted int            `json:"steps_completed"`
	TotalSteps     int            `json:"total_steps"`
}
