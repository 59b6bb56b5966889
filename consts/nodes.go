package consts

// Stage identifies one agent stage of an analysis run.
type Stage string

const (
	StageResearch  Stage = "research"
	StageSentiment Stage = "sentiment"
	StageValuation Stage = "valuation"
	StageThesis    Stage = "thesis"
	StageCritique  Stage = "critique"

	// StageEnd is the terminal marker returned after the last stage.
	StageEnd Stage = "end"
)

// Stages is the fixed execution order.
var Stages = []Stage{StageResearch, StageSentiment, StageValuation, StageThesis, StageCritique}

// Graph node keys.
const (
	NodeResearch  = "research_agent"
	NodeSentiment = "sentiment_agent"
	NodeValuation = "valuation_agent"
	NodeThesis    = "thesis_agent"
	NodeCritique  = "critique_agent"
	NodeFinalize  = "finalize"
)

// NodeFor maps a stage to its graph node key.
func NodeFor(s Stage) string {
	switch s {
	case StageResearch:
		return NodeResearch
	case StageSentiment:
		return NodeSentiment
	case StageValuation:
		return NodeValuation
	case StageThesis:
		return NodeThesis
	case StageCritique:
		return NodeCritique
	}
	return NodeFinalize
}

// Title is the display name of a stage.
func (s Stage) Title() string {
	switch s {
	case StageResearch:
		return "Research"
	case StageSentiment:
		return "Sentiment"
	case StageValuation:
		return "Valuation"
	case StageThesis:
		return "Thesis"
	case StageCritique:
		return "Critique"
	}
	return string(s)
}
