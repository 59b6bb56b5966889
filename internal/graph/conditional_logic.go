package graph

import "github.com/dyike/ThesisGo/consts"

// NextStage is the only routing decision of a run: advance to the fixed next
// stage, or end after critique. An unknown or empty stage starts at research.
func NextStage(current consts.Stage) consts.Stage {
	if current == consts.StageEnd {
		return consts.StageEnd
	}
	for i, s := range consts.Stages {
		if s != current {
			continue
		}
		if i+1 < len(consts.Stages) {
			return consts.Stages[i+1]
		}
		return consts.StageEnd
	}
	return consts.Stages[0]
}
