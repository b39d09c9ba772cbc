package conversation

import (
	"suburbiq/internal/model"
	"suburbiq/internal/schema"
	"suburbiq/internal/utils"
)

// MatchOption picks the pending option the utterance refers to. Each of
// suburb, LGA and state (abbreviation or full name) that the utterance
// mentions scores one point; the single highest scorer wins and ties match
// nothing.
func MatchOption(utterance string, options []model.ClarificationOption, registry *schema.Registry) (model.ClarificationOption, bool) {
	best, bestScore, tied := -1, 0, false

	for i, opt := range options {
		score := 0
		if utils.FuzzyMatchTerm(utterance, opt.Suburb, nil) {
			score++
		}
		if opt.LGA != "" && opt.LGA != opt.Suburb && utils.FuzzyMatchTerm(utterance, opt.LGA, nil) {
			score++
		}
		if opt.State != "" && utils.FuzzyMatchTerm(utterance, opt.State, registry.StateNames) {
			score++
		}

		switch {
		case score > bestScore:
			best, bestScore, tied = i, score, false
		case score == bestScore && score > 0:
			tied = true
		}
	}

	if best < 0 || tied {
		return model.ClarificationOption{}, false
	}
	return options[best], true
}
