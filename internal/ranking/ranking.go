// Package ranking scores registry trials against an extraction and orders
// them for display.
package ranking

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"

	"github.com/sells-group/trial-chat/internal/model"
)

const (
	// DefaultMaxResults caps the ranked list. Zero means no cap.
	DefaultMaxResults = 5

	baseScore         = 50.0
	conditionWeight   = 40.0
	recruitingBonus   = 10.0
	earlyPhaseBonus   = 5.0
	ageMatchBonus     = 5.0
	maxScore          = 100
	fallbackReason    = "Matched search criteria"
	recruitingReason  = "Currently recruiting"
	ageMatchReason    = "Matches your age range"
	conditionReasonFx = "Matches condition: "
)

// Ranker scores and truncates trial lists.
type Ranker struct {
	// MaxResults caps the output length. Zero or negative disables the cap.
	MaxResults int
}

// New returns a Ranker with the given cap.
func New(maxResults int) *Ranker {
	return &Ranker{MaxResults: maxResults}
}

// Rank scores trials with DefaultMaxResults.
func Rank(trials []model.Trial, e model.ExtractedEntities) []model.RankedTrial {
	return New(DefaultMaxResults).Rank(trials, e)
}

// Rank scores every trial, sorts by descending score (ties keep input
// order), and truncates to MaxResults. It performs no I/O.
func (r *Ranker) Rank(trials []model.Trial, e model.ExtractedEntities) []model.RankedTrial {
	fold := cases.Fold()
	conds := make([]foldedCondition, 0, len(e.Conditions))
	for _, c := range e.Conditions {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			continue
		}
		conds = append(conds, foldedCondition{Condition: c, folded: fold.String(name)})
	}

	ranked := make([]model.RankedTrial, len(trials))
	for i, t := range trials {
		ranked[i] = score(t, conds, e.Age, fold)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].RelevanceScore > ranked[j].RelevanceScore
	})

	if r.MaxResults > 0 && len(ranked) > r.MaxResults {
		ranked = ranked[:r.MaxResults]
	}
	return ranked
}

type foldedCondition struct {
	model.Condition
	folded string
}

func score(t model.Trial, conds []foldedCondition, age *int, fold cases.Caser) model.RankedTrial {
	total := baseScore
	var reasons []string

	trialConds := make([]string, 0, len(t.Conditions))
	for _, tc := range t.Conditions {
		if tc = strings.TrimSpace(tc); tc != "" {
			trialConds = append(trialConds, fold.String(tc))
		}
	}

	var (
		matched []foldedCondition
		probSum int
	)
	for _, c := range conds {
		if conditionMatches(c.folded, trialConds) {
			matched = append(matched, c)
			probSum += c.Probability
		}
	}
	if len(matched) > 0 {
		avg := float64(probSum) / float64(len(matched))
		total += avg / 100 * conditionWeight
		reasons = append(reasons, conditionReasonFx+matched[0].Name)
	}

	if t.Status.IsRecruiting() {
		total += recruitingBonus
		reasons = append(reasons, recruitingReason)
	}

	if t.Phase != "" && strings.ContainsAny(t.Phase, "12") {
		total += earlyPhaseBonus
		reasons = append(reasons, t.Phase+" trial")
	}

	// Substring match on the age is a weak heuristic: age 5 also matches "25".
	// Age 0 counts as unknown, otherwise any "0" in the text would match.
	if age != nil && *age > 0 && t.Eligibility != "" && strings.Contains(t.Eligibility, strconv.Itoa(*age)) {
		total += ageMatchBonus
		reasons = append(reasons, ageMatchReason)
	}

	if len(reasons) == 0 {
		reasons = []string{fallbackReason}
	}

	return model.RankedTrial{
		Trial:          t,
		RelevanceScore: clamp(int(math.Round(total))),
		MatchReasons:   reasons,
	}
}

// conditionMatches is true when the extracted name contains, or is contained
// by, any of the trial's condition strings.
func conditionMatches(name string, trialConds []string) bool {
	for _, tc := range trialConds {
		if strings.Contains(tc, name) || strings.Contains(name, tc) {
			return true
		}
	}
	return false
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > maxScore {
		return maxScore
	}
	return v
}
