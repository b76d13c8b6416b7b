package clinicaltrials

import "github.com/sells-group/trial-chat/internal/model"

// FallbackTrials returns a small fixed set of representative trials served
// when the registry is unavailable mid-conversation. Callers decide whether
// to use it; the client never substitutes it on its own.
func FallbackTrials() []model.Trial {
	return []model.Trial{
		{
			NCTID:       "NCT04900000",
			Title:       "Combination Immunotherapy for Advanced Cancer",
			Status:      model.TrialStatusRecruiting,
			Conditions:  []string{"Advanced Cancer", "Metastatic Disease"},
			Phase:       "Phase 2",
			Location:    "New York, NY",
			Eligibility: "18+ years old, confirmed diagnosis, adequate organ function",
			URL:         studyURLPrefix + "NCT04900000",
		},
		{
			NCTID:       "NCT04901111",
			Title:       "Novel Targeted Therapy Trial",
			Status:      model.TrialStatusRecruiting,
			Conditions:  []string{"Solid Tumors", "Cancer"},
			Phase:       "Phase 2",
			Location:    "Los Angeles, CA",
			Eligibility: "18-75 years old, measurable disease, good performance status",
			URL:         studyURLPrefix + "NCT04901111",
		},
		{
			NCTID:       "NCT04902222",
			Title:       "Personalized Medicine Cancer Study",
			Status:      model.TrialStatusEnrollingByInvitation,
			Conditions:  []string{"Genetic Cancer", "Hereditary Cancer"},
			Phase:       "Phase 1/2",
			Location:    "Boston, MA",
			Eligibility: "Genetic confirmation required, 21+ years, life expectancy > 6 months",
			URL:         studyURLPrefix + "NCT04902222",
		},
	}
}
