package model

// TrialStatus is the registry's overall recruitment status for a study.
type TrialStatus string

const (
	TrialStatusRecruiting            TrialStatus = "RECRUITING"
	TrialStatusEnrollingByInvitation TrialStatus = "ENROLLING_BY_INVITATION"
	TrialStatusActiveNotRecruiting   TrialStatus = "ACTIVE_NOT_RECRUITING"
	TrialStatusCompleted             TrialStatus = "COMPLETED"
	TrialStatusTerminated            TrialStatus = "TERMINATED"
)

// IsRecruiting reports whether the trial is accepting participants.
func (s TrialStatus) IsRecruiting() bool {
	return s == TrialStatusRecruiting || s == TrialStatusEnrollingByInvitation
}

// Known reports whether s is one of the five statuses the ranking and UI
// understand. The registry has more states; those pass through verbatim.
func (s TrialStatus) Known() bool {
	switch s {
	case TrialStatusRecruiting, TrialStatusEnrollingByInvitation,
		TrialStatusActiveNotRecruiting, TrialStatusCompleted, TrialStatusTerminated:
		return true
	}
	return false
}

// Trial is a normalized registry record. Trials are built fresh for every
// search and never mutated afterwards.
type Trial struct {
	NCTID       string      `json:"nctId"`
	Title       string      `json:"title"`
	Status      TrialStatus `json:"status"`
	Conditions  []string    `json:"conditions"`
	Phase       string      `json:"phase,omitempty"`
	Location    string      `json:"location,omitempty"`
	Eligibility string      `json:"eligibility,omitempty"`
	URL         string      `json:"url"`
}

// RankedTrial is a Trial with a computed relevance score and the reasons
// that produced it.
type RankedTrial struct {
	Trial
	RelevanceScore int      `json:"relevanceScore"`
	MatchReasons   []string `json:"matchReasons"`
}

// TrialSummary is the display subset of a RankedTrial sent to clients.
type TrialSummary struct {
	NCTID          string   `json:"nctId"`
	Title          string   `json:"title"`
	URL            string   `json:"url,omitempty"`
	RelevanceScore int      `json:"relevanceScore"`
	MatchReasons   []string `json:"matchReasons"`
}

// Summary trims a ranked trial to its display fields.
func (r RankedTrial) Summary() TrialSummary {
	return TrialSummary{
		NCTID:          r.NCTID,
		Title:          r.Title,
		URL:            r.URL,
		RelevanceScore: r.RelevanceScore,
		MatchReasons:   r.MatchReasons,
	}
}

// Summaries maps ranked trials to their display form, preserving order.
func Summaries(ranked []RankedTrial) []TrialSummary {
	out := make([]TrialSummary, len(ranked))
	for i, r := range ranked {
		out[i] = r.Summary()
	}
	return out
}
