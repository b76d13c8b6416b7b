package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/sells-group/trial-chat/internal/model"
)

func formatTrials(out io.Writer, trials []model.TrialSummary) {
	if len(trials) == 0 {
		_, _ = fmt.Fprintln(out, "No matching trials found.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SCORE\tNCT ID\tTITLE\tREASONS")
	_, _ = fmt.Fprintln(w, "-----\t------\t-----\t-------")

	for _, t := range trials {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\n",
			t.RelevanceScore,
			t.NCTID,
			shorten(t.Title, 60),
			strings.Join(t.MatchReasons, "; "),
		)
	}
	_ = w.Flush()
}

func formatExtraction(out io.Writer, e model.ExtractedEntities) {
	var parts []string
	if e.Age != nil {
		parts = append(parts, fmt.Sprintf("age %d", *e.Age))
	}
	if e.Location != "" {
		parts = append(parts, e.Location)
	}
	if len(e.Symptoms) > 0 {
		parts = append(parts, "symptoms: "+strings.Join(e.Symptoms, ", "))
	}
	if len(e.Conditions) > 0 {
		conds := make([]string, 0, len(e.Conditions))
		for _, c := range e.Conditions {
			conds = append(conds, fmt.Sprintf("%s (%d%%)", c.Name, c.Probability))
		}
		parts = append(parts, "conditions: "+strings.Join(conds, ", "))
	}
	if len(parts) == 0 {
		return
	}
	_, _ = fmt.Fprintf(out, "[extracted] %s\n", strings.Join(parts, " | "))
}

func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
