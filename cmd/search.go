package main

import (
	"context"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/trial-chat/internal/metrics"
	"github.com/sells-group/trial-chat/internal/model"
	"github.com/sells-group/trial-chat/internal/ranking"
	"github.com/sells-group/trial-chat/internal/registry"
	"github.com/sells-group/trial-chat/internal/resilience"
	"github.com/sells-group/trial-chat/pkg/clinicaltrials"
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search ClinicalTrials.gov and rank the results",
	Long:  "Queries the registry directly for the given conditions and prints the ranked studies. Each condition is weighted at 50% probability.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("search"); err != nil {
			return err
		}

		conditions, _ := cmd.Flags().GetStringSlice("condition")
		age, _ := cmd.Flags().GetInt("age")
		location, _ := cmd.Flags().GetString("location")
		limit, _ := cmd.Flags().GetInt("max")

		regClient, err := newRegistryClient(cfg)
		if err != nil {
			return err
		}
		searcher := registry.NewInstrumented(
			registry.NewBreaker(regClient, resilience.FromConfig(cfg.Registry.BreakerFailureThreshold, cfg.Registry.BreakerResetSecs)),
			registry.SiteCLI,
			metrics.New(),
		)
		if limit <= 0 {
			limit = cfg.Registry.MaxResults
		}

		q := searchQuery{Conditions: conditions, Location: location, MaxResults: limit}
		if cmd.Flags().Changed("age") {
			q.Age = &age
		}

		return runSearch(cmd.Context(), cmd.OutOrStdout(), searcher, ranking.New(cfg.Ranking.MaxResults), q)
	},
}

type searchQuery struct {
	Conditions []string
	Age        *int
	Location   string
	MaxResults int
}

// entities turns a terminal query into the extraction the ranker scores
// against.
func (q searchQuery) entities() model.ExtractedEntities {
	e := model.ExtractedEntities{Age: q.Age, Location: q.Location, ReadyToSearch: true}
	for _, c := range q.Conditions {
		e.Conditions = append(e.Conditions, model.Condition{Name: c, Probability: 50})
	}
	return e
}

func runSearch(ctx context.Context, out io.Writer, searcher registry.Searcher, ranker *ranking.Ranker, q searchQuery) error {
	var conds []string
	for _, c := range q.Conditions {
		if c = strings.TrimSpace(c); c != "" {
			conds = append(conds, c)
		}
	}
	if len(conds) == 0 {
		return eris.New("at least one --condition is required")
	}
	if q.Age != nil && *q.Age < 0 {
		return eris.New("--age must be >= 0")
	}
	q.Conditions = conds

	trials, err := searcher.Search(ctx, clinicaltrials.SearchParams{
		Conditions: conds,
		Age:        q.Age,
		Location:   q.Location,
		MaxResults: q.MaxResults,
	})
	if err != nil {
		return eris.Wrap(err, "search trials")
	}

	formatTrials(out, model.Summaries(ranker.Rank(trials, q.entities())))
	return nil
}

func init() {
	searchCmd.Flags().StringSlice("condition", nil, "condition to search for (repeatable)")
	searchCmd.Flags().Int("age", 0, "patient age, used for ranking only")
	searchCmd.Flags().String("location", "", "location filter passed to the registry")
	searchCmd.Flags().Int("max", 0, "maximum studies to fetch (default from config)")
	rootCmd.AddCommand(searchCmd)
}
