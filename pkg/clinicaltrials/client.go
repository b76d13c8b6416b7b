// Package clinicaltrials is a client for the ClinicalTrials.gov v2 study
// search API.
package clinicaltrials

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/trial-chat/internal/model"
)

const (
	defaultBaseURL    = "https://clinicaltrials.gov"
	defaultTimeout    = 10 * time.Second
	defaultMaxResults = 30
	maxPageSize       = 50
	studyURLPrefix    = "https://clinicaltrials.gov/study/"
	defaultLocation   = "Multiple locations"
	requestedFields   = "NCTId,BriefTitle,OverallStatus,Condition,Phase,LocationCity,EligibilityCriteria"
	maxErrorBody      = 1024
)

// ErrNoConditions is returned when a search has no usable condition terms.
var ErrNoConditions = eris.New("clinicaltrials: at least one condition is required")

// QueryPolicy controls how condition names become the registry query.
type QueryPolicy string

const (
	// QueryFirstTerm searches for the first non-blank condition only. The
	// registry is strict about query syntax, so this is the default.
	QueryFirstTerm QueryPolicy = "first"
	// QueryAnyTerm ORs every quoted condition and restricts results to
	// recruiting studies. It returns broader, fresher result sets.
	QueryAnyTerm QueryPolicy = "any"
)

// ParseQueryPolicy maps a config string to a QueryPolicy.
func ParseQueryPolicy(s string) (QueryPolicy, error) {
	switch QueryPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", QueryFirstTerm:
		return QueryFirstTerm, nil
	case QueryAnyTerm:
		return QueryAnyTerm, nil
	default:
		return "", eris.Errorf("clinicaltrials: unknown query policy %q", s)
	}
}

// SearchParams describes one registry search.
type SearchParams struct {
	Conditions []string
	// Age is carried for callers that rank the results; the registry query
	// does not filter on it.
	Age        *int
	Location   string
	MaxResults int
}

// Client searches the trial registry.
type Client interface {
	Search(ctx context.Context, params SearchParams) ([]model.Trial, error)
}

// APIError is returned for a non-2xx registry response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("clinicaltrials: unexpected status %d: %s", e.StatusCode, e.Body)
}

// HTTPStatus returns the registry's response status.
func (e *APIError) HTTPStatus() int {
	return e.StatusCode
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTimeout bounds each search request.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		c.timeout = d
	}
}

// WithQueryPolicy selects how conditions are turned into a query.
func WithQueryPolicy(p QueryPolicy) Option {
	return func(c *httpClient) {
		c.policy = p
	}
}

// WithRateLimit caps outgoing requests per second. A non-positive rate
// disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *httpClient) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	policy  QueryPolicy
	limiter *rate.Limiter
}

// NewClient creates a ClinicalTrials.gov client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		timeout: defaultTimeout,
		policy:  QueryFirstTerm,
		limiter: rate.NewLimiter(rate.Limit(2), 4),
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, params SearchParams) ([]model.Trial, error) {
	terms := cleanTerms(params.Conditions)
	if len(terms) == 0 {
		return nil, ErrNoConditions
	}

	maxResults := params.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	reqURL := c.buildURL(terms, params.Location, maxResults)

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "clinicaltrials: rate limit wait")
		}
	}

	zap.L().Debug("clinicaltrials: search",
		zap.Strings("conditions", terms),
		zap.String("policy", string(c.policy)),
		zap.String("url", reqURL),
	)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "clinicaltrials: create request")
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "clinicaltrials: send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "clinicaltrials: read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: truncate(string(body), maxErrorBody)}
	}

	trials, err := parseStudies(body, maxResults)
	if err != nil {
		return nil, err
	}

	if len(trials) == 0 {
		zap.L().Warn("clinicaltrials: no studies found", zap.Strings("conditions", terms))
	}
	return trials, nil
}

func (c *httpClient) buildURL(terms []string, location string, maxResults int) string {
	q := url.Values{}
	switch c.policy {
	case QueryAnyTerm:
		quoted := make([]string, len(terms))
		for i, t := range terms {
			quoted[i] = strconv.Quote(t)
		}
		q.Set("query.term", strings.Join(quoted, " OR "))
		q.Set("filter.overallStatus", string(model.TrialStatusRecruiting)+"|"+string(model.TrialStatusEnrollingByInvitation))
	default:
		q.Set("query.term", terms[0])
	}
	q.Set("pageSize", strconv.Itoa(min(maxResults, maxPageSize)))
	q.Set("fields", requestedFields)
	if loc := strings.TrimSpace(location); loc != "" {
		q.Set("query.locn", loc)
	}
	return c.baseURL + "/api/v2/studies?" + q.Encode()
}

// parseStudies maps the nested registry response into flat trials,
// substituting defaults for missing optional fields.
func parseStudies(body []byte, maxResults int) ([]model.Trial, error) {
	if !gjson.ValidBytes(body) {
		return nil, eris.New("clinicaltrials: invalid JSON response")
	}

	trials := []model.Trial{}
	gjson.GetBytes(body, "studies").ForEach(func(_, study gjson.Result) bool {
		proto := study.Get("protocolSection")
		nctID := proto.Get("identificationModule.nctId").String()
		if nctID == "" {
			return true
		}

		conditions := []string{}
		for _, c := range proto.Get("conditionsModule.conditions").Array() {
			conditions = append(conditions, c.String())
		}

		var phases []string
		for _, p := range proto.Get("designModule.phases").Array() {
			phases = append(phases, p.String())
		}

		location := proto.Get("contactsLocationsModule.locations.0.city").String()
		if location == "" {
			location = defaultLocation
		}

		trials = append(trials, model.Trial{
			NCTID:       nctID,
			Title:       proto.Get("identificationModule.briefTitle").String(),
			Status:      model.TrialStatus(proto.Get("statusModule.overallStatus").String()),
			Conditions:  conditions,
			Phase:       FormatPhases(phases),
			Location:    location,
			Eligibility: proto.Get("eligibilityModule.eligibilityCriteria").String(),
			URL:         studyURLPrefix + nctID,
		})
		return len(trials) < maxResults
	})
	return trials, nil
}

// FormatPhases turns registry phase codes into display text:
// ["PHASE2"] becomes "Phase 2", ["PHASE1","PHASE2"] becomes "Phase 1/2",
// and "NA" (not applicable) is dropped.
func FormatPhases(codes []string) string {
	var nums, other []string
	for _, code := range codes {
		code = strings.ToUpper(strings.TrimSpace(code))
		switch {
		case code == "" || code == "NA":
		case strings.HasPrefix(code, "EARLY_PHASE"):
			other = append(other, "Early Phase "+strings.TrimPrefix(code, "EARLY_PHASE"))
		case strings.HasPrefix(code, "PHASE"):
			nums = append(nums, strings.TrimPrefix(code, "PHASE"))
		default:
			other = append(other, code)
		}
	}

	var parts []string
	if len(nums) > 0 {
		parts = append(parts, "Phase "+strings.Join(nums, "/"))
	}
	parts = append(parts, other...)
	return strings.Join(parts, ", ")
}

func cleanTerms(conditions []string) []string {
	terms := make([]string, 0, len(conditions))
	for _, c := range conditions {
		if t := strings.TrimSpace(c); t != "" {
			terms = append(terms, t)
		}
	}
	return terms
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
