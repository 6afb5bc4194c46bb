// Package health computes deterministic project health scores from
// per-project repository metrics against level-specific requirement policies.
package health

import (
	"fmt"
	"math"

	"github.com/owasp/nest-search/pkg/nest"
)

const (
	comparisonWeight = 6.0
	complianceWeight = 5.0
)

// Metrics is a flat snapshot of per-project counters plus the two
// compliance flags. All counters must be non-negative.
type Metrics struct {
	AgeDays                 int `json:"age_days" yaml:"age_days"`
	ContributorsCount       int `json:"contributors_count" yaml:"contributors_count"`
	ForksCount              int `json:"forks_count" yaml:"forks_count"`
	LastCommitDays          int `json:"last_commit_days" yaml:"last_commit_days"`
	LastPullRequestDays     int `json:"last_pull_request_days" yaml:"last_pull_request_days"`
	LastReleaseDays         int `json:"last_release_days" yaml:"last_release_days"`
	OpenIssuesCount         int `json:"open_issues_count" yaml:"open_issues_count"`
	OpenPullRequestsCount   int `json:"open_pull_requests_count" yaml:"open_pull_requests_count"`
	OwaspPageLastUpdateDays int `json:"owasp_page_last_update_days" yaml:"owasp_page_last_update_days"`
	RecentReleasesCount     int `json:"recent_releases_count" yaml:"recent_releases_count"`
	StarsCount              int `json:"stars_count" yaml:"stars_count"`
	TotalPullRequestsCount  int `json:"total_pull_requests_count" yaml:"total_pull_requests_count"`
	TotalReleasesCount      int `json:"total_releases_count" yaml:"total_releases_count"`
	UnansweredIssuesCount   int `json:"unanswered_issues_count" yaml:"unanswered_issues_count"`
	UnassignedIssuesCount   int `json:"unassigned_issues_count" yaml:"unassigned_issues_count"`

	FundingCompliant bool `json:"funding_compliant" yaml:"funding_compliant"`
	LeaderCompliant  bool `json:"leader_compliant" yaml:"leader_compliant"`
}

// Validate checks the non-negativity invariant on all counters.
func (m *Metrics) Validate() error {
	counters := map[string]int{
		"age_days":                    m.AgeDays,
		"contributors_count":          m.ContributorsCount,
		"forks_count":                 m.ForksCount,
		"last_commit_days":            m.LastCommitDays,
		"last_pull_request_days":      m.LastPullRequestDays,
		"last_release_days":           m.LastReleaseDays,
		"open_issues_count":           m.OpenIssuesCount,
		"open_pull_requests_count":    m.OpenPullRequestsCount,
		"owasp_page_last_update_days": m.OwaspPageLastUpdateDays,
		"recent_releases_count":       m.RecentReleasesCount,
		"stars_count":                 m.StarsCount,
		"total_pull_requests_count":   m.TotalPullRequestsCount,
		"total_releases_count":        m.TotalReleasesCount,
		"unanswered_issues_count":     m.UnansweredIssuesCount,
		"unassigned_issues_count":     m.UnassignedIssuesCount,
	}
	for name, v := range counters {
		if v < 0 {
			return fmt.Errorf("metric %s must be non-negative, got %d", name, v)
		}
	}
	return nil
}

// Requirements is the matching record of per-field thresholds for one
// project level.
type Requirements struct {
	Level nest.ProjectLevel `json:"level" yaml:"level"`

	AgeDays                 int `json:"age_days" yaml:"age_days"`
	ContributorsCount       int `json:"contributors_count" yaml:"contributors_count"`
	ForksCount              int `json:"forks_count" yaml:"forks_count"`
	LastCommitDays          int `json:"last_commit_days" yaml:"last_commit_days"`
	LastPullRequestDays     int `json:"last_pull_request_days" yaml:"last_pull_request_days"`
	LastReleaseDays         int `json:"last_release_days" yaml:"last_release_days"`
	OpenIssuesCount         int `json:"open_issues_count" yaml:"open_issues_count"`
	OpenPullRequestsCount   int `json:"open_pull_requests_count" yaml:"open_pull_requests_count"`
	OwaspPageLastUpdateDays int `json:"owasp_page_last_update_days" yaml:"owasp_page_last_update_days"`
	RecentReleasesCount     int `json:"recent_releases_count" yaml:"recent_releases_count"`
	StarsCount              int `json:"stars_count" yaml:"stars_count"`
	TotalPullRequestsCount  int `json:"total_pull_requests_count" yaml:"total_pull_requests_count"`
	TotalReleasesCount      int `json:"total_releases_count" yaml:"total_releases_count"`
	UnansweredIssuesCount   int `json:"unanswered_issues_count" yaml:"unanswered_issues_count"`
	UnassignedIssuesCount   int `json:"unassigned_issues_count" yaml:"unassigned_issues_count"`
}

// FieldResult records the outcome of a single comparison.
type FieldResult struct {
	Field    string  `json:"field"`
	Metric   int     `json:"metric"`
	Required int     `json:"required"`
	Forward  bool    `json:"forward"` // higher-is-better when true
	Passed   bool    `json:"passed"`
	Weight   float64 `json:"weight"`
}

// Result is a health score plus its per-field breakdown.
type Result struct {
	Score  float64       `json:"score"`
	Fields []FieldResult `json:"fields"`
}

// Score computes the health score of metrics against requirements.
//
// Fifteen comparisons each contribute 6 points on pass: forward fields
// (higher-is-better) pass when metric >= requirement, backward fields
// (lower-is-better) pass when metric <= requirement. The two compliance
// booleans contribute 5 points each when true. The result is in [0, 100],
// exact to one decimal.
func Score(m Metrics, req Requirements) float64 {
	return ScoreWithBreakdown(m, req).Score
}

// ScoreWithBreakdown computes the health score along with per-field results.
func ScoreWithBreakdown(m Metrics, req Requirements) Result {
	forward := []struct {
		name     string
		metric   int
		required int
	}{
		{"contributors_count", m.ContributorsCount, req.ContributorsCount},
		{"forks_count", m.ForksCount, req.ForksCount},
		{"open_pull_requests_count", m.OpenPullRequestsCount, req.OpenPullRequestsCount},
		{"recent_releases_count", m.RecentReleasesCount, req.RecentReleasesCount},
		{"stars_count", m.StarsCount, req.StarsCount},
		{"total_pull_requests_count", m.TotalPullRequestsCount, req.TotalPullRequestsCount},
		{"total_releases_count", m.TotalReleasesCount, req.TotalReleasesCount},
	}

	backward := []struct {
		name     string
		metric   int
		required int
	}{
		{"age_days", m.AgeDays, req.AgeDays},
		{"last_commit_days", m.LastCommitDays, req.LastCommitDays},
		{"last_pull_request_days", m.LastPullRequestDays, req.LastPullRequestDays},
		{"last_release_days", m.LastReleaseDays, req.LastReleaseDays},
		{"open_issues_count", m.OpenIssuesCount, req.OpenIssuesCount},
		{"owasp_page_last_update_days", m.OwaspPageLastUpdateDays, req.OwaspPageLastUpdateDays},
		{"unanswered_issues_count", m.UnansweredIssuesCount, req.UnansweredIssuesCount},
		{"unassigned_issues_count", m.UnassignedIssuesCount, req.UnassignedIssuesCount},
	}

	result := Result{
		Fields: make([]FieldResult, 0, len(forward)+len(backward)),
	}

	total := 0.0
	for _, f := range forward {
		passed := f.metric >= f.required
		if passed {
			total += comparisonWeight
		}
		result.Fields = append(result.Fields, FieldResult{
			Field:    f.name,
			Metric:   f.metric,
			Required: f.required,
			Forward:  true,
			Passed:   passed,
			Weight:   comparisonWeight,
		})
	}
	for _, f := range backward {
		passed := f.metric <= f.required
		if passed {
			total += comparisonWeight
		}
		result.Fields = append(result.Fields, FieldResult{
			Field:    f.name,
			Metric:   f.metric,
			Required: f.required,
			Forward:  false,
			Passed:   passed,
			Weight:   comparisonWeight,
		})
	}

	if m.FundingCompliant {
		total += complianceWeight
	}
	if m.LeaderCompliant {
		total += complianceWeight
	}

	result.Score = math.Round(total*10) / 10
	return result
}
