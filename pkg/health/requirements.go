package health

import "github.com/owasp/nest-search/pkg/nest"

// Built-in per-level threshold policy. Forward fields are minimums,
// backward fields are maximums. Higher maturity levels demand more
// activity and tolerate less staleness.
var defaultRequirements = map[nest.ProjectLevel]Requirements{
	nest.LevelIncubator: {
		Level:                   nest.LevelIncubator,
		AgeDays:                 1095,
		ContributorsCount:       2,
		ForksCount:              5,
		LastCommitDays:          365,
		LastPullRequestDays:     365,
		LastReleaseDays:         730,
		OpenIssuesCount:         100,
		OpenPullRequestsCount:   10,
		OwaspPageLastUpdateDays: 365,
		RecentReleasesCount:     0,
		StarsCount:              25,
		TotalPullRequestsCount:  10,
		TotalReleasesCount:      1,
		UnansweredIssuesCount:   50,
		UnassignedIssuesCount:   50,
	},
	nest.LevelLab: {
		Level:                   nest.LevelLab,
		AgeDays:                 1825,
		ContributorsCount:       5,
		ForksCount:              25,
		LastCommitDays:          180,
		LastPullRequestDays:     180,
		LastReleaseDays:         365,
		OpenIssuesCount:         75,
		OpenPullRequestsCount:   20,
		OwaspPageLastUpdateDays: 270,
		RecentReleasesCount:     1,
		StarsCount:              100,
		TotalPullRequestsCount:  50,
		TotalReleasesCount:      3,
		UnansweredIssuesCount:   40,
		UnassignedIssuesCount:   40,
	},
	nest.LevelProduction: {
		Level:                   nest.LevelProduction,
		AgeDays:                 2555,
		ContributorsCount:       10,
		ForksCount:              100,
		LastCommitDays:          90,
		LastPullRequestDays:     90,
		LastReleaseDays:         180,
		OpenIssuesCount:         50,
		OpenPullRequestsCount:   30,
		OwaspPageLastUpdateDays: 180,
		RecentReleasesCount:     2,
		StarsCount:              500,
		TotalPullRequestsCount:  200,
		TotalReleasesCount:      10,
		UnansweredIssuesCount:   30,
		UnassignedIssuesCount:   30,
	},
	nest.LevelFlagship: {
		Level:                   nest.LevelFlagship,
		AgeDays:                 2555,
		ContributorsCount:       25,
		ForksCount:              500,
		LastCommitDays:          30,
		LastPullRequestDays:     60,
		LastReleaseDays:         180,
		OpenIssuesCount:         40,
		OpenPullRequestsCount:   40,
		OwaspPageLastUpdateDays: 90,
		RecentReleasesCount:     2,
		StarsCount:              2000,
		TotalPullRequestsCount:  500,
		TotalReleasesCount:      20,
		UnansweredIssuesCount:   20,
		UnassignedIssuesCount:   20,
	},
	nest.LevelOther: {
		Level:                   nest.LevelOther,
		AgeDays:                 365,
		ContributorsCount:       1,
		ForksCount:              0,
		LastCommitDays:          730,
		LastPullRequestDays:     730,
		LastReleaseDays:         1095,
		OpenIssuesCount:         200,
		OpenPullRequestsCount:   50,
		OwaspPageLastUpdateDays: 730,
		RecentReleasesCount:     0,
		StarsCount:              0,
		TotalPullRequestsCount:  0,
		TotalReleasesCount:      0,
		UnansweredIssuesCount:   100,
		UnassignedIssuesCount:   100,
	},
}

// DefaultRequirements returns the built-in threshold policy for a
// project level. Unknown levels fall back to the "other" policy.
func DefaultRequirements(level nest.ProjectLevel) Requirements {
	if req, ok := defaultRequirements[level]; ok {
		return req
	}
	return defaultRequirements[nest.LevelOther]
}
