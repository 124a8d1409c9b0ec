package internal

import (
	"strings"
	"time"
)

// History bucket labels, in presentation order
const (
	GroupToday     = "Today"
	GroupYesterday = "Yesterday"
	GroupLastWeek  = "Last 7 days"
	GroupOlder     = "Older"
)

// GroupByRecency buckets sessions by last activity relative to now's calendar
// day. Every session lands in exactly one bucket, input order is kept inside a
// bucket and empty buckets are left out.
func GroupByRecency(sessions []Session, now time.Time) []Group {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	yesterday := today.AddDate(0, 0, -1)
	lastWeek := today.AddDate(0, 0, -7)

	buckets := map[string][]Session{}
	for _, s := range sessions {
		at := s.LastActivity()
		var label string
		switch {
		case !at.Before(today):
			label = GroupToday
		case !at.Before(yesterday):
			label = GroupYesterday
		case !at.Before(lastWeek):
			label = GroupLastWeek
		default:
			label = GroupOlder
		}
		buckets[label] = append(buckets[label], s)
	}

	groups := make([]Group, 0, 4)
	for _, label := range []string{GroupToday, GroupYesterday, GroupLastWeek, GroupOlder} {
		if len(buckets[label]) == 0 {
			continue
		}
		groups = append(groups, Group{Label: label, Sessions: buckets[label]})
	}
	return groups
}

// FilterByTitle keeps sessions whose title contains query, ignoring case.
// An empty query keeps everything.
func FilterByTitle(sessions []Session, query string) []Session {
	q := strings.ToLower(query)
	filtered := make([]Session, 0, len(sessions))
	for _, s := range sessions {
		if strings.Contains(strings.ToLower(s.Title), q) {
			filtered = append(filtered, s)
		}
	}
	return filtered
}
