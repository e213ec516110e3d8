package model

import (
	"strings"
	"time"
)

// DateFilter narrows history listings to a recent window.
type DateFilter string

const (
	DateFilterAll   DateFilter = "all"
	DateFilterToday DateFilter = "today"
	DateFilterWeek  DateFilter = "week"
	DateFilterMonth DateFilter = "month"
)

// ParseDateFilter accepts the supported filters, treating unknown values as all.
func ParseDateFilter(v string) DateFilter {
	switch f := DateFilter(strings.ToLower(strings.TrimSpace(v))); f {
	case DateFilterToday, DateFilterWeek, DateFilterMonth:
		return f
	default:
		return DateFilterAll
	}
}

// Since returns the lower bound for the filter relative to now, or the zero time for all.
func (f DateFilter) Since(now time.Time) time.Time {
	switch f {
	case DateFilterToday:
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	case DateFilterWeek:
		return now.AddDate(0, 0, -7)
	case DateFilterMonth:
		return now.AddDate(0, -1, 0)
	default:
		return time.Time{}
	}
}

// JobListFilter selects records from a JobStore.
type JobListFilter struct {
	Owner  string
	Kind   JobKind
	Status JobStatus
	Since  time.Time
	Limit  int
	Offset int
}

// HistoryQuery is the history request of one owner.
type HistoryQuery struct {
	Owner    string
	Date     DateFilter
	Status   JobStatus
	Kind     JobKind
	Page     int
	PageSize int
}

// HistoryPage is one page of an owner's jobs, newest first.
type HistoryPage struct {
	Items      []StatusSummary `json:"items"`
	Total      int             `json:"total"`
	Page       int             `json:"page"`
	PageSize   int             `json:"page_size"`
	TotalPages int             `json:"total_pages"`
}

// StatusSummary is the history row of one job.
type StatusSummary struct {
	ID         string        `json:"id"`
	Kind       JobKind       `json:"kind"`
	Status     JobStatus     `json:"status"`
	Progress   int           `json:"progress"`
	Error      string        `json:"error,omitempty"`
	ErrorCode  FailureReason `json:"error_code,omitempty"`
	HasResult  bool          `json:"has_result"`
	CreatedAt  time.Time     `json:"created_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
}

// Summary builds the history row for the record.
func (j *JobRecord) Summary() StatusSummary {
	return StatusSummary{
		ID:         j.ID,
		Kind:       j.Kind,
		Status:     j.Status,
		Progress:   j.Progress,
		Error:      j.Error,
		ErrorCode:  j.ErrorCode,
		HasResult:  j.Result != nil,
		CreatedAt:  j.CreatedAt,
		FinishedAt: j.FinishedAt,
	}
}
