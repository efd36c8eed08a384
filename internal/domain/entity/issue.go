package entity

import "time"

// IssueStatus is the workflow status of a maintenance issue.
type IssueStatus string

const (
	IssueStatusApproval   IssueStatus = "Approval"
	IssueStatusReview     IssueStatus = "Review"
	IssueStatusPending    IssueStatus = "Pending"
	IssueStatusInProgress IssueStatus = "In Progress"
	IssueStatusComplete   IssueStatus = "Complete"
)

// Issue is a maintenance work item. The extraction pipeline only reads
// issues; it never creates or mutates them.
type Issue struct {
	ID          string      `json:"id"`
	ReportedAt  *time.Time  `json:"reported_at"`
	Building    *string     `json:"building"`
	Unit        *string     `json:"unit"`
	Description *string     `json:"description"`
	Action      *string     `json:"action"`
	Status      IssueStatus `json:"status"`
	IsDraft     bool        `json:"is_draft"`
}
