// Package template maps notification types to content templates and
// performs variable substitution. It is pure: no I/O, no clock, no
// randomness.
package template

import (
	"strings"

	"github.com/google/uuid"

	"github.com/talentpool/herald/internal/db"
)

// Template is the renderable content for one notification type.
type Template struct {
	Title      string
	Message    string
	Priority   string
	ActionText string
}

// Status-change templates, keyed by application status. The sub-key only
// applies to status_update notifications.
var statusTemplates = map[string]Template{
	db.StatusUnderReview: {
		Title:      "Application Under Review",
		Message:    "Your application for {jobTitle} at {companyName} is now under review.",
		Priority:   db.PriorityMedium,
		ActionText: "View Application",
	},
	db.StatusShortlisted: {
		Title:      "Great News! You've Been Shortlisted",
		Message:    "Congratulations! You've been shortlisted for {jobTitle} at {companyName}.",
		Priority:   db.PriorityHigh,
		ActionText: "View Application",
	},
	db.StatusInterviewScheduled: {
		Title:      "Interview Scheduled",
		Message:    "Your interview for {jobTitle} at {companyName} has been scheduled.",
		Priority:   db.PriorityHigh,
		ActionText: "View Details",
	},
	db.StatusJobOffered: {
		Title:      "You Have a Job Offer!",
		Message:    "Amazing news! {companyName} has made you an offer for {jobTitle}.",
		Priority:   db.PriorityUrgent,
		ActionText: "View Offer",
	},
	db.StatusRejected: {
		Title:      "Application Update",
		Message:    "Thank you for your interest in {jobTitle} at {companyName}. The employer has decided to move forward with other candidates.",
		Priority:   db.PriorityMedium,
		ActionText: "Browse Jobs",
	},
}

var typeTemplates = map[string]Template{
	db.TypeNewApplication: {
		Title:      "New Application Received",
		Message:    "{applicantName} has applied for {jobTitle}.",
		Priority:   db.PriorityHigh,
		ActionText: "Review Application",
	},
	db.TypeApplicationWithdrawn: {
		Title:      "Application Withdrawn",
		Message:    "{applicantName} has withdrawn their application for {jobTitle}.",
		Priority:   db.PriorityMedium,
		ActionText: "View Job",
	},
	db.TypeJobPosted: {
		Title:      "New Job Posted",
		Message:    "{companyName} posted a new job: {jobTitle}.",
		Priority:   db.PriorityLow,
		ActionText: "View Job",
	},
	db.TypeJobDeadlineReminder: {
		Title:      "Application Deadline Approaching",
		Message:    "The application deadline for {jobTitle} at {companyName} is {deadline}.",
		Priority:   db.PriorityHigh,
		ActionText: "Apply Now",
	},
	db.TypeProfileView: {
		Title:      "Your Profile Was Viewed",
		Message:    "{viewerName} viewed your profile.",
		Priority:   db.PriorityLow,
		ActionText: "View Profile",
	},
}

// fallback is returned for unknown notification types. It guarantees
// every notification carries a non-empty title, message and priority.
var fallback = Template{
	Title:    "Notification",
	Message:  "You have a new notification.",
	Priority: db.PriorityMedium,
}

// Resolve picks the template for a notification type. For status_update,
// subKey selects among the application-status templates; an unknown
// sub-key falls back to the under_review template. For every other type
// subKey is ignored. An unknown type resolves to the generic fallback.
func Resolve(notifType, subKey string) Template {
	if notifType == db.TypeStatusUpdate {
		if tpl, ok := statusTemplates[subKey]; ok {
			return tpl
		}
		return statusTemplates[db.StatusUnderReview]
	}

	if tpl, ok := typeTemplates[notifType]; ok {
		return tpl
	}

	return fallback
}

// Render substitutes every {field} token in the template's title and
// message with data[field]. Tokens with no matching key stay in place
// verbatim. Substitution is single-pass: values are never re-scanned
// for tokens.
func Render(tpl Template, data map[string]string) Template {
	tpl.Title = substitute(tpl.Title, data)
	tpl.Message = substitute(tpl.Message, data)
	return tpl
}

func substitute(s string, data map[string]string) string {
	var b strings.Builder
	b.Grow(len(s))

	for {
		open := strings.IndexByte(s, '{')
		if open < 0 {
			b.WriteString(s)
			return b.String()
		}

		closeIdx := strings.IndexByte(s[open:], '}')
		if closeIdx < 0 {
			b.WriteString(s)
			return b.String()
		}
		closeIdx += open

		b.WriteString(s[:open])

		key := s[open+1 : closeIdx]
		if val, ok := data[key]; ok {
			b.WriteString(val)
		} else {
			b.WriteString(s[open : closeIdx+1])
		}

		s = s[closeIdx+1:]
	}
}

// BuildActionURL derives the click-through path from whichever related
// reference is present. An application reference wins over a job
// reference; with neither, the URL is empty.
func BuildActionURL(relatedApplication, relatedJob *uuid.UUID) string {
	switch {
	case relatedApplication != nil:
		return "/applications/" + relatedApplication.String()
	case relatedJob != nil:
		return "/jobs/" + relatedJob.String()
	default:
		return ""
	}
}
