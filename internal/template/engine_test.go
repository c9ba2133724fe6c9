package template

import (
	"testing"

	"github.com/google/uuid"

	"github.com/talentpool/herald/internal/db"
)

func TestResolve_StatusTemplates(t *testing.T) {
	tests := []struct {
		name         string
		subKey       string
		wantTitle    string
		wantPriority string
	}{
		{
			name:         "under review",
			subKey:       db.StatusUnderReview,
			wantTitle:    "Application Under Review",
			wantPriority: db.PriorityMedium,
		},
		{
			name:         "shortlisted",
			subKey:       db.StatusShortlisted,
			wantTitle:    "Great News! You've Been Shortlisted",
			wantPriority: db.PriorityHigh,
		},
		{
			name:         "interview scheduled",
			subKey:       db.StatusInterviewScheduled,
			wantTitle:    "Interview Scheduled",
			wantPriority: db.PriorityHigh,
		},
		{
			name:         "job offered",
			subKey:       db.StatusJobOffered,
			wantTitle:    "You Have a Job Offer!",
			wantPriority: db.PriorityUrgent,
		},
		{
			name:         "rejected",
			subKey:       db.StatusRejected,
			wantTitle:    "Application Update",
			wantPriority: db.PriorityMedium,
		},
		{
			name:         "unknown status falls back to under review",
			subKey:       "on_hold",
			wantTitle:    "Application Under Review",
			wantPriority: db.PriorityMedium,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tpl := Resolve(db.TypeStatusUpdate, tt.subKey)
			if tpl.Title != tt.wantTitle {
				t.Errorf("title: got %q, want %q", tpl.Title, tt.wantTitle)
			}
			if tpl.Priority != tt.wantPriority {
				t.Errorf("priority: got %q, want %q", tpl.Priority, tt.wantPriority)
			}
		})
	}
}

func TestResolve_TypeTemplates(t *testing.T) {
	tpl := Resolve(db.TypeNewApplication, "")
	if tpl.Title != "New Application Received" {
		t.Errorf("unexpected title: %q", tpl.Title)
	}
	if tpl.Priority != db.PriorityHigh {
		t.Errorf("unexpected priority: %q", tpl.Priority)
	}

	// Sub-key is ignored for non-status types
	same := Resolve(db.TypeNewApplication, db.StatusRejected)
	if same != tpl {
		t.Error("sub-key should not affect non-status types")
	}
}

func TestResolve_UnknownTypeFallback(t *testing.T) {
	tpl := Resolve("account_suspended", "")
	if tpl.Title != "Notification" {
		t.Errorf("unexpected title: %q", tpl.Title)
	}
	if tpl.Message != "You have a new notification." {
		t.Errorf("unexpected message: %q", tpl.Message)
	}
	if tpl.Priority != db.PriorityMedium {
		t.Errorf("unexpected priority: %q", tpl.Priority)
	}
}

func TestRender_Substitution(t *testing.T) {
	tpl := Resolve(db.TypeStatusUpdate, db.StatusShortlisted)
	out := Render(tpl, map[string]string{
		"jobTitle":    "Backend Engineer",
		"companyName": "Acme Corp",
	})

	want := "Congratulations! You've been shortlisted for Backend Engineer at Acme Corp."
	if out.Message != want {
		t.Errorf("message: got %q, want %q", out.Message, want)
	}
}

func TestRender_MissingKeysStayVerbatim(t *testing.T) {
	tpl := Template{Message: "Deadline for {jobTitle} is {deadline}."}
	out := Render(tpl, map[string]string{"jobTitle": "Designer"})

	want := "Deadline for Designer is {deadline}."
	if out.Message != want {
		t.Errorf("got %q, want %q", out.Message, want)
	}
}

func TestRender_SinglePass(t *testing.T) {
	// A substituted value containing a token must not be re-expanded.
	tpl := Template{Message: "Hello {name}"}
	out := Render(tpl, map[string]string{
		"name":  "{other}",
		"other": "injected",
	})

	if out.Message != "Hello {other}" {
		t.Errorf("got %q, want %q", out.Message, "Hello {other}")
	}
}

func TestRender_EmptyData(t *testing.T) {
	tpl := Template{Message: "Your application for {jobTitle} is under review."}
	out := Render(tpl, nil)

	if out.Message != tpl.Message {
		t.Errorf("got %q, want unchanged %q", out.Message, tpl.Message)
	}
}

func TestRender_UnterminatedToken(t *testing.T) {
	tpl := Template{Message: "Broken {jobTitle"}
	out := Render(tpl, map[string]string{"jobTitle": "Analyst"})

	if out.Message != "Broken {jobTitle" {
		t.Errorf("got %q, want input preserved", out.Message)
	}
}

func TestBuildActionURL(t *testing.T) {
	appID := uuid.New()
	jobID := uuid.New()

	tests := []struct {
		name string
		app  *uuid.UUID
		job  *uuid.UUID
		want string
	}{
		{"application wins over job", &appID, &jobID, "/applications/" + appID.String()},
		{"job only", nil, &jobID, "/jobs/" + jobID.String()},
		{"application only", &appID, nil, "/applications/" + appID.String()},
		{"neither", nil, nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildActionURL(tt.app, tt.job); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
