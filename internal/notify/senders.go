package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/talentpool/herald/internal/db"
)

// The convenience senders below translate platform events into
// notifications. Each loads its related entities first and refuses to
// create a partial notification when a lookup fails.

// SendStatusUpdate notifies an applicant that their application moved to
// a new status. previousStatus may be empty for the first transition.
func (s *Service) SendStatusUpdate(ctx context.Context, applicationID uuid.UUID, newStatus, previousStatus string) (*db.Notification, error) {
	app, err := s.lookupApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	relatedData := map[string]any{"newStatus": newStatus}
	if previousStatus != "" {
		relatedData["previousStatus"] = previousStatus
	}

	orgID := app.OrganizationID
	return s.CreateNotification(ctx, CreateRequest{
		RecipientID:   app.ApplicantID,
		RecipientKind: db.KindAccount,
		SenderID:      &orgID,
		SenderKind:    db.KindOrganization,
		Type:          db.TypeStatusUpdate,
		StatusSubKey:  newStatus,
		TemplateData: map[string]string{
			"jobTitle":    app.JobTitle,
			"companyName": app.CompanyName,
		},
		RelatedJobID:         &app.JobID,
		RelatedApplicationID: &app.ApplicationID,
		RelatedData:          relatedData,
	})
}

// SendNewApplication notifies the hiring organization that a candidate
// applied.
func (s *Service) SendNewApplication(ctx context.Context, applicationID uuid.UUID) (*db.Notification, error) {
	app, err := s.lookupApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	applicantID := app.ApplicantID
	return s.CreateNotification(ctx, CreateRequest{
		RecipientID:   app.OrganizationID,
		RecipientKind: db.KindOrganization,
		SenderID:      &applicantID,
		SenderKind:    db.KindAccount,
		Type:          db.TypeNewApplication,
		TemplateData: map[string]string{
			"applicantName": app.ApplicantName,
			"jobTitle":      app.JobTitle,
		},
		RelatedJobID:         &app.JobID,
		RelatedApplicationID: &app.ApplicationID,
	})
}

// SendApplicationWithdrawal notifies the hiring organization that a
// candidate withdrew.
func (s *Service) SendApplicationWithdrawal(ctx context.Context, applicationID uuid.UUID) (*db.Notification, error) {
	app, err := s.lookupApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	applicantID := app.ApplicantID
	return s.CreateNotification(ctx, CreateRequest{
		RecipientID:   app.OrganizationID,
		RecipientKind: db.KindOrganization,
		SenderID:      &applicantID,
		SenderKind:    db.KindAccount,
		Type:          db.TypeApplicationWithdrawn,
		TemplateData: map[string]string{
			"applicantName": app.ApplicantName,
			"jobTitle":      app.JobTitle,
		},
		RelatedJobID:         &app.JobID,
		RelatedApplicationID: &app.ApplicationID,
	})
}

// SendJobPosted notifies an interested account about a freshly posted
// job. The caller supplies the recipient; matching candidates to jobs is
// the platform's concern.
func (s *Service) SendJobPosted(ctx context.Context, jobID, recipientID uuid.UUID) (*db.Notification, error) {
	job, err := s.lookupJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	orgID := job.OrganizationID
	return s.CreateNotification(ctx, CreateRequest{
		RecipientID:   recipientID,
		RecipientKind: db.KindAccount,
		SenderID:      &orgID,
		SenderKind:    db.KindOrganization,
		Type:          db.TypeJobPosted,
		TemplateData: map[string]string{
			"jobTitle":    job.JobTitle,
			"companyName": job.CompanyName,
		},
		RelatedJobID: &job.JobID,
	})
}

// SendDeadlineReminder reminds an account that a job's application window
// is closing. Expiry is auto-set by CreateNotification.
func (s *Service) SendDeadlineReminder(ctx context.Context, jobID, recipientID uuid.UUID, deadline time.Time) (*db.Notification, error) {
	job, err := s.lookupJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	return s.CreateNotification(ctx, CreateRequest{
		RecipientID:   recipientID,
		RecipientKind: db.KindAccount,
		Type:          db.TypeJobDeadlineReminder,
		TemplateData: map[string]string{
			"jobTitle":    job.JobTitle,
			"companyName": job.CompanyName,
			"deadline":    deadline.Format("January 2, 2006"),
		},
		RelatedJobID: &job.JobID,
		RelatedData:  map[string]any{"deadline": deadline},
	})
}

// SendProfileView notifies an account that someone looked at their
// profile.
func (s *Service) SendProfileView(ctx context.Context, recipientID uuid.UUID, viewerID *uuid.UUID, viewerKind, viewerName string) (*db.Notification, error) {
	return s.CreateNotification(ctx, CreateRequest{
		RecipientID:   recipientID,
		RecipientKind: db.KindAccount,
		SenderID:      viewerID,
		SenderKind:    viewerKind,
		Type:          db.TypeProfileView,
		TemplateData: map[string]string{
			"viewerName": viewerName,
		},
	})
}

func (s *Service) lookupApplication(ctx context.Context, applicationID uuid.UUID) (*ApplicationContext, error) {
	if s.directory == nil {
		return nil, fmt.Errorf("%w: no directory configured", ErrUpstreamLookup)
	}

	app, err := s.directory.ApplicationContext(ctx, applicationID)
	if err != nil {
		return nil, fmt.Errorf("%w: application %s: %v", ErrUpstreamLookup, applicationID, err)
	}
	return app, nil
}

func (s *Service) lookupJob(ctx context.Context, jobID uuid.UUID) (*JobContext, error) {
	if s.directory == nil {
		return nil, fmt.Errorf("%w: no directory configured", ErrUpstreamLookup)
	}

	job, err := s.directory.JobContext(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("%w: job %s: %v", ErrUpstreamLookup, jobID, err)
	}
	return job, nil
}
