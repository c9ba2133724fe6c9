// Package directory is the HTTP client for the platform's internal
// lookup endpoints (applications, jobs, contacts). Herald only ever
// reads denormalized context from it; the domain stores stay the source
// of truth.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/talentpool/herald/internal/notify"
)

// ErrNotFound indicates the looked-up entity does not exist.
var ErrNotFound = errors.New("entity not found")

// Config holds directory client settings.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client calls the platform's internal lookup API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     *zap.Logger
}

// NewClient creates a directory client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		token:      cfg.Token,
		logger:     logger,
	}
}

type applicationContextResponse struct {
	ApplicationID  uuid.UUID `json:"application_id"`
	JobID          uuid.UUID `json:"job_id"`
	ApplicantID    uuid.UUID `json:"applicant_id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	ApplicantName  string    `json:"applicant_name"`
	JobTitle       string    `json:"job_title"`
	CompanyName    string    `json:"company_name"`
}

// ApplicationContext resolves an application with its denormalized job,
// company and applicant names.
func (c *Client) ApplicationContext(ctx context.Context, applicationID uuid.UUID) (*notify.ApplicationContext, error) {
	var resp applicationContextResponse
	path := fmt.Sprintf("/internal/applications/%s/context", applicationID)
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}

	return &notify.ApplicationContext{
		ApplicationID:  resp.ApplicationID,
		JobID:          resp.JobID,
		ApplicantID:    resp.ApplicantID,
		OrganizationID: resp.OrganizationID,
		ApplicantName:  resp.ApplicantName,
		JobTitle:       resp.JobTitle,
		CompanyName:    resp.CompanyName,
	}, nil
}

type jobContextResponse struct {
	JobID          uuid.UUID `json:"job_id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	JobTitle       string    `json:"job_title"`
	CompanyName    string    `json:"company_name"`
}

// JobContext resolves a job with its denormalized company name.
func (c *Client) JobContext(ctx context.Context, jobID uuid.UUID) (*notify.JobContext, error) {
	var resp jobContextResponse
	path := fmt.Sprintf("/internal/jobs/%s/context", jobID)
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}

	return &notify.JobContext{
		JobID:          resp.JobID,
		OrganizationID: resp.OrganizationID,
		JobTitle:       resp.JobTitle,
		CompanyName:    resp.CompanyName,
	}, nil
}

type contactResponse struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Contact resolves the out-of-band delivery addresses for an account or
// organization.
func (c *Client) Contact(ctx context.Context, id uuid.UUID, kind string) (*notify.Contact, error) {
	var resp contactResponse
	path := fmt.Sprintf("/internal/contacts/%s/%s", kind, id)
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}

	return &notify.Contact{Email: resp.Email, Phone: resp.Phone}, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("directory request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("directory returned status %d for %s", resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode directory response: %w", err)
	}

	return nil
}
