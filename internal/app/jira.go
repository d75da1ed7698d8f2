package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/reginaldbaraza-code/TofuOS/internal/jira"
	"github.com/reginaldbaraza-code/TofuOS/internal/metrics"
	"github.com/reginaldbaraza-code/TofuOS/internal/store"
)

// JiraConfigView is the stored Jira configuration without the API token.
type JiraConfigView struct {
	Configured     bool   `json:"configured"`
	Domain         string `json:"domain,omitempty"`
	Email          string `json:"email,omitempty"`
	HasToken       bool   `json:"hasToken"`
	LastProjectKey string `json:"lastProjectKey,omitempty"`
}

type CreateIssueInput struct {
	Summary     string `json:"summary"`
	Description string `json:"description"`
	ProjectKey  string `json:"projectKey"`
	IssueType   string `json:"issueType"`
}

func (s *Service) GetJiraConfig(ctx context.Context, userID string) (JiraConfigView, error) {
	config, err := s.store.GetJiraConfig(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return JiraConfigView{Configured: false}, nil
	}
	if err != nil {
		return JiraConfigView{}, err
	}
	return JiraConfigView{
		Configured:     true,
		Domain:         config.Domain,
		Email:          config.Email,
		HasToken:       len(config.SealedToken) > 0,
		LastProjectKey: config.LastProjectKey,
	}, nil
}

// SaveJiraConfig replaces the user's credentials wholesale.
func (s *Service) SaveJiraConfig(ctx context.Context, userID, domain, email, apiToken string) (JiraConfigView, error) {
	domain = jira.NormalizeDomain(domain)
	email = strings.TrimSpace(email)
	apiToken = strings.TrimSpace(apiToken)
	if domain == "" || email == "" || apiToken == "" {
		return JiraConfigView{}, validationError("domain, email, and apiToken are required")
	}
	sealed, err := s.sealer.Seal(apiToken)
	if err != nil {
		return JiraConfigView{}, fmt.Errorf("seal jira token: %w", err)
	}
	if err := s.store.UpsertJiraConfig(ctx, store.JiraConfig{
		UserID:      userID,
		Domain:      domain,
		Email:       email,
		SealedToken: sealed,
	}); err != nil {
		return JiraConfigView{}, err
	}
	return s.GetJiraConfig(ctx, userID)
}

// CreateJiraIssue files an issue with the user's stored credentials. Without
// credentials no request leaves the process.
func (s *Service) CreateJiraIssue(ctx context.Context, userID string, input CreateIssueInput) (jira.Issue, error) {
	config, err := s.store.GetJiraConfig(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return jira.Issue{}, jira.ErrNotConfigured
	}
	if err != nil {
		return jira.Issue{}, err
	}

	summary := strings.TrimSpace(input.Summary)
	if summary == "" {
		return jira.Issue{}, validationError("summary is required")
	}
	description := strings.TrimSpace(input.Description)
	if description == "" {
		description = summary
	}
	issueType := strings.TrimSpace(input.IssueType)
	if issueType == "" {
		issueType = jira.DefaultIssueType
	}
	projectKey := strings.TrimSpace(input.ProjectKey)
	if projectKey == "" {
		projectKey = config.LastProjectKey
	}
	if projectKey == "" {
		projectKey = jira.DefaultProjectKey
	}

	apiToken, err := s.sealer.Open(config.SealedToken)
	if err != nil {
		return jira.Issue{}, fmt.Errorf("open jira token: %w", err)
	}

	issue, err := s.jira.CreateIssue(ctx, jira.Credentials{
		Domain:   config.Domain,
		Email:    config.Email,
		APIToken: apiToken,
	}, jira.IssueInput{
		ProjectKey:  projectKey,
		Summary:     summary,
		Description: description,
		IssueType:   issueType,
	})
	if err != nil {
		metrics.JiraIssue("error")
		return jira.Issue{}, err
	}
	metrics.JiraIssue("created")

	if projectKey != config.LastProjectKey {
		if err := s.store.UpdateJiraLastProjectKey(ctx, userID, projectKey); err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("remember jira project key")
		}
	}
	return issue, nil
}
