package jobs

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/heimdex/heimdex-notes/internal/services"
)

const (
	configKeyAuthToken = "auth_token"
	maxIDLen           = 64
)

type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

func (s *Service) Repository() Repository { return s.repo }

// Submit records a pending job for videoURL. An empty id gets a fresh UUID;
// a caller-chosen id must be unused.
func (s *Service) Submit(ctx context.Context, videoURL, id string) (*Job, error) {
	if err := ValidateVideoURL(videoURL); err != nil {
		return nil, err
	}
	if id == "" {
		id = NewID()
	}
	if err := ValidateID(id); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, services.Validation("jobs", fmt.Sprintf("job %s already exists", id))
	}

	now := time.Now()
	job := &Job{
		ID:        id,
		VideoURL:  videoURL,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.Info("job submitted", "job_id", job.ID)
	}
	return job, nil
}

// Get returns services.ErrNotFound for unknown ids.
func (s *Service) Get(ctx context.Context, id string) (*Job, error) {
	job, err := s.repo.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, services.Wrap(services.ErrNotFound, "jobs", "get", "job "+id, nil)
	}
	return job, nil
}

func (s *Service) List(ctx context.Context, limit int) ([]*Job, error) {
	return s.repo.ListJobs(ctx, limit)
}

// EnsureAuthToken returns the API bearer token, generating and storing one
// on first use.
func (s *Service) EnsureAuthToken(ctx context.Context) (string, error) {
	existing, err := s.repo.GetConfig(ctx, configKeyAuthToken)
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := s.repo.SetConfig(ctx, configKeyAuthToken, token); err != nil {
		return "", err
	}
	return token, nil
}

// SetAuthToken stores an operator-chosen API token.
func (s *Service) SetAuthToken(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if len(token) < 16 {
		return services.Validation("jobs", "api token must be at least 16 characters")
	}
	return s.repo.SetConfig(ctx, configKeyAuthToken, token)
}

// AuthToken returns the stored API token, or "" when none was generated.
func (s *Service) AuthToken(ctx context.Context) (string, error) {
	return s.repo.GetConfig(ctx, configKeyAuthToken)
}

// ValidateVideoURL accepts absolute http(s) URLs only.
func ValidateVideoURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return services.Validation("jobs", "video url is required")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return services.Validation("jobs", "video url must be an absolute http(s) url")
	}
	return nil
}

// ValidateID checks that id can be used verbatim as a blob prefix and a
// local directory name.
func ValidateID(id string) error {
	if id == "" {
		return services.Validation("jobs", "job id is required")
	}
	if len(id) > maxIDLen {
		return services.Validation("jobs", fmt.Sprintf("job id longer than %d characters", maxIDLen))
	}
	if id == "." || id == ".." || strings.HasPrefix(id, ".") {
		return services.Validation("jobs", "job id cannot start with a dot")
	}
	for _, r := range id {
		if !isAllowedIDRune(r) {
			return services.Validation("jobs", fmt.Sprintf("job id contains invalid character %q", r))
		}
	}
	return nil
}

func isAllowedIDRune(r rune) bool {
	if r < 0x80 && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
		return true
	}
	switch r {
	case '-', '_', '.':
		return true
	default:
		return false
	}
}

// DisplayName derives a human-readable video name from the job, used when
// registering the video with the indexer.
func DisplayName(job *Job, maxLen int) string {
	name := ""
	if u, err := url.Parse(job.VideoURL); err == nil {
		name = strings.TrimSuffix(path.Base(u.Path), path.Ext(u.Path))
	}
	if name == "" || name == "." || name == "/" {
		name = job.ID
	}
	return SanitizeName(name, maxLen)
}

// SanitizeName drops control characters and replaces anything outside a
// conservative set with '_'.
func SanitizeName(s string, maxLen int) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsControl(r) {
			continue
		}
		if isAllowedNameRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}

	cleaned := strings.TrimSpace(b.String())
	if maxLen > 0 {
		runes := []rune(cleaned)
		if len(runes) > maxLen {
			cleaned = string(runes[:maxLen])
		}
	}
	return cleaned
}

func isAllowedNameRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case ' ', '-', '_', '.', ',', '(', ')':
		return true
	default:
		return false
	}
}
