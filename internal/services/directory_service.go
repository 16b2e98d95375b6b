package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/iburossy/bolle-backend/internal/domain"
	"github.com/iburossy/bolle-backend/internal/repo"
)

// DirectoryRepo is the slice of the repository used by the directory.
type DirectoryRepo interface {
	CreateService(ctx context.Context, db *gorm.DB, s *domain.Service) error
	GetService(ctx context.Context, db *gorm.DB, id string) (*domain.Service, error)
	ListServices(ctx context.Context, db *gorm.DB, activeOnly bool) ([]domain.Service, error)
}

// RegisterServiceInput describes a new service directory entry. ID is
// optional: well-known producers such as the citizen platform register
// under a fixed id so that intake calls carrying X-Service-Id resolve to
// this entry, while anonymous entries are assigned a UUID.
type RegisterServiceInput struct {
	ID       string
	Name     string
	Category string
	BaseURL  string
	Active   bool
}

// DirectoryService manages the service directory consulted by the relay.
type DirectoryService struct {
	DB   *gorm.DB
	Repo DirectoryRepo

	Log zerolog.Logger
}

// Register stores a new directory entry. Name, category and base URL are
// all mandatory; an absent id is generated.
func (s *DirectoryService) Register(ctx context.Context, in RegisterServiceInput) (*domain.Service, error) {
	name := strings.TrimSpace(in.Name)
	category := strings.TrimSpace(in.Category)
	baseURL := strings.TrimSpace(in.BaseURL)
	if name == "" || category == "" || baseURL == "" {
		return nil, ErrInvalidPayload
	}
	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = uuid.NewString()
	}

	entry := &domain.Service{
		ID:       id,
		Name:     name,
		Category: category,
		BaseURL:  strings.TrimRight(baseURL, "/"),
		IsActive: in.Active,
	}
	if err := s.Repo.CreateService(ctx, s.DB, entry); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrServiceExists
		}
		return nil, err
	}
	s.Log.Info().Str("service_id", entry.ID).Str("category", category).Msg("service registered")
	return entry, nil
}

// Get returns one directory entry by id.
func (s *DirectoryService) Get(ctx context.Context, id string) (*domain.Service, error) {
	entry, err := s.Repo.GetService(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrServiceUnavailable
		}
		return nil, err
	}
	return entry, nil
}

// List returns directory entries ordered by name, optionally restricted
// to active ones.
func (s *DirectoryService) List(ctx context.Context, activeOnly bool) ([]domain.Service, error) {
	return s.Repo.ListServices(ctx, s.DB, activeOnly)
}
