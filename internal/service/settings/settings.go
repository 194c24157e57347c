package settings

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"uk.co.dudmesh.roastlive/internal/model"
	"uk.co.dudmesh.roastlive/pkg/api"
)

type API interface {
	Get(ctx context.Context, path string, result interface{}) error
	Post(ctx context.Context, path string, body interface{}, result interface{}) error
	Patch(ctx context.Context, path string, body interface{}, result interface{}) error
}

// Service reads and writes user settings and caches the last copy seen per
// user.
type Service struct {
	api API

	mu    sync.RWMutex
	cache map[model.UserID]model.Settings
}

func New(api API) *Service {
	return &Service{api: api, cache: make(map[model.UserID]model.Settings)}
}

func settingsPath(userID model.UserID) string {
	return "/settings/" + url.PathEscape(string(userID))
}

// Get fetches the settings of a user, initializing them with the defaults
// when the user has none yet.
func (s *Service) Get(ctx context.Context, userID model.UserID) (*model.Settings, error) {
	settings := &model.Settings{}
	err := s.api.Get(ctx, settingsPath(userID), settings)
	if api.IsStatus(err, http.StatusNotFound) {
		return s.Initialize(ctx, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("fetching settings: %w", err)
	}
	s.remember(settings)
	return settings, nil
}

func (s *Service) Initialize(ctx context.Context, userID model.UserID) (*model.Settings, error) {
	settings := &model.Settings{}
	if err := s.api.Post(ctx, settingsPath(userID), struct{}{}, settings); err != nil {
		return nil, fmt.Errorf("initializing settings: %w", err)
	}
	s.remember(settings)
	return settings, nil
}

// Update validates patch and writes it. It reports false without a request
// when patch changes nothing.
func (s *Service) Update(ctx context.Context, userID model.UserID, patch *model.SettingsPatch) (bool, error) {
	if err := patch.Validate(); err != nil {
		return false, err
	}
	if patch.Empty() {
		return false, nil
	}

	settings := &model.Settings{}
	if err := s.api.Patch(ctx, settingsPath(userID), patch, settings); err != nil {
		return false, fmt.Errorf("updating settings: %w", err)
	}
	s.remember(settings)
	return true, nil
}

// Cached returns the last settings seen for a user without a request.
func (s *Service) Cached(userID model.UserID) (model.Settings, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	settings, ok := s.cache[userID]
	return settings, ok
}

func (s *Service) remember(settings *model.Settings) {
	if settings.UserID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[settings.UserID] = *settings
}
