package settings

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"uk.co.dudmesh.roastlive/internal/model"
	"uk.co.dudmesh.roastlive/pkg/api"
	"uk.co.dudmesh.roastlive/pkg/feed"
)

type fakeAPI struct {
	mu       sync.Mutex
	settings map[string]model.Settings
	patches  int
}

func copyInto(v interface{}, out interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (f *fakeAPI) Get(ctx context.Context, path string, result interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	settings, ok := f.settings[path]
	if !ok {
		return &api.StatusError{Status: http.StatusNotFound, Method: http.MethodGet, Path: path}
	}
	return copyInto(settings, result)
}

func (f *fakeAPI) Post(ctx context.Context, path string, body interface{}, result interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	settings := model.DefaultSettings(model.UserID(path[len("/settings/"):]))
	f.settings[path] = settings
	return copyInto(settings, result)
}

func (f *fakeAPI) Patch(ctx context.Context, path string, body interface{}, result interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patches++
	settings := f.settings[path]
	body.(*model.SettingsPatch).Apply(&settings)
	f.settings[path] = settings
	return copyInto(settings, result)
}

func TestSettings(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	fake := &fakeAPI{settings: map[string]model.Settings{}}
	service := New(fake)

	_, ok := service.Cached("u1")
	assert.False(ok)

	settings, err := service.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(model.UserID("u1"), settings.UserID)
	assert.Equal(model.DefaultSlowModeSeconds, settings.SlowModeSeconds)

	t.Run("Update", func(t *testing.T) {
		seconds := 30
		on := true
		changed, err := service.Update(ctx, "u1", &model.SettingsPatch{SlowModeSeconds: &seconds, EnableSlowMode: &on})
		require.NoError(t, err)
		assert.True(changed)

		cached, ok := service.Cached("u1")
		assert.True(ok)
		assert.Equal(30, cached.SlowModeSeconds)
		assert.True(cached.EnableSlowMode)
	})

	t.Run("Slow Mode Bounds", func(t *testing.T) {
		for _, seconds := range []int{0, 61} {
			seconds := seconds
			changed, err := service.Update(ctx, "u1", &model.SettingsPatch{SlowModeSeconds: &seconds})
			assert.False(changed)
			var validation *feed.ValidationError
			require.ErrorAs(t, err, &validation)
			assert.Equal("slow_mode_seconds", validation.Field)
		}
		assert.Equal(1, fake.patches)
	})

	t.Run("Empty Patch", func(t *testing.T) {
		changed, err := service.Update(ctx, "u1", &model.SettingsPatch{})
		assert.Nil(err)
		assert.False(changed)
		assert.Equal(1, fake.patches)
	})

	t.Run("Bad Enum", func(t *testing.T) {
		theme := "neon"
		_, err := service.Update(ctx, "u1", &model.SettingsPatch{Theme: &theme})
		assert.True(feed.IsValidation(err))
	})
}
