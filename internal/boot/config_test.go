package boot

import (
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
)

func TestLoad(t *testing.T) {
	assert := assert.New(t)

	t.Run("Defaults", func(t *testing.T) {
		config, err := LoadWith(envconfig.MapLookuper(map[string]string{}))
		assert.Nil(err)
		assert.True(config.IsDevelopment())
		assert.Equal(10*time.Second, config.SendTimeout)
		assert.Equal("8080", config.Server.Port)
		assert.Equal([]string{"*"}, config.Server.Origins)
		assert.Equal(500*time.Millisecond, config.Client.MinBackoff)
	})

	t.Run("Overrides", func(t *testing.T) {
		config, err := LoadWith(envconfig.MapLookuper(map[string]string{
			"ENV":            "prod",
			"SEND_TIMEOUT":   "3s",
			"USER_ID":        "u1",
			"DATA_DIR":       "/tmp/roast",
			"SERVER_PORT":    "9000",
			"MODERATION_URL": "http://moderation",
		}))
		assert.Nil(err)
		assert.True(config.IsProduction())
		assert.Equal(3*time.Second, config.SendTimeout)
		assert.Equal("u1", config.Client.UserID)
		assert.Equal("/tmp/roast", config.DataDirectory())
		assert.Equal("9000", config.Server.Port)
	})

	t.Run("Invalid", func(t *testing.T) {
		_, err := LoadWith(envconfig.MapLookuper(map[string]string{"SEND_TIMEOUT": "soon"}))
		assert.NotNil(err)

		_, err = LoadWith(envconfig.MapLookuper(map[string]string{
			"RECONNECT_MIN_BACKOFF": "1m",
			"RECONNECT_MAX_BACKOFF": "1s",
		}))
		assert.NotNil(err)
	})
}
