package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arieluchka/spotify-ocd-saver/internal/infra/config"
)

func baseConfig() (config.PolicyConfig, config.MonitorConfig) {
	pc := config.PolicyConfig{Mode: "skip_windows", UnknownLyrics: "dont_skip"}
	mc := config.MonitorConfig{
		PreSkipBufferMs: 3000,
		GapToleranceMs:  5000,
		LandingPadMs:    100,
	}
	return pc, mc
}

func TestFromConfig(t *testing.T) {
	pc, mc := baseConfig()

	p, err := FromConfig(pc, mc)
	require.NoError(t, err)
	assert.Equal(t, ModeSkipWindows, p.Mode)
	assert.Equal(t, UnknownDontSkip, p.UnknownLyrics)
	assert.Equal(t, int64(3000), p.PreSkipBufferMs)
	assert.Equal(t, int64(5000), p.GapToleranceMs)
	assert.Equal(t, int64(100), p.LandingPadMs)
}

func TestFromConfigSettingsOverride(t *testing.T) {
	pc, mc := baseConfig()
	pc.Settings = map[string]any{
		"mode":               "skip_song",
		"pre_skip_buffer_ms": 1500,
	}

	p, err := FromConfig(pc, mc)
	require.NoError(t, err)
	assert.Equal(t, ModeSkipSong, p.Mode)
	assert.Equal(t, int64(1500), p.PreSkipBufferMs)
	assert.Equal(t, int64(5000), p.GapToleranceMs, "untouched values keep their defaults")
}

func TestApplyRejectsInvalid(t *testing.T) {
	pc, mc := baseConfig()
	base, err := FromConfig(pc, mc)
	require.NoError(t, err)

	t.Run("unknown mode", func(t *testing.T) {
		_, err := base.Apply(map[string]any{"mode": "mute"})
		assert.Error(t, err)
	})

	t.Run("negative buffer", func(t *testing.T) {
		_, err := base.Apply(map[string]any{"pre_skip_buffer_ms": -1})
		assert.Error(t, err)
	})

	t.Run("nil overrides keep the policy valid", func(t *testing.T) {
		p, err := base.Apply(nil)
		require.NoError(t, err)
		assert.Equal(t, base, p)
	})
}
