// Package policy defines per-session playback policies: what the
// monitor does when it approaches a trigger window and how it treats
// songs whose lyrics could not be timed.
package policy

import (
	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/arieluchka/spotify-ocd-saver/internal/infra/config"
)

// Mode selects how contaminated playback is avoided.
type Mode string

const (
	// ModeSkipWindows seeks past each trigger window individually.
	ModeSkipWindows Mode = "skip_windows"
	// ModeSkipSong skips the whole track as soon as any window exists.
	ModeSkipSong Mode = "skip_song"
)

// UnknownLyrics selects the behavior for songs with no timed windows:
// no lyrics found, or plain lyrics only.
type UnknownLyrics string

const (
	UnknownSkip        UnknownLyrics = "skip"
	UnknownDontSkip    UnknownLyrics = "dont_skip"
	UnknownSkipIfPlain UnknownLyrics = "skip_if_plain"
)

// Policy is a resolved, validated playback policy.
type Policy struct {
	Mode          Mode          `validate:"oneof=skip_windows skip_song"`
	UnknownLyrics UnknownLyrics `validate:"oneof=skip dont_skip skip_if_plain"`

	// PreSkipBufferMs widens the skip decision: a position within this
	// many milliseconds before a window start is treated as inside it.
	PreSkipBufferMs int64 `validate:"gte=0,lte=30000"`
	// GapToleranceMs is the maximum gap between occurrences merged into
	// one window.
	GapToleranceMs int64 `validate:"gte=0,lte=60000"`
	// LandingPadMs is added to the window end when seeking, so playback
	// resumes just past the trigger rather than on its edge.
	LandingPadMs int64 `validate:"gte=0,lte=5000"`
}

// settings are the per-request overrides accepted on top of the
// configured defaults.
type settings struct {
	Mode            string `mapstructure:"mode"`
	UnknownLyrics   string `mapstructure:"unknown_lyrics"`
	PreSkipBufferMs *int64 `mapstructure:"pre_skip_buffer_ms"`
	GapToleranceMs  *int64 `mapstructure:"gap_tolerance_ms"`
	LandingPadMs    *int64 `mapstructure:"landing_pad_ms"`
}

// FromConfig builds the default policy from configuration, applying
// any settings overrides on top.
func FromConfig(pc config.PolicyConfig, mc config.MonitorConfig) (Policy, error) {
	p := Policy{
		Mode:            Mode(pc.Mode),
		UnknownLyrics:   UnknownLyrics(pc.UnknownLyrics),
		PreSkipBufferMs: mc.PreSkipBufferMs,
		GapToleranceMs:  mc.GapToleranceMs,
		LandingPadMs:    mc.LandingPadMs,
	}
	return p.Apply(pc.Settings)
}

// Apply returns a copy of the policy with the given overrides applied
// and validated. A nil or empty override map returns the policy as is.
func (p Policy) Apply(overrides map[string]any) (Policy, error) {
	if len(overrides) > 0 {
		var s settings
		if err := mapstructure.Decode(overrides, &s); err != nil {
			return Policy{}, errors.Wrap(err, "failed to decode policy settings")
		}
		if s.Mode != "" {
			p.Mode = Mode(s.Mode)
		}
		if s.UnknownLyrics != "" {
			p.UnknownLyrics = UnknownLyrics(s.UnknownLyrics)
		}
		if s.PreSkipBufferMs != nil {
			p.PreSkipBufferMs = *s.PreSkipBufferMs
		}
		if s.GapToleranceMs != nil {
			p.GapToleranceMs = *s.GapToleranceMs
		}
		if s.LandingPadMs != nil {
			p.LandingPadMs = *s.LandingPadMs
		}
	}

	if err := validator.New().Struct(&p); err != nil {
		return Policy{}, errors.Wrap(err, "policy validation failed")
	}
	return p, nil
}
