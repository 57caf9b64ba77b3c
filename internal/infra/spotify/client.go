// Package spotify provides a client for the Spotify playback API.
package spotify

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/arieluchka/spotify-ocd-saver/internal/domain/playback"
	"github.com/arieluchka/spotify-ocd-saver/internal/domain/song"
)

// Client is a Spotify API client scoped to playback monitoring and
// control for a single account.
type Client struct {
	client     *spotify.Client
	maxRetries int
	retryDelay time.Duration
}

// Config represents Spotify client configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// New creates a new Spotify client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, errors.New("spotify credentials are required")
	}

	auth := spotifyauth.New(
		spotifyauth.WithClientID(cfg.ClientID),
		spotifyauth.WithClientSecret(cfg.ClientSecret),
		spotifyauth.WithScopes(
			spotifyauth.ScopeUserReadPlaybackState,
			spotifyauth.ScopeUserReadCurrentlyPlaying,
			spotifyauth.ScopeUserModifyPlaybackState,
		),
	)

	token := &oauth2.Token{
		RefreshToken: cfg.RefreshToken,
	}

	// HTTP client with auto-refresh capability
	httpClient := auth.Client(ctx, token)

	return &Client{
		client:     spotify.New(httpClient),
		maxRetries: 3,
		retryDelay: time.Second,
	}, nil
}

// GetState returns the current playback snapshot. The snapshot's Track
// is nil when no track is loaded on the player.
func (c *Client) GetState(ctx context.Context) (*playback.Snapshot, error) {
	var state *spotify.PlayerState
	err := c.retry(func() error {
		s, err := c.client.PlayerState(ctx)
		if err != nil {
			return err
		}
		state = s
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get player state")
	}

	snap := &playback.Snapshot{
		PositionMs: int64(state.Progress),
		IsPlaying:  state.Playing,
	}
	if state.Item != nil {
		snap.Track = convertTrack(state.Item)
	}
	return snap, nil
}

// Seek moves the playhead of the currently playing track.
func (c *Client) Seek(ctx context.Context, positionMs int64) error {
	err := c.retry(func() error {
		return c.client.Seek(ctx, int(positionMs))
	})
	return errors.Wrap(err, "failed to seek")
}

// SkipToNext advances playback to the next track.
func (c *Client) SkipToNext(ctx context.Context) error {
	err := c.retry(func() error {
		return c.client.Next(ctx)
	})
	return errors.Wrap(err, "failed to skip to next track")
}

// GetUpcoming returns the user's upcoming play queue.
func (c *Client) GetUpcoming(ctx context.Context) ([]song.TrackInfo, error) {
	var queue *spotify.Queue
	err := c.retry(func() error {
		q, err := c.client.GetQueue(ctx)
		if err != nil {
			return err
		}
		queue = q
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get queue")
	}

	tracks := make([]song.TrackInfo, 0, len(queue.Items))
	for i := range queue.Items {
		if queue.Items[i].ID == "" {
			continue
		}
		tracks = append(tracks, *convertTrack(&queue.Items[i]))
	}
	return tracks, nil
}

// convertTrack converts a Spotify track to the domain representation.
func convertTrack(t *spotify.FullTrack) *song.TrackInfo {
	artist := ""
	if len(t.Artists) > 0 {
		artist = t.Artists[0].Name
	}
	return &song.TrackInfo{
		SpotifyID:  string(t.ID),
		Title:      t.Name,
		Artist:     artist,
		Album:      t.Album.Name,
		DurationMs: int64(t.Duration),
		ISRC:       t.ExternalIDs["isrc"],
	}
}

// retry executes fn with retries on transient failures.
func (c *Client) retry(fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			zlog.Debug().Msgf("spotify: retrying request: attempt=%d", attempt)
			time.Sleep(c.retryDelay * time.Duration(attempt))
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// isRetryable checks whether an error is worth retrying.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "temporary")
}
