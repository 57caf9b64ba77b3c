// Package lrclib provides a client for the LRCLIB lyrics API.
package lrclib

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/arieluchka/spotify-ocd-saver/internal/domain/lyrics"
)

// ErrNotFound is returned when no lyrics exist for the queried track.
var ErrNotFound = errors.New("lyrics not found")

// durationToleranceSec is the accepted duration mismatch when picking
// a record from fuzzy search results.
const durationToleranceSec = 2

// Client is an LRCLIB API client.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client

	// Cache for successful lookups, keyed by artist/title/duration.
	cache   map[string]*Result
	cacheMu sync.RWMutex
}

// Config represents LRCLIB client configuration.
type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// Query identifies a track to look lyrics up for.
type Query struct {
	Title      string
	Artist     string
	Album      string
	DurationMs int64
}

// Result is the outcome of a successful lyrics lookup. SyncedLines is
// empty when only plain lyrics exist.
type Result struct {
	SyncedLines   []lyrics.Line
	PlainText     string
	SyncedTrackID string
	PlainTrackID  string
}

// record is the LRCLIB wire representation of one lyrics entry.
type record struct {
	ID           int64   `json:"id"`
	TrackName    string  `json:"trackName"`
	ArtistName   string  `json:"artistName"`
	AlbumName    string  `json:"albumName"`
	Duration     float64 `json:"duration"`
	Instrumental bool    `json:"instrumental"`
	PlainLyrics  string  `json:"plainLyrics"`
	SyncedLyrics string  `json:"syncedLyrics"`
}

// New creates a new LRCLIB client.
func New(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://lrclib.net"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		userAgent:  cfg.UserAgent,
		httpClient: &http.Client{Timeout: timeout},
		cache:      make(map[string]*Result),
	}
}

// Lookup finds lyrics for the given track. Synced lyrics are preferred;
// when the exact lookup has none, a fuzzy search constrained by track
// duration is tried before falling back to plain lyrics. Returns
// ErrNotFound when the provider has nothing usable.
func (c *Client) Lookup(ctx context.Context, q Query) (*Result, error) {
	if q.Title == "" || q.Artist == "" {
		return nil, errors.New("title and artist are required")
	}

	key := cacheKey(q)
	c.cacheMu.RLock()
	if cached, ok := c.cache[key]; ok {
		c.cacheMu.RUnlock()
		zlog.Debug().Msgf("lrclib: cache hit: artist=%s title=%s", q.Artist, q.Title)
		return cached, nil
	}
	c.cacheMu.RUnlock()

	result, err := c.lookup(ctx, q)
	if err != nil {
		return nil, err
	}

	c.cacheMu.Lock()
	c.cache[key] = result
	c.cacheMu.Unlock()
	return result, nil
}

func (c *Client) lookup(ctx context.Context, q Query) (*Result, error) {
	exact, err := c.get(ctx, q)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if exact != nil && exact.SyncedLyrics != "" {
		return resultFromRecord(exact), nil
	}

	// No synced lyrics on the exact match; widen to a fuzzy search.
	candidates, err := c.search(ctx, q)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	durationSec := q.DurationMs / 1000
	for i := range candidates {
		r := &candidates[i]
		if r.SyncedLyrics == "" {
			continue
		}
		if durationSec > 0 && !withinTolerance(int64(r.Duration), durationSec) {
			continue
		}
		zlog.Debug().Msgf("lrclib: synced lyrics found via search: artist=%s title=%s id=%d", q.Artist, q.Title, r.ID)
		return resultFromRecord(r), nil
	}

	// Fall back to plain lyrics, exact result first.
	if exact != nil && exact.PlainLyrics != "" {
		return resultFromRecord(exact), nil
	}
	for i := range candidates {
		r := &candidates[i]
		if r.PlainLyrics == "" {
			continue
		}
		if durationSec > 0 && !withinTolerance(int64(r.Duration), durationSec) {
			continue
		}
		return resultFromRecord(r), nil
	}

	return nil, errors.Wrapf(ErrNotFound, "artist=%s title=%s", q.Artist, q.Title)
}

// get calls the exact-match /api/get endpoint.
func (c *Client) get(ctx context.Context, q Query) (*record, error) {
	params := url.Values{}
	params.Set("track_name", q.Title)
	params.Set("artist_name", q.Artist)
	if q.Album != "" {
		params.Set("album_name", q.Album)
	}
	if q.DurationMs > 0 {
		params.Set("duration", strconv.FormatInt(q.DurationMs/1000, 10))
	}

	var rec record
	if err := c.doRequest(ctx, "/api/get", params, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// search calls the fuzzy /api/search endpoint.
func (c *Client) search(ctx context.Context, q Query) ([]record, error) {
	params := url.Values{}
	params.Set("track_name", q.Title)
	params.Set("artist_name", q.Artist)

	var recs []record
	if err := c.doRequest(ctx, "/api/search", params, &recs); err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, errors.Wrapf(ErrNotFound, "search artist=%s title=%s", q.Artist, q.Title)
	}
	return recs, nil
}

func (c *Client) doRequest(ctx context.Context, path string, params url.Values, out any) error {
	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "lrclib request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errors.Wrapf(ErrNotFound, "%s", path)
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Newf("lrclib returned status %d for %s", resp.StatusCode, path)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response body")
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, "failed to parse lrclib response")
	}
	return nil
}

func resultFromRecord(r *record) *Result {
	res := &Result{PlainText: r.PlainLyrics}
	id := strconv.FormatInt(r.ID, 10)
	if r.SyncedLyrics != "" {
		res.SyncedLines = lyrics.ParseLRC(r.SyncedLyrics)
		res.SyncedTrackID = id
	}
	if r.PlainLyrics != "" {
		res.PlainTrackID = id
	}
	return res
}

func withinTolerance(got, want int64) bool {
	diff := got - want
	if diff < 0 {
		diff = -diff
	}
	return diff <= durationToleranceSec
}

func cacheKey(q Query) string {
	return fmt.Sprintf("%s|%s|%d", q.Artist, q.Title, q.DurationMs/1000)
}
