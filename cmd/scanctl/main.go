// Package main provides the dashboard CLI entry point.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
)

var (
	app    = kingpin.New("scanctl", "Trigger-word skipping dashboard client")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	userID = app.Flag("user", "Acting user id (or set OCD_SAVER_USER env)").Envar("OCD_SAVER_USER").String()

	// status command
	statusCmd = app.Command("status", "Show monitoring status and stats")

	// start/stop commands
	startCmd  = app.Command("start", "Start monitoring")
	startMode = startCmd.Flag("mode", "Policy mode (skip_windows or skip_song)").String()
	stopCmd   = app.Command("stop", "Stop monitoring")

	// categories commands
	listCategoriesCmd = app.Command("categories", "List trigger categories").Alias("cats")

	addCategoryCmd   = app.Command("add-category", "Create a trigger category")
	addCategoryName  = addCategoryCmd.Arg("name", "Category name").Required().String()
	addCategoryWords = addCategoryCmd.Arg("words", "Comma-separated trigger words").Required().String()

	deleteCategoryCmd = app.Command("delete-category", "Delete a trigger category")
	deleteCategoryID  = deleteCategoryCmd.Arg("id", "Category ID").Required().Int64()

	// songs commands
	searchCmd   = app.Command("search", "Search known songs")
	searchQuery = searchCmd.Arg("query", "Search text").Required().String()

	contaminatedCmd = app.Command("contaminated", "List songs with trigger occurrences")

	triggersCmd    = app.Command("triggers", "Show a song's skip windows")
	triggersSongID = triggersCmd.Arg("song-id", "Song ID").Required().Int64()

	scanCmd    = app.Command("scan", "Scan a song's lyrics now")
	scanSongID = scanCmd.Arg("song-id", "Song ID").Required().Int64()
	scanForce  = scanCmd.Flag("force", "Re-scan even if already scanned").Bool()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	c := &client{base: strings.TrimRight(*server, "/"), userID: *userID}

	switch command {
	case statusCmd.FullCommand():
		status(c)
	case startCmd.FullCommand():
		start(c, *startMode)
	case stopCmd.FullCommand():
		stop(c)
	case listCategoriesCmd.FullCommand():
		listCategories(c)
	case addCategoryCmd.FullCommand():
		addCategory(c, *addCategoryName, *addCategoryWords)
	case deleteCategoryCmd.FullCommand():
		deleteCategory(c, *deleteCategoryID)
	case searchCmd.FullCommand():
		search(c, *searchQuery)
	case contaminatedCmd.FullCommand():
		contaminated(c)
	case triggersCmd.FullCommand():
		triggers(c, *triggersSongID)
	case scanCmd.FullCommand():
		scanSong(c, *scanSongID, *scanForce)
	}
}

// client is a minimal JSON API client.
type client struct {
	base   string
	userID string
}

func (c *client) do(method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequest(method, c.base+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.userID != "" {
		req.Header.Set("X-User-ID", c.userID)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Message string `json:"message"`
		}
		data, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("%s: %s", resp.Status, apiErr.Message)
		}
		return fmt.Errorf("%s", resp.Status)
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func fatal(err error) {
	fmt.Printf("Error: %v\n", err)
	os.Exit(1)
}

func status(c *client) {
	var monitoring struct {
		Sessions []struct {
			ID      string `json:"id"`
			UserID  *int64 `json:"userId"`
			TrackID string `json:"trackId"`
			Policy  string `json:"policy"`
		} `json:"sessions"`
		Count int `json:"count"`
	}
	if err := c.do(http.MethodGet, "/api/monitoring/status", nil, &monitoring); err != nil {
		fatal(err)
	}

	var stats struct {
		Songs             int64 `json:"songs"`
		Occurrences       int64 `json:"occurrences"`
		ContaminatedSongs int   `json:"contaminatedSongs"`
	}
	if err := c.do(http.MethodGet, "/api/stats", nil, &stats); err != nil {
		fatal(err)
	}

	fmt.Println("\n=== MONITORING STATUS ===")
	if monitoring.Count == 0 {
		fmt.Println("No active sessions")
	}
	for _, s := range monitoring.Sessions {
		scope := "global"
		if s.UserID != nil {
			scope = fmt.Sprintf("user %d", *s.UserID)
		}
		fmt.Printf("Session %s (%s, policy=%s)\n", s.ID, scope, s.Policy)
		if s.TrackID != "" {
			fmt.Printf("  Current track: %s\n", s.TrackID)
		}
	}
	fmt.Printf("\nSongs: %d  Occurrences: %d  Contaminated: %d\n",
		stats.Songs, stats.Occurrences, stats.ContaminatedSongs)
}

func start(c *client, mode string) {
	body := map[string]any{}
	if mode != "" {
		body["settings"] = map[string]any{"mode": mode}
	}

	var session struct {
		ID string `json:"id"`
	}
	if err := c.do(http.MethodPost, "/api/monitoring/start", body, &session); err != nil {
		fatal(err)
	}
	fmt.Printf("Monitoring started (session %s)\n", session.ID)
}

func stop(c *client) {
	if err := c.do(http.MethodPost, "/api/monitoring/stop", map[string]any{}, nil); err != nil {
		fatal(err)
	}
	fmt.Println("Monitoring stopped")
}

func listCategories(c *client) {
	var resp struct {
		Categories []struct {
			ID       int64    `json:"id"`
			Name     string   `json:"name"`
			Words    []string `json:"words"`
			UserID   *int64   `json:"userId"`
			IsActive bool     `json:"isActive"`
		} `json:"categories"`
	}
	if err := c.do(http.MethodGet, "/api/trigger-categories", nil, &resp); err != nil {
		fatal(err)
	}

	fmt.Println("\n=== TRIGGER CATEGORIES ===")
	if len(resp.Categories) == 0 {
		fmt.Println("No categories defined")
	}
	for _, cat := range resp.Categories {
		scope := "global"
		if cat.UserID != nil {
			scope = fmt.Sprintf("user %d", *cat.UserID)
		}
		state := "active"
		if !cat.IsActive {
			state = "inactive"
		}
		fmt.Printf("%4d  %-20s (%s, %s): %s\n", cat.ID, cat.Name, scope, state, strings.Join(cat.Words, ", "))
	}
}

func addCategory(c *client, name, words string) {
	wordList := strings.Split(words, ",")
	for i := range wordList {
		wordList[i] = strings.TrimSpace(wordList[i])
	}

	var created struct {
		ID int64 `json:"id"`
	}
	body := map[string]any{"name": name, "words": wordList}
	if err := c.do(http.MethodPost, "/api/trigger-categories", body, &created); err != nil {
		fatal(err)
	}
	fmt.Printf("Created category %q (id=%d)\n", name, created.ID)
}

func deleteCategory(c *client, id int64) {
	if err := c.do(http.MethodDelete, fmt.Sprintf("/api/trigger-categories/%d", id), nil, nil); err != nil {
		fatal(err)
	}
	fmt.Printf("Deleted category %d\n", id)
}

type songListing struct {
	Songs []struct {
		ID         int64  `json:"id"`
		Title      string `json:"title"`
		Artist     string `json:"artist"`
		ScanStatus string `json:"scanStatus"`
	} `json:"songs"`
	Count int `json:"count"`
}

func printSongs(listing songListing) {
	if listing.Count == 0 {
		fmt.Println("No songs found")
		return
	}
	for _, s := range listing.Songs {
		fmt.Printf("%4d  %s - %s [%s]\n", s.ID, s.Artist, s.Title, s.ScanStatus)
	}
}

func search(c *client, query string) {
	var listing songListing
	if err := c.do(http.MethodGet, "/api/songs/search?q="+url.QueryEscape(query), nil, &listing); err != nil {
		fatal(err)
	}
	printSongs(listing)
}

func contaminated(c *client) {
	var listing songListing
	if err := c.do(http.MethodGet, "/api/songs/contaminated", nil, &listing); err != nil {
		fatal(err)
	}
	fmt.Println("\n=== CONTAMINATED SONGS ===")
	printSongs(listing)
}

func triggers(c *client, songID int64) {
	var resp struct {
		ScanStatus string `json:"scanStatus"`
		Windows    []struct {
			StartTimeMs int64 `json:"start_time_ms"`
			EndTimeMs   int64 `json:"end_time_ms"`
		} `json:"windows"`
		Occurrences []struct {
			Word        string `json:"word"`
			StartTimeMs int64  `json:"startTimeMs"`
		} `json:"occurrences"`
	}
	if err := c.do(http.MethodGet, fmt.Sprintf("/api/songs/%d/triggers", songID), nil, &resp); err != nil {
		fatal(err)
	}

	fmt.Printf("Scan status: %s\n", resp.ScanStatus)
	fmt.Printf("Skip windows (%d):\n", len(resp.Windows))
	for _, w := range resp.Windows {
		fmt.Printf("  %s - %s\n", formatMs(w.StartTimeMs), formatMs(w.EndTimeMs))
	}
	if len(resp.Occurrences) > 0 {
		fmt.Printf("Occurrences (%d):\n", len(resp.Occurrences))
		for _, o := range resp.Occurrences {
			fmt.Printf("  %s at %s\n", o.Word, formatMs(o.StartTimeMs))
		}
	}
}

func scanSong(c *client, songID int64, force bool) {
	path := fmt.Sprintf("/api/songs/%d/scan", songID)
	if force {
		path += "?force=true"
	}

	var resp struct {
		ScanStatus string `json:"scanStatus"`
	}
	if err := c.do(http.MethodPost, path, nil, &resp); err != nil {
		fatal(err)
	}
	fmt.Printf("Song %d scanned: %s\n", songID, resp.ScanStatus)
}

func formatMs(ms int64) string {
	return fmt.Sprintf("%d:%05.2f", ms/60000, float64(ms%60000)/1000)
}
