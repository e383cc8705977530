/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package version exposes the build version and a background checker that
// polls GitHub for newer releases.
package version

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Version is the running build's version, injected at build time:
//
//	-X github.com/friendsincode/verdandi/internal/version.Version=X.Y.Z
var Version = "0.4.2"

// GitHubRepo is the repository polled for newer releases.
const GitHubRepo = "friendsincode/verdandi"

// checkInterval spaces release polls far enough apart to stay well inside
// GitHub's unauthenticated rate limit.
const checkInterval = 6 * time.Hour

// UserAgent returns the HTTP user agent for outbound requests.
func UserAgent() string {
	return "Verdandi/" + Version
}

// UpdateInfo is a point-in-time snapshot of the release check.
type UpdateInfo struct {
	CurrentVersion  string
	LatestVersion   string
	UpdateAvailable bool
	ReleaseURL      string
	ReleaseNotes    string
	CheckedAt       time.Time
}

// Checker polls the GitHub releases API in the background and caches the
// most recent result for the version endpoint.
type Checker struct {
	logger zerolog.Logger
	client *http.Client
	cancel context.CancelFunc

	mu   sync.RWMutex
	info *UpdateInfo
	etag string
}

type githubRelease struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
	Body    string `json:"body"`
}

// NewChecker creates a release checker. It does nothing until Start.
func NewChecker(logger zerolog.Logger) *Checker {
	return &Checker{
		logger: logger.With().Str("component", "update-checker").Logger(),
		client: &http.Client{Timeout: 10 * time.Second},
		info:   &UpdateInfo{CurrentVersion: Version},
	}
}

// Start launches the poll loop. The first check runs in the background so
// server startup never waits on GitHub.
func (c *Checker) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)

	go func() {
		c.check(ctx)

		ticker := time.NewTicker(checkInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.check(ctx)
			}
		}
	}()
}

// Stop cancels the poll loop.
func (c *Checker) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
}

// Info returns the latest check result. Before the first successful check
// it reports only the current version.
func (c *Checker) Info() *UpdateInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.info == nil {
		return &UpdateInfo{CurrentVersion: Version}
	}
	return c.info
}

func (c *Checker) check(ctx context.Context) {
	url := fmt.Sprintf("https://api.github.com/repos/%s/releases/latest", GitHubRepo)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		c.logger.Debug().Err(err).Msg("build release request")
		return
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", UserAgent())

	c.mu.RLock()
	if c.etag != "" {
		req.Header.Set("If-None-Match", c.etag)
	}
	c.mu.RUnlock()

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Msg("fetch latest release")
		return
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotModified:
		// Nothing newer since the last poll; keep the cached snapshot but
		// bump the check time so the endpoint reflects a fresh poll.
		c.mu.Lock()
		if c.info != nil {
			refreshed := *c.info
			refreshed.CheckedAt = time.Now()
			c.info = &refreshed
		}
		c.mu.Unlock()
		return
	default:
		c.logger.Debug().Int("status", resp.StatusCode).Msg("unexpected status from GitHub")
		return
	}

	var release githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		c.logger.Debug().Err(err).Msg("decode release")
		return
	}

	latest := strings.TrimPrefix(release.TagName, "v")
	available := compareVersions(Version, latest) < 0

	c.mu.Lock()
	c.etag = resp.Header.Get("ETag")
	c.info = &UpdateInfo{
		CurrentVersion:  Version,
		LatestVersion:   latest,
		UpdateAvailable: available,
		ReleaseURL:      release.HTMLURL,
		ReleaseNotes:    firstLine(release.Body, 200),
		CheckedAt:       time.Now(),
	}
	c.mu.Unlock()

	if available {
		c.logger.Info().
			Str("current", Version).
			Str("latest", latest).
			Str("url", release.HTMLURL).
			Msg("new version available")
	}
}

// compareVersions orders two semver strings. Returns -1, 0 or 1.
// Pre-release suffixes are ignored, so "1.2.0-rc1" sorts as "1.2.0".
func compareVersions(a, b string) int {
	av := parseVersion(a)
	bv := parseVersion(b)
	for i := range av {
		if av[i] != bv[i] {
			if av[i] < bv[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

func parseVersion(v string) [3]int {
	v = strings.TrimPrefix(v, "v")
	if i := strings.IndexAny(v, "-+"); i >= 0 {
		v = v[:i]
	}

	var out [3]int
	for i, part := range strings.Split(v, ".") {
		if i == len(out) {
			break
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			break
		}
		out[i] = n
	}
	return out
}

// firstLine reduces release notes to their first line, capped at maxLen.
func firstLine(s string, maxLen int) string {
	line, _, _ := strings.Cut(s, "\n")
	line = strings.TrimSpace(line)
	if len(line) > maxLen {
		return line[:maxLen-3] + "..."
	}
	return line
}
