package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"wallpaper-scraper/pkg/utils"
)

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	// DefaultURL
	if c.DefaultURL == "" {
		c.DefaultURL = DefaultURL
	} else if u, perr := url.Parse(c.DefaultURL); perr != nil || u.Scheme == "" || u.Host == "" {
		return warnings, fmt.Errorf("%w: default_url %q is not an absolute URL", utils.ErrConfigValidation, c.DefaultURL)
	}

	// OutputDir
	if c.OutputDir == "" {
		c.OutputDir = DefaultOutputDir
	}
	c.OutputDir = ExpandHome(c.OutputDir)

	// Concurrency
	if c.Concurrency < 0 {
		warnings = append(warnings, fmt.Sprintf("concurrency cannot be negative, defaulting to %d", DefaultConcurrency))
		c.Concurrency = DefaultConcurrency
	} else if c.Concurrency == 0 {
		c.Concurrency = DefaultConcurrency
	}

	// Per-host caps are opt-in: concurrency already bounds a run.
	if c.MaxRequestsPerHost < 0 {
		warnings = append(warnings, "max_requests_per_host cannot be negative, disabling per-host cap")
		c.MaxRequestsPerHost = 0
	}
	if c.MaxRequestsPerHost > c.Concurrency {
		warnings = append(warnings, fmt.Sprintf(
			"max_requests_per_host (%d) exceeds concurrency (%d) and has no effect",
			c.MaxRequestsPerHost, c.Concurrency))
	}
	for _, host := range sortedKeys(c.HostLimits) {
		limit := c.HostLimits[host]
		switch {
		case strings.TrimSpace(host) == "" || limit <= 0:
			warnings = append(warnings, fmt.Sprintf("host_limits entry %q=%d ignored, limit must be positive", host, limit))
			delete(c.HostLimits, host)
		case limit > c.Concurrency:
			warnings = append(warnings, fmt.Sprintf(
				"host_limits %s (%d) exceeds concurrency (%d) and has no effect", host, limit, c.Concurrency))
		}
	}

	// DefaultDelayPerHost
	if c.DefaultDelayPerHost < 0 {
		warnings = append(warnings, "default_delay_per_host cannot be negative, disabling delay")
		c.DefaultDelayPerHost = 0
	}

	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}

	// MaxImageSizeBytes
	if c.MaxImageSizeBytes < 0 {
		warnings = append(warnings, "max_image_size_bytes cannot be negative, setting to 0 (unlimited)")
		c.MaxImageSizeBytes = 0
	}

	// ChunkSize
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	} else if c.ChunkSize < 512 {
		warnings = append(warnings, fmt.Sprintf("chunk_size %d is very small, raising to 512", c.ChunkSize))
		c.ChunkSize = 512
	}

	if c.ManualPerImage <= 0 {
		c.ManualPerImage = DefaultManualPerImage
	}

	c.validateRenderSettings(&warnings)

	if c.Resolve.DownloadControlSelector == "" {
		c.Resolve.DownloadControlSelector = DefaultDownloadControl
	}
	if c.Resolve.Timeout <= 0 {
		c.Resolve.Timeout = DefaultResolveTimeout
	}

	// Challenge
	if c.Challenge.Timeout <= 0 {
		c.Challenge.Timeout = 30 * time.Second
	}
	if len(c.Challenge.Markers) == 0 {
		c.Challenge.Markers = append([]string(nil), DefaultChallengeMarkers...)
	}
	if _, err := utils.CompileMarkerPatterns(c.Challenge.Markers); err != nil {
		return warnings, err
	}

	// HTTPClientSettings defaults
	c.validateHTTPClientSettings()

	return warnings, nil
}

// validateRenderSettings applies defaults to the browser settings.
func (c *AppConfig) validateRenderSettings(warnings *[]string) {
	r := &c.Render
	if r.NavigationTimeout <= 0 {
		r.NavigationTimeout = DefaultNavigationTimeout
	}
	if r.IdleTimeout <= 0 {
		r.IdleTimeout = DefaultIdleTimeout
	}
	if r.ScrollSettle <= 0 {
		r.ScrollSettle = DefaultScrollSettle
	}
	if r.MaxScrollIterations < 0 {
		*warnings = append(*warnings, fmt.Sprintf(
			"render.max_scroll_iterations cannot be negative, defaulting to %d", DefaultMaxScrollIter))
		r.MaxScrollIterations = DefaultMaxScrollIter
	} else if r.MaxScrollIterations == 0 {
		r.MaxScrollIterations = DefaultMaxScrollIter
	}
	if r.ViewportWidth <= 0 {
		r.ViewportWidth = 1920
	}
	if r.ViewportHeight <= 0 {
		r.ViewportHeight = 1080
	}
	if len(r.CategorySelectors) == 0 {
		r.CategorySelectors = append([]string(nil), DefaultCategorySelectors...)
	}
	if len(r.AlbumSelectors) == 0 {
		r.AlbumSelectors = append([]string(nil), DefaultAlbumSelectors...)
	}
}

// validateHTTPClientSettings applies defaults to HTTP client settings.
func (c *AppConfig) validateHTTPClientSettings() {
	h := &c.HTTPClientSettings
	if h.Timeout <= 0 {
		h.Timeout = 45 * time.Second
	}
	if h.MaxIdleConns <= 0 {
		h.MaxIdleConns = 100
	}
	if h.MaxIdleConnsPerHost <= 0 {
		h.MaxIdleConnsPerHost = c.Concurrency
	}
	if h.IdleConnTimeout <= 0 {
		h.IdleConnTimeout = 90 * time.Second
	}
	if h.TLSHandshakeTimeout <= 0 {
		h.TLSHandshakeTimeout = 10 * time.Second
	}
	if h.ExpectContinueTimeout <= 0 {
		h.ExpectContinueTimeout = 1 * time.Second
	}
	if h.DialerTimeout <= 0 {
		h.DialerTimeout = 15 * time.Second
	}
	if h.DialerKeepAlive <= 0 {
		h.DialerKeepAlive = 30 * time.Second
	}
	if h.MaxRedirects <= 0 {
		h.MaxRedirects = 10
	}
}

// HostCapsEnabled reports whether any per-host cap is configured.
func (c *AppConfig) HostCapsEnabled() bool {
	return c.MaxRequestsPerHost > 0 || len(c.HostLimits) > 0
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
