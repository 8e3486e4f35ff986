package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Default values shared by validation and the CLI.
const (
	DefaultURL               = "https://wallpapercave.com/categories/anime-manga"
	SiteRoot                 = "https://wallpapercave.com"
	DefaultOutputDir         = "~/Pictures/wallpapers"
	DefaultConcurrency       = 5
	DefaultChunkSize         = 32 * 1024
	DefaultManualPerImage    = 5 * time.Second
	DefaultUserAgent         = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"
	DefaultDownloadControl   = "a#tdownload"
	DefaultMaxScrollIter     = 50
	DefaultScrollSettle      = 2 * time.Second
	DefaultNavigationTimeout = 90 * time.Second
	DefaultIdleTimeout       = 60 * time.Second
	DefaultResolveTimeout    = 45 * time.Second
)

// DefaultCategorySelectors match album thumbnails on a category page.
var DefaultCategorySelectors = []string{"a.albumthumbnail"}

// DefaultAlbumSelectors match item links on an album page.
var DefaultAlbumSelectors = []string{"a.albumthumbnail", "div.album-image > a", "a.wpinkw"}

// DefaultChallengeMarkers identify anti-bot interstitial bodies.
var DefaultChallengeMarkers = []string{`<title>\s*just a moment`, `challenge-platform`, `cf-browser-verification`}

// AppConfig holds the global application configuration
type AppConfig struct {
	DefaultURL          string           `yaml:"default_url,omitempty"`
	OutputDir           string           `yaml:"output_dir,omitempty"`
	Concurrency         int              `yaml:"concurrency,omitempty"`           // Max items in flight per album
	MaxRequestsPerHost  int              `yaml:"max_requests_per_host,omitempty"` // 0 = hosts are not capped separately
	HostLimits          map[string]int   `yaml:"host_limits,omitempty"`           // Per-host caps; a key also covers its subdomains
	DefaultDelayPerHost time.Duration    `yaml:"default_delay_per_host,omitempty"`
	UserAgent           string           `yaml:"user_agent,omitempty"`
	RespectRobots       bool             `yaml:"respect_robots,omitempty"`
	MaxImageSizeBytes   int64            `yaml:"max_image_size_bytes,omitempty"` // 0 = unlimited
	ChunkSize           int              `yaml:"chunk_size,omitempty"`
	ManualPerImage      time.Duration    `yaml:"manual_per_image,omitempty"` // Baseline for the "time saved" line
	ReportFile          string           `yaml:"report_file,omitempty"`
	Render              RenderConfig     `yaml:"render,omitempty"`
	Resolve             ResolveConfig    `yaml:"resolve,omitempty"`
	Challenge           ChallengeConfig  `yaml:"challenge,omitempty"`
	HTTPClientSettings  HTTPClientConfig `yaml:"http_client_settings,omitempty"`
}

// RenderConfig controls the headless browser used for discovery
type RenderConfig struct {
	Headless            *bool         `yaml:"headless,omitempty"` // nil = true
	ChromePath          string        `yaml:"chrome_path,omitempty"`
	NavigationTimeout   time.Duration `yaml:"navigation_timeout,omitempty"`
	IdleTimeout         time.Duration `yaml:"idle_timeout,omitempty"`
	ScrollSettle        time.Duration `yaml:"scroll_settle,omitempty"`
	MaxScrollIterations int           `yaml:"max_scroll_iterations,omitempty"`
	ViewportWidth       int64         `yaml:"viewport_width,omitempty"`
	ViewportHeight      int64         `yaml:"viewport_height,omitempty"`
	CategorySelectors   []string      `yaml:"category_selectors,omitempty"`
	AlbumSelectors      []string      `yaml:"album_selectors,omitempty"`
}

// ResolveConfig controls item page resolution
type ResolveConfig struct {
	DownloadControlSelector string        `yaml:"download_control_selector,omitempty"`
	Timeout                 time.Duration `yaml:"timeout,omitempty"` // Whole item page plus redirect chain
}

// ChallengeConfig controls browser-assisted anti-bot clearance
type ChallengeConfig struct {
	Enabled *bool         `yaml:"enabled,omitempty"` // nil = true
	Timeout time.Duration `yaml:"timeout,omitempty"`
	Markers []string      `yaml:"markers,omitempty"` // Case-insensitive regexes matched against challenge bodies
}

// HTTPClientConfig holds settings for the shared HTTP client
type HTTPClientConfig struct {
	Timeout               time.Duration `yaml:"timeout,omitempty"`                 // Wait for response headers; bodies are bounded by the run context
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`          // Max total idle connections
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"` // Max idle connections per host
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`       // Timeout for idle connections
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`   // Timeout for TLS handshake
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"` // Timeout for 100-continue
	ForceAttemptHTTP2     *bool         `yaml:"force_attempt_http2,omitempty"`     // nil=default, true=force, false=disable
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`          // Connection dial timeout
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`       // TCP keep-alive interval
	MaxRedirects          int           `yaml:"max_redirects,omitempty"`
}

// IsHeadless reports whether the browser should run without a window.
func (r RenderConfig) IsHeadless() bool {
	if r.Headless != nil {
		return *r.Headless
	}
	return true
}

// IsEnabled reports whether challenge clearance is active.
func (c ChallengeConfig) IsEnabled() bool {
	if c.Enabled != nil {
		return *c.Enabled
	}
	return true
}

// ExpandHome replaces a leading "~" with the current user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
