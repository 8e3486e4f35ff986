package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallpaper-scraper/pkg/config"
	"wallpaper-scraper/pkg/report"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0644))
	return cfgPath
}

func TestDoValidate_Valid(t *testing.T) {
	cfgPath := writeConfig(t, `
output_dir: "/tmp/walls"
concurrency: 8
`)
	var stdout, stderr bytes.Buffer

	code := doValidate(cfgPath, &stdout, &stderr)

	assert.Equal(t, 0, code)
	assert.Contains(t, stdout.String(), "concurrency=8")
	assert.Contains(t, stdout.String(), "Configuration valid.")
	assert.Empty(t, stderr.String())
}

func TestDoValidate_Warnings(t *testing.T) {
	cfgPath := writeConfig(t, `
concurrency: -2
chunk_size: 100
`)
	var stdout, stderr bytes.Buffer

	code := doValidate(cfgPath, &stdout, &stderr)

	assert.Equal(t, 0, code)
	assert.Contains(t, stdout.String(), "WARN: concurrency cannot be negative")
	assert.Contains(t, stdout.String(), "WARN: chunk_size 100 is very small")
}

func TestDoValidate_FatalError(t *testing.T) {
	cfgPath := writeConfig(t, `default_url: "not a url"`)
	var stdout, stderr bytes.Buffer

	code := doValidate(cfgPath, &stdout, &stderr)

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "not an absolute URL")
}

func TestDoValidate_InvalidYAML(t *testing.T) {
	cfgPath := writeConfig(t, "{{invalid yaml")
	var stdout, stderr bytes.Buffer

	code := doValidate(cfgPath, &stdout, &stderr)

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "Error:")
}

func TestDoValidate_MissingFile(t *testing.T) {
	var stdout, stderr bytes.Buffer

	code := doValidate("/nonexistent/path/config.yaml", &stdout, &stderr)

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "not found")
}

func TestLoadAndValidateConfig_FlagOverrides(t *testing.T) {
	cfgPath := writeConfig(t, `
output_dir: "/from/config"
concurrency: 3
`)
	outDir := t.TempDir()
	opts := &runOptions{configFile: cfgPath, outDir: outDir, concurrency: 9, reportFile: "run.yaml"}

	cfg, err := loadAndValidateConfig(opts, quietLogger())

	require.NoError(t, err)
	assert.Equal(t, outDir, cfg.OutputDir)
	assert.Equal(t, 9, cfg.Concurrency)
	assert.Equal(t, 0, cfg.MaxRequestsPerHost)
	assert.Equal(t, "run.yaml", cfg.ReportFile)
}

func TestLoadAndValidateConfig_NoFileUsesDefaults(t *testing.T) {
	opts := &runOptions{configFile: filepath.Join(t.TempDir(), "absent.yaml")}

	cfg, err := loadAndValidateConfig(opts, quietLogger())

	require.NoError(t, err)
	assert.Equal(t, config.DefaultURL, cfg.DefaultURL)
	assert.Equal(t, config.DefaultConcurrency, cfg.Concurrency)
}

func TestChooseTarget(t *testing.T) {
	const def = "https://wallpapercave.com/categories/anime-manga"

	t.Run("explicit wins", func(t *testing.T) {
		var out bytes.Buffer
		got, isDefault := chooseTarget(" https://wallpapercave.com/naruto/ ", def, strings.NewReader("ignored\n"), &out, true)
		assert.Equal(t, "https://wallpapercave.com/naruto", got)
		assert.False(t, isDefault)
		assert.Empty(t, out.String(), "no prompt when a URL was given")
	})

	t.Run("prompt answer", func(t *testing.T) {
		var out bytes.Buffer
		got, isDefault := chooseTarget("", def, strings.NewReader("https://wallpapercave.com/w/wp1/\n"), &out, true)
		assert.Equal(t, "https://wallpapercave.com/w/wp1", got)
		assert.False(t, isDefault)
		assert.Contains(t, out.String(), "Enter a WallpaperCave URL")
	})

	t.Run("empty prompt answer", func(t *testing.T) {
		got, isDefault := chooseTarget("", def, strings.NewReader("\n"), io.Discard, true)
		assert.Equal(t, def, got)
		assert.True(t, isDefault)
	})

	t.Run("non-interactive", func(t *testing.T) {
		var out bytes.Buffer
		got, isDefault := chooseTarget("", def, strings.NewReader("https://wallpapercave.com/x\n"), &out, false)
		assert.Equal(t, def, got)
		assert.True(t, isDefault)
		assert.Empty(t, out.String())
	})
}

func TestSetupLogger(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, setupLogger("debug").GetLevel())
	assert.Equal(t, logrus.WarnLevel, setupLogger("bogus").GetLevel())
}

func TestPrintUsage(t *testing.T) {
	var buf bytes.Buffer
	printUsageTo(&buf)

	out := buf.String()
	for _, cmd := range []string{"download", "watch", "validate", "version"} {
		assert.Contains(t, out, cmd)
	}
}

// captureExit swaps osExit for the duration of the test and records the code
func captureExit(t *testing.T) *int {
	t.Helper()
	code := -1
	orig := osExit
	osExit = func(c int) { code = c }
	t.Cleanup(func() { osExit = orig })
	return &code
}

func TestAwaitForcedExit_SecondSignal(t *testing.T) {
	code := captureExit(t)
	var out bytes.Buffer
	sigChan := make(chan os.Signal, 1)
	sigChan <- syscall.SIGINT

	awaitForcedExit(sigChan, make(chan struct{}), time.Minute, report.NewPrinter(&out), quietLogger())

	assert.Equal(t, exitInterrupted, *code)
	assert.Contains(t, out.String(), "Script interrupted by user")
	assert.Contains(t, out.String(), "Process finished.")
}

func TestAwaitForcedExit_StalledShutdown(t *testing.T) {
	code := captureExit(t)
	var out bytes.Buffer

	awaitForcedExit(make(chan os.Signal), make(chan struct{}), 10*time.Millisecond, report.NewPrinter(&out), quietLogger())

	assert.Equal(t, exitInterrupted, *code)
	assert.Contains(t, out.String(), "Process finished.")
}

func TestAwaitForcedExit_CleanShutdown(t *testing.T) {
	code := captureExit(t)
	var out bytes.Buffer
	done := make(chan struct{})
	close(done)

	awaitForcedExit(make(chan os.Signal), done, time.Minute, report.NewPrinter(&out), quietLogger())

	assert.Equal(t, -1, *code, "no exit once the run has unwound")
	assert.Empty(t, out.String())
}

func TestDoValidate_HostLimits(t *testing.T) {
	cfgPath := writeConfig(t, `
concurrency: 6
host_limits:
  wallpapercave.com: 2
`)
	var stdout, stderr bytes.Buffer

	code := doValidate(cfgPath, &stdout, &stderr)

	assert.Equal(t, 0, code)
	assert.Contains(t, stdout.String(), "max_requests_per_host=0 host_limits=1")
}
