package utils

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

// statusErr formats a 4xx the way the fetcher reports it
func statusErr(code int, text string) error {
	return fmt.Errorf("%w: status %d %d %s", ErrClientHTTPError, code, code, text)
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, "None"},

		{"item page gone", statusErr(404, "Not Found"), "HTTP_404"},
		{"blocked download", statusErr(403, "Forbidden"), "HTTP_403"},
		{"login wall", statusErr(401, "Unauthorized"), "HTTP_401"},
		{"throttled", statusErr(429, "Too Many Requests"), "HTTP_429"},
		{"other client status", statusErr(410, "Gone"), "HTTP_4xx"},
		{"cdn outage", fmt.Errorf("%w: status 502", ErrServerHTTPError), "HTTP_5xx"},
		{"redirect loop", fmt.Errorf("%w: status 310", ErrOtherHTTPError), "HTTP_OtherStatus"},

		{"challenge page", fmt.Errorf("fetch album: %w", ErrChallenge), "Policy_Challenge"},
		{"robots", fmt.Errorf("%w: /w/wp1", ErrRobotsDisallowed), "Policy_Robots"},
		{"no download control", fmt.Errorf("resolve: %w", fmt.Errorf("item /w/wp7: %w", ErrDownloadControl)), "Content_DownloadControlMissing"},
		{"oversized image", fmt.Errorf("%w: 40MB", ErrTooLarge), "Content_TooLarge"},

		{"bad link", fmt.Errorf("URL parsing failed: %w", ErrParsing), "Content_ParsingURL"},
		{"bad album markup", fmt.Errorf("HTML parsing failed: %w", ErrParsing), "Content_ParsingHTML"},
		{"bad config file", fmt.Errorf("YAML parsing failed: %w", ErrParsing), "Content_ParsingYAML"},
		{"other parse", fmt.Errorf("parsing failed: %w", ErrParsing), "Content_ParsingOther"},

		{"temp file denied", fmt.Errorf("%w: create temp: %w", ErrFilesystem, os.ErrPermission), "Filesystem_Permission"},
		{"dest dir missing", fmt.Errorf("%w: %w", ErrFilesystem, os.ErrNotExist), "Filesystem_NotExist"},
		{"dest taken", fmt.Errorf("%w: %w", ErrFilesystem, os.ErrExist), "Filesystem_Exist"},
		{"disk full", fmt.Errorf("%w: no space left", ErrFilesystem), "Filesystem_Other"},

		{"host slot wait", fmt.Errorf("%w: host wallpapercave.com: %w", ErrSemaphoreTimeout, context.Canceled), "Resource_SemaphoreTimeout"},
		{"request build", ErrRequestCreation, "Internal_RequestCreation"},
		{"cut transfer", fmt.Errorf("%w: after 7 bytes: unexpected EOF", ErrResponseBodyRead), "Network_BodyRead"},
		{"config", ErrConfigValidation, "Config_Validation"},
		{"render timeout", fmt.Errorf("%w: album: %w", ErrDiscovery, context.DeadlineExceeded), "Discovery_Timeout"},
		{"render failed", fmt.Errorf("%w: chrome exited", ErrDiscovery), "Discovery_Other"},
		{"resolution", ErrResolution, "Resolution_Other"},

		{"cancelled run", context.Canceled, "System_ContextCanceled"},
		{"deadline", context.DeadlineExceeded, "System_ContextDeadlineExceeded"},

		{"dial timeout", errors.New("dial tcp: i/o timeout"), "Network_TimeoutGeneric"},
		{"refused", errors.New("connect: connection refused"), "Network_ConnectionRefused"},
		{"dns", errors.New("lookup static.wallpapercave.com: no such host"), "Network_DNSLookup"},
		{"tls", errors.New("remote error: tls handshake failed"), "Network_TLS"},
		{"certificate", errors.New("x509: certificate verify failed"), "Network_TLS"},
		{"reset", errors.New("read: connection reset by peer"), "Network_ConnectionReset"},
		{"broken pipe", errors.New("write: broken pipe"), "Network_BrokenPipe"},

		{"unknown", errors.New("gremlins"), "Unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CategorizeError(tt.err))
		})
	}
}
