package log

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// ChromedpLogger routes chromedp's printf-style hooks into logrus
type ChromedpLogger struct {
	*logrus.Entry // Embed logrus Entry
}

// NewChromedpLogger creates a new adapter
func NewChromedpLogger(entry *logrus.Entry) *ChromedpLogger {
	return &ChromedpLogger{entry}
}

// Logf is passed to chromedp.WithLogf
func (l *ChromedpLogger) Logf(f string, v ...interface{}) { l.Entry.Debugf(f, v...) }

// Errorf is passed to chromedp.WithErrorf. Event decoding noise from newer
// Chrome builds is demoted to debug.
func (l *ChromedpLogger) Errorf(f string, v ...interface{}) {
	if strings.Contains(f, "could not unmarshal event") {
		l.Entry.Debugf(f, v...)
		return
	}
	l.Entry.Warnf(f, v...)
}

// Debugf is passed to chromedp.WithDebugf. Protocol traffic is only logged at trace.
func (l *ChromedpLogger) Debugf(f string, v ...interface{}) { l.Entry.Tracef(f, v...) }
