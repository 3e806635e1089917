package client

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/dmitrijs2005/macrometric/internal/logging"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

type recordingLogger struct {
	mu    sync.Mutex
	lines *[]string
}

func (l *recordingLogger) record(msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.lines = append(*l.lines, msg+fmt.Sprint(args...))
}

func (l *recordingLogger) Debug(_ context.Context, msg string, args ...any) { l.record(msg, args...) }
func (l *recordingLogger) Info(_ context.Context, msg string, args ...any)  { l.record(msg, args...) }
func (l *recordingLogger) Warn(_ context.Context, msg string, args ...any)  { l.record(msg, args...) }
func (l *recordingLogger) Error(_ context.Context, msg string, args ...any) { l.record(msg, args...) }
func (l *recordingLogger) With(args ...any) logging.Logger                  { return l }
