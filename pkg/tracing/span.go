// Package tracing times the stages of a search as a tree of spans and logs
// the finished tree as a single debug record of nested groups.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gesetzesinfo/lawsearch/pkg/logger"
)

type ctxKey struct{}

type Span struct {
	Name    string
	TraceID string
	start   time.Time

	mu       sync.Mutex
	duration time.Duration
	attrs    []slog.Attr
	children []*Span
}

// Start opens a child of the span in ctx, or a root span whose trace id is
// the request id.
func Start(ctx context.Context, name string) (context.Context, *Span) {
	s := &Span{Name: name, start: time.Now()}
	if parent := FromContext(ctx); parent != nil {
		s.TraceID = parent.TraceID
		parent.mu.Lock()
		parent.children = append(parent.children, s)
		parent.mu.Unlock()
	} else {
		s.TraceID = logger.RequestID(ctx)
	}
	return context.WithValue(ctx, ctxKey{}, s), s
}

func FromContext(ctx context.Context) *Span {
	s, _ := ctx.Value(ctxKey{}).(*Span)
	return s
}

func (s *Span) End() {
	s.mu.Lock()
	s.duration = time.Since(s.start)
	s.mu.Unlock()
}

func (s *Span) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}

func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.attrs = append(s.attrs, slog.Any(key, value))
	s.mu.Unlock()
}

func (s *Span) Children() []*Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Span(nil), s.children...)
}

// Log writes the tree rooted at s. Each span becomes a group named after it
// holding its duration, its attributes and its children.
func (s *Span) Log(ctx context.Context) {
	logger.FromContext(ctx).LogAttrs(ctx, slog.LevelDebug, "trace",
		slog.String("trace_id", s.TraceID),
		s.group(),
	)
}

func (s *Span) group() slog.Attr {
	s.mu.Lock()
	args := make([]any, 0, 1+len(s.attrs)+len(s.children))
	args = append(args, slog.Float64("ms", float64(s.duration.Microseconds())/1000))
	for _, a := range s.attrs {
		args = append(args, a)
	}
	children := s.children
	s.mu.Unlock()

	for _, c := range children {
		args = append(args, c.group())
	}
	return slog.Group(s.Name, args...)
}
