package corpus

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"
)

const (
	maxTitleLength = 1024
	maxTextLength  = 1048576
	minTextLength  = 5
	repealedMarker = "(weggefallen)"

	sourceURLFormat = "https://openlegaldata.io/laws/%d/"
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	ID     int64
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		keys = append(keys, field)
	}
	slices.Sort(keys)
	parts := make([]string, 0, len(keys))
	for _, field := range keys {
		parts = append(parts, fmt.Sprintf("%s:%s", field, e.Fields[field]))
	}
	return fmt.Sprintf("provision %d: %s", e.ID, strings.Join(parts, "; "))
}

// Validate checks the length constraints a provision must meet before it is
// imported.
func Validate(p Provision) error {
	errs := make(map[string]string)

	if p.ID <= 0 {
		errs["id"] = "id must be positive"
	}
	title := strings.TrimSpace(p.Title)
	if title == "" {
		errs["title"] = "title is required"
	} else if utf8.RuneCountInString(title) > maxTitleLength {
		errs["title"] = fmt.Sprintf("title must be at most %d characters", maxTitleLength)
	}
	text := strings.TrimSpace(p.Text)
	if utf8.RuneCountInString(text) < minTextLength {
		errs["text"] = fmt.Sprintf("text must be at least %d characters", minTextLength)
	} else if len(text) > maxTextLength {
		errs["text"] = fmt.Sprintf("text must be at most %d bytes", maxTextLength)
	}
	if len(errs) > 0 {
		return &ValidationError{ID: p.ID, Fields: errs}
	}
	return nil
}

// IsRepealed reports whether the provision is a "(weggefallen)" placeholder
// left behind when a section was struck from the code.
func IsRepealed(p Provision) bool {
	return strings.Contains(strings.ToLower(p.Title), repealedMarker) ||
		strings.Contains(strings.ToLower(p.Text), repealedMarker)
}

var spaceRun = regexp.MustCompile(` {2,}`)
var newlineRun = regexp.MustCompile(`\n{4,}`)

// CleanText trims the text, folds runs of spaces to one and caps blank-line
// runs at three newlines.
func CleanText(s string) string {
	s = strings.TrimSpace(s)
	s = newlineRun.ReplaceAllString(s, "\n\n\n")
	return spaceRun.ReplaceAllString(s, " ")
}

// Prepare cleans, filters and validates raw provisions for import. Repealed
// entries are dropped silently; invalid ones are returned in rejected.
// Missing source URLs are filled from the provision id.
func Prepare(raw []Provision) (kept []Provision, rejected []error) {
	kept = make([]Provision, 0, len(raw))
	for _, p := range raw {
		p.Title = CleanText(p.Title)
		p.Text = CleanText(p.Text)
		p.BookCode = strings.TrimSpace(p.BookCode)
		if IsRepealed(p) {
			continue
		}
		if err := Validate(p); err != nil {
			rejected = append(rejected, err)
			continue
		}
		if p.SourceURL == "" {
			p.SourceURL = fmt.Sprintf(sourceURLFormat, p.ID)
		}
		kept = append(kept, p)
	}
	return kept, rejected
}
