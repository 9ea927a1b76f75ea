package browser

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Target page of the keyword research site.
const (
	DefaultTargetURL     = "https://mpstats.io/seo/keywords/expanding"
	DefaultTargetPattern = "expanding"
)

// Credentials for the research site.
type Credentials struct {
	Email    string
	Password string
}

// IsZero reports whether either field is missing.
func (c Credentials) IsZero() bool {
	return strings.TrimSpace(c.Email) == "" || c.Password == ""
}

// Site runs the login, query and export flows against the research site.
type Site struct {
	TargetURL     string
	TargetPattern string
	Timings       Timings
	Pacer         *Pacer
	// MaxDownloadClicks caps how many export buttons are pressed per query.
	MaxDownloadClicks int
	Log               zerolog.Logger
}

// NewSite returns a Site with live pacing.
func NewSite(log zerolog.Logger) *Site {
	return &Site{
		TargetURL:         DefaultTargetURL,
		TargetPattern:     DefaultTargetPattern,
		Timings:           DefaultTimings(),
		Pacer:             NewPacer(),
		MaxDownloadClicks: 1,
		Log:               log,
	}
}

// typeInto focuses el and types text with keystroke pacing.
func (st *Site) typeInto(ctx context.Context, s *Session, el Element, text string, keystroke Span) error {
	d := s.Driver()
	if err := d.Click(ctx, el); err != nil {
		return err
	}
	if err := st.Pacer.Pause(ctx, st.Timings.FieldPause); err != nil {
		return err
	}
	if err := d.Focus(ctx, el); err != nil {
		return err
	}
	return st.Pacer.Type(ctx, d, text, keystroke)
}

// clickHuman scrolls el into view and clicks it after a short pause.
func (st *Site) clickHuman(ctx context.Context, s *Session, el Element) error {
	d := s.Driver()
	if err := d.ScrollIntoView(ctx, el); err != nil {
		st.Log.Debug().Err(err).Msg("scroll into view failed")
	}
	if err := st.Pacer.Pause(ctx, st.Timings.FieldPause); err != nil {
		return err
	}
	return d.Click(ctx, el)
}

func (st *Site) onTarget(url string) bool {
	return st.TargetPattern != "" && strings.Contains(url, st.TargetPattern)
}

func sinceMS(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
