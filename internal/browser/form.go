package browser

import (
	"context"
	"errors"
	"strings"
)

// ErrEmptyQuery is returned when SubmitQuery is given no text.
var ErrEmptyQuery = errors.New("query text is empty")

// SubmitQuery switches to the requests tab, types query into the form and
// submits it. A missing tab is tolerated; a missing input is not.
func (st *Site) SubmitQuery(ctx context.Context, s *Session, query string) error {
	if strings.TrimSpace(query) == "" {
		return ErrEmptyQuery
	}
	d := s.Driver()
	loc := s.Locator()

	tabs, err := loc.WaitFor(ctx, ElemRequestsTab, st.Timings.ElementTimeout)
	if err != nil {
		return err
	}
	if len(tabs) > 0 {
		if err := st.clickHuman(ctx, s, tabs[0]); err != nil {
			st.Log.Warn().Err(err).Msg("requests tab click failed, continuing")
		} else if err := st.Pacer.Pause(ctx, st.Timings.ClickPause); err != nil {
			return err
		}
	} else {
		st.Log.Warn().Msg("requests tab not found, continuing")
	}

	inputs, err := loc.WaitFor(ctx, ElemQueryInput, st.Timings.ElementTimeout)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return &ElementNotFoundError{Element: ElemQueryInput, Step: "query submission"}
	}
	input := inputs[0]

	if err := d.ClearValue(ctx, input); err != nil {
		return err
	}
	if err := st.Pacer.Pause(ctx, st.Timings.FieldPause); err != nil {
		return err
	}
	if err := st.typeInto(ctx, s, input, query, st.Timings.QueryKeystroke); err != nil {
		return err
	}
	st.Log.Info().Str("query", query).Msg("query entered")

	if err := st.Pacer.Pause(ctx, st.Timings.FieldPause); err != nil {
		return err
	}
	if err := st.submit(ctx, s); err != nil {
		return err
	}
	return st.Pacer.Pause(ctx, st.Timings.AfterSubmit)
}

// submit clicks the form button, or falls back to Tab then Enter.
func (st *Site) submit(ctx context.Context, s *Session) error {
	d := s.Driver()
	buttons, err := s.Locator().Find(ctx, ElemSubmit)
	if err != nil {
		return err
	}
	if len(buttons) > 0 {
		if err := st.clickHuman(ctx, s, buttons[0]); err == nil {
			st.Log.Info().Msg("form submitted via button")
			return nil
		}
		st.Log.Debug().Msg("submit button click failed, using keyboard")
	}
	if err := d.PressKey(ctx, KeyTab); err != nil {
		return err
	}
	if err := st.Pacer.Pause(ctx, st.Timings.FieldPause); err != nil {
		return err
	}
	if err := d.PressKey(ctx, KeyEnter); err != nil {
		return err
	}
	st.Log.Info().Msg("form submitted via keyboard")
	return nil
}

// TriggerDownload waits for the export controls and clicks up to
// MaxDownloadClicks of them. It returns the number of clicks made.
func (st *Site) TriggerDownload(ctx context.Context, s *Session) (int, error) {
	buttons, err := s.Locator().WaitFor(ctx, ElemDownloadButton, st.Timings.ResultsTimeout)
	if err != nil {
		return 0, err
	}
	if len(buttons) == 0 {
		return 0, &ElementNotFoundError{Element: ElemDownloadButton, Step: "download"}
	}
	limit := st.MaxDownloadClicks
	if limit <= 0 {
		limit = 1
	}

	clicks := 0
	for i, b := range buttons {
		if clicks >= limit {
			break
		}
		if i > 0 {
			if err := st.Pacer.Pause(ctx, st.Timings.BetweenDownloads); err != nil {
				return clicks, err
			}
		}
		if err := st.clickHuman(ctx, s, b); err != nil {
			st.Log.Warn().Err(err).Int("button", i).Str("text", b.Text).Msg("download click failed")
			continue
		}
		clicks++
		st.Log.Info().Int("button", i).Str("text", b.Text).Msg("download clicked")
	}
	if clicks == 0 {
		return 0, &ElementNotFoundError{Element: ElemDownloadButton, Step: "download click"}
	}
	return clicks, nil
}
