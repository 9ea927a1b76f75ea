package browser

import (
	"context"
	"time"
)

// loginState is what the current page shows.
type loginState int

const (
	stateUnknown loginState = iota
	stateLoginForm
	stateLoggedIn
)

// detect inspects the page once.
func (st *Site) detect(ctx context.Context, s *Session) (loginState, error) {
	loc := s.Locator()

	marker, err := loc.Find(ctx, ElemLoginMarker)
	if err != nil {
		return stateUnknown, err
	}
	if len(marker) > 0 {
		return stateLoggedIn, nil
	}

	form, err := loc.Find(ctx, ElemLoginEmail)
	if err != nil {
		return stateUnknown, err
	}
	if len(form) > 0 {
		return stateLoginForm, nil
	}

	url, err := s.Driver().CurrentURL(ctx)
	if err != nil {
		return stateUnknown, err
	}
	if st.onTarget(url) {
		return stateLoggedIn, nil
	}
	return stateUnknown, nil
}

// EnsureAuthenticated opens the target page and logs in when the site asks
// for it. A session that is already logged in skips the form.
func (st *Site) EnsureAuthenticated(ctx context.Context, s *Session, creds Credentials) error {
	if s.Authenticated() {
		return nil
	}
	start := time.Now()
	d := s.Driver()

	st.Log.Info().Str("url", st.TargetURL).Msg("opening target page")
	if err := d.Navigate(ctx, st.TargetURL); err != nil {
		return err
	}
	if err := st.Pacer.Pause(ctx, st.Timings.AfterNavigate); err != nil {
		return err
	}

	state, err := st.detect(ctx, s)
	if err != nil {
		return err
	}
	if state == stateLoggedIn {
		st.Log.Info().Msg("existing login detected")
		s.markAuthenticated()
		return nil
	}

	if creds.IsZero() {
		return ErrMissingCredentials
	}

	email, err := s.Locator().WaitFor(ctx, ElemLoginEmail, st.Timings.ElementTimeout)
	if err != nil {
		return err
	}
	if len(email) == 0 {
		return &ElementNotFoundError{Element: ElemLoginEmail, Step: "authentication"}
	}
	if err := st.typeInto(ctx, s, email[0], creds.Email, st.Timings.CredentialKeystroke); err != nil {
		return err
	}

	password, err := s.Locator().Find(ctx, ElemLoginPassword)
	if err != nil {
		return err
	}
	if len(password) == 0 {
		return &ElementNotFoundError{Element: ElemLoginPassword, Step: "authentication"}
	}
	if err := st.typeInto(ctx, s, password[0], creds.Password, st.Timings.CredentialKeystroke); err != nil {
		return err
	}

	if err := d.PressKey(ctx, KeyEnter); err != nil {
		return err
	}

	if err := st.awaitLogin(ctx, s); err != nil {
		return err
	}
	if err := st.Pacer.Pause(ctx, st.Timings.AfterNavigate); err != nil {
		return err
	}

	s.markAuthenticated()
	st.Log.Info().Int64("elapsed_ms", sinceMS(start)).Msg("authentication successful")
	return nil
}

// awaitLogin polls until the login form is gone or AuthTimeout elapses.
func (st *Site) awaitLogin(ctx context.Context, s *Session) error {
	deadline := time.Now().Add(st.Timings.AuthTimeout)
	for {
		state, err := st.detect(ctx, s)
		if err != nil {
			return err
		}
		if state == stateLoggedIn {
			return nil
		}
		if !time.Now().Before(deadline) {
			return st.authTimeout(ctx, s)
		}
		if err := st.Pacer.Wait(ctx, st.Timings.PollInterval); err != nil {
			return err
		}
	}
}

func (st *Site) authTimeout(ctx context.Context, s *Session) error {
	authErr := &AuthenticationTimeoutError{Timeout: st.Timings.AuthTimeout}
	if url, err := s.Driver().CurrentURL(ctx); err == nil {
		authErr.URL = url
	}
	if html, err := s.Driver().HTML(ctx); err == nil {
		authErr.Notice = PageNotice(html)
	}
	st.Log.Warn().Str("url", authErr.URL).Str("notice", authErr.Notice).Msg("login did not complete")
	return authErr
}
