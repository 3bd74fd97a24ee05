package clientapp

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/phillip-england/staffsuite/internal/apiclient"
	"github.com/phillip-england/staffsuite/internal/audit"
	"github.com/phillip-england/staffsuite/internal/form"
)

const defaultCallbackURL = "/dashboard"

func (s *server) loginPage(w http.ResponseWriter, r *http.Request) {
	if _, err := s.sessions.Resolve(r.Context(), s.sessions.CookieValue(r)); err == nil {
		http.Redirect(w, r, safeCallbackURL(r.URL.Query().Get("callbackUrl")), http.StatusFound)
		return
	}
	s.renderLogin(w, r, http.StatusOK, pageData{
		Error:          r.URL.Query().Get("error"),
		SuccessMessage: r.URL.Query().Get("message"),
	})
}

func (s *server) renderLogin(w http.ResponseWriter, r *http.Request, status int, data pageData) {
	data.Title = "Sign in"
	if data.CallbackURL == "" {
		data.CallbackURL = safeCallbackURL(r.FormValue("callbackUrl"))
	}
	s.render(w, r, s.loginTmpl, status, data)
}

func (s *server) login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.renderLogin(w, r, http.StatusBadRequest, pageData{Error: "Invalid form submission."})
		return
	}

	email := strings.TrimSpace(r.PostFormValue("email"))
	password := r.PostFormValue("password")
	callback := safeCallbackURL(r.PostFormValue("callbackUrl"))

	errs := form.Errors{}
	if !form.ValidEmail(email) {
		errs.Add("email", "Please enter a valid email.")
	}
	if !form.MinLen(password, 6) {
		errs.Add("password", "Password must be at least 6 characters.")
	}
	if errs.Any() {
		s.renderLogin(w, r, http.StatusUnprocessableEntity, pageData{Email: email, CallbackURL: callback, FieldErrors: errs})
		return
	}

	user, token, err := s.api.Login(r.Context(), email, password)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, apiclient.ErrInvalidCredentials) {
			status = http.StatusUnauthorized
		} else {
			s.logWarn(r, "login upstream failed", err)
		}
		s.recordEvent(r, audit.Event{Actor: email, Action: audit.ActionLogin, Outcome: audit.OutcomeFailure, Detail: err.Error()})
		s.renderLogin(w, r, status, pageData{Email: email, CallbackURL: callback, Error: apiclient.UserMessage(err)})
		return
	}

	if user.Email == "" {
		user.Email = email
	}
	sess, signed, err := s.sessions.Issue(r.Context(), user, token)
	if err != nil {
		s.logWarn(r, "issue session failed", err)
		s.renderLogin(w, r, http.StatusInternalServerError, pageData{Email: email, CallbackURL: callback, Error: "Unable to sign in right now. Try again."})
		return
	}
	s.sessions.SetCookie(w, signed, sess)
	s.recordEvent(r, audit.Event{Actor: user.Email, Action: audit.ActionLogin, Target: user.ID, Outcome: audit.OutcomeSuccess})
	http.Redirect(w, r, callback, http.StatusSeeOther)
}

func (s *server) logout(w http.ResponseWriter, r *http.Request) {
	sess := s.currentSession(r)
	if err := s.sessions.Revoke(r.Context(), sess.ID); err != nil {
		s.logWarn(r, "revoke session failed", err)
	}
	s.sessions.ClearCookie(w)
	s.record(r, audit.ActionLogout, sess.User.ID, audit.OutcomeSuccess, "")
	http.Redirect(w, r, "/login?message="+url.QueryEscape("You have been signed out."), http.StatusSeeOther)
}

// safeCallbackURL keeps redirects on this origin.
func safeCallbackURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return defaultCallbackURL
	}
	u, err := url.Parse(raw)
	if err != nil || u.IsAbs() || u.Host != "" {
		return defaultCallbackURL
	}
	if u.Path == "/" || u.Path == "/login" {
		return defaultCallbackURL
	}
	return u.RequestURI()
}
