// Package clientapp serves the staffsuite dashboard: server-rendered pages
// over the remote employee API, with the browser holding only a signed
// session cookie.
package clientapp

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/phillip-england/staffsuite/internal/apiclient"
	"github.com/phillip-england/staffsuite/internal/audit"
	"github.com/phillip-england/staffsuite/internal/employee"
	"github.com/phillip-england/staffsuite/internal/form"
	"github.com/phillip-england/staffsuite/internal/middleware"
	"github.com/phillip-england/staffsuite/internal/observability"
	"github.com/phillip-england/staffsuite/internal/rostercache"
	"github.com/phillip-england/staffsuite/internal/session"
	"github.com/phillip-england/staffsuite/internal/table"
)

//go:embed templates/*.html assets/app.css
var templatesFS embed.FS

const (
	csrfField          = "csrf_token"
	sessionExpiredText = "Session expired, please sign in again."
	maxImportBytes     = 10 << 20
	fileTooLargeText   = "The file is too large. Upload a file of 10 MB or less."
)

// EmployeeAPI is the remote API as the dashboard uses it.
type EmployeeAPI interface {
	Login(ctx context.Context, email, password string) (session.Identity, string, error)
	ListEmployees(ctx context.Context) ([]employee.Employee, error)
	GetEmployee(ctx context.Context, id string) (employee.Employee, error)
	CreateEmployee(ctx context.Context, f employee.Form) error
	UpdateEmployee(ctx context.Context, id string, f employee.Form) error
	DeleteEmployee(ctx context.Context, id string) error
}

// recentEvents is implemented by audit sinks that can be read back.
type recentEvents interface {
	Recent(ctx context.Context, limit int) ([]audit.Event, error)
}

type Deps struct {
	API          EmployeeAPI
	Sessions     *session.Manager
	Cache        rostercache.Cache
	Audit        audit.Logger
	Logger       *slog.Logger
	LoginLimiter *middleware.Limiter

	// TrustedProxies are the peers allowed to set X-Forwarded-For.
	TrustedProxies middleware.TrustedProxies
}

type server struct {
	api      EmployeeAPI
	sessions *session.Manager
	cache    rostercache.Cache
	audit    audit.Logger
	log      *slog.Logger

	loginTmpl     *template.Template
	overviewTmpl  *template.Template
	employeesTmpl *template.Template
	formTmpl      *template.Template
	deleteTmpl    *template.Template
	notFoundTmpl  *template.Template
}

type pageData struct {
	Title          string
	User           session.Identity
	SignedIn       bool
	CSRFToken      string
	SuccessMessage string
	Error          string

	Email       string
	CallbackURL string
	FieldErrors form.Errors

	EmployeeCount int
	LoadError     string
	RecentEvents  []audit.Event

	Table        table.View
	Search       string
	PageSize     int
	FilterActive bool
	ResetURL     string
	ExportURL    string

	Form       employee.Form
	Roles      []employee.Role
	FormAction string
	IsUpdate   bool
	CancelURL  string

	Employee   employee.Employee
	ListPage   int
	ListSearch string
}

func parsePage(name string) *template.Template {
	return template.Must(template.ParseFS(templatesFS, "templates/layout.html", "templates/table.html", "templates/"+name))
}

// NewHandler wires the routes over deps. Run uses it; tests call it directly
// with a fake remote API.
func NewHandler(deps Deps) (http.Handler, error) {
	if deps.API == nil || deps.Sessions == nil {
		return nil, fmt.Errorf("api client and session manager are required")
	}
	if deps.Cache == nil {
		deps.Cache = rostercache.NewMemory(0)
	}
	if deps.Audit == nil {
		deps.Audit = audit.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = observability.NewLogger("info")
	}
	if deps.LoginLimiter == nil {
		deps.LoginLimiter = middleware.NewLimiter(10, 5, 10*time.Minute)
	}

	s := &server{
		api:           deps.API,
		sessions:      deps.Sessions,
		cache:         deps.Cache,
		audit:         deps.Audit,
		log:           deps.Logger,
		loginTmpl:     parsePage("login.html"),
		overviewTmpl:  parsePage("overview.html"),
		employeesTmpl: parsePage("employees.html"),
		formTmpl:      parsePage("employee_form.html"),
		deleteTmpl:    parsePage("employee_delete.html"),
		notFoundTmpl:  parsePage("not_found.html"),
	}

	authed := func(h http.HandlerFunc) http.Handler {
		return middleware.Chain(h, s.requireSession)
	}
	mutating := func(h http.HandlerFunc) http.Handler {
		return middleware.Chain(h, s.requireSession, s.requireCSRF)
	}
	loginLimited := middleware.RateLimit(deps.LoginLimiter, deps.TrustedProxies, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.renderLogin(w, r, http.StatusTooManyRequests, pageData{Error: "Too many sign-in attempts. Wait a minute and try again."})
	}))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.loginPage)
	mux.HandleFunc("GET /login", s.loginPage)
	mux.Handle("POST /login", loginLimited(http.HandlerFunc(s.login)))
	mux.Handle("POST /logout", mutating(s.logout))
	mux.Handle("GET /dashboard", authed(s.overviewPage))
	mux.Handle("GET /dashboard/employee", authed(s.employeesPage))
	mux.Handle("GET /dashboard/employee/new", authed(s.newEmployeePage))
	mux.Handle("POST /dashboard/employee", mutating(s.createEmployee))
	mux.Handle("GET /dashboard/employee/export.xlsx", authed(s.exportEmployees))
	mux.Handle("POST /dashboard/employee/import", middleware.Chain(http.HandlerFunc(s.importEmployees), s.requireSession, parseUpload(maxImportBytes), s.requireCSRF))
	mux.Handle("GET /dashboard/employee/{id}/update", authed(s.updateEmployeePage))
	mux.Handle("POST /dashboard/employee/{id}/update", mutating(s.updateEmployee))
	mux.Handle("GET /dashboard/employee/{id}/delete", authed(s.deleteEmployeePage))
	mux.Handle("POST /dashboard/employee/{id}/delete", mutating(s.deleteEmployee))
	mux.HandleFunc("GET /assets/app.css", s.appCSSFile)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("/", s.notFound)

	csp := strings.Join([]string{
		"default-src 'self'",
		"style-src 'self'",
		"img-src 'self' data:",
		"form-action 'self'",
		"base-uri 'none'",
		"frame-ancestors 'none'",
	}, "; ")

	return middleware.Chain(
		mux,
		middleware.RequestID,
		middleware.AccessLog(deps.Logger, deps.TrustedProxies),
		middleware.SecurityHeaders(middleware.SecurityHeadersConfig{ContentSecurityPolicy: csp}),
	), nil
}

// Run serves the dashboard until ctx is cancelled.
func Run(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := observability.NewLogger(cfg.LogLevel)

	deps, closeDeps, err := buildDeps(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeDeps()

	handler, err := NewHandler(deps)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("dashboard listening", "addr", cfg.Addr, "api_base_url", cfg.APIBaseURL)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server exited: %w", err)
	}
}

func buildDeps(ctx context.Context, cfg Config, logger *slog.Logger) (Deps, func(), error) {
	var closers []func() error
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}

	var store session.Store = session.NewMemoryStore()
	var cache rostercache.Cache = rostercache.NewMemory(cfg.RosterCacheTTL)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		closers = append(closers, rdb.Close)
		if err := rdb.Ping(ctx).Err(); err != nil {
			closeAll()
			return Deps{}, nil, fmt.Errorf("ping redis: %w", err)
		}
		redisStore, err := session.NewRedisStore(rdb)
		if err != nil {
			closeAll()
			return Deps{}, nil, err
		}
		redisCache, err := rostercache.NewRedis(rdb, cfg.RosterCacheTTL)
		if err != nil {
			closeAll()
			return Deps{}, nil, err
		}
		store, cache = redisStore, redisCache
		logger.Info("using redis for sessions and roster cache", "addr", cfg.RedisAddr)
	}

	manager, err := session.NewManager(session.ManagerConfig{
		Secret:       cfg.SessionSecret,
		MaxAge:       cfg.SessionMaxAge,
		Store:        store,
		SecureCookie: cfg.CookieSecure,
	})
	if err != nil {
		closeAll()
		return Deps{}, nil, err
	}

	var auditLogger audit.Logger = audit.NewFileLogger(cfg.AuditLogFile)
	if cfg.AuditDatabaseURL != "" {
		db, err := audit.OpenPostgres(ctx, cfg.AuditDatabaseURL)
		if err != nil {
			closeAll()
			return Deps{}, nil, err
		}
		closers = append(closers, db.Close)
		pg, err := audit.NewPostgresLogger(db)
		if err != nil {
			closeAll()
			return Deps{}, nil, err
		}
		auditLogger = pg
	}

	return Deps{
		API:          apiclient.New(cfg.APIBaseURL, cfg.APITimeout),
		Sessions:     manager,
		Cache:        cache,
		Audit:        auditLogger,
		Logger:       logger,
		LoginLimiter: middleware.NewLimiter(cfg.LoginRatePerMinute, cfg.LoginRateBurst, 10*time.Minute),

		TrustedProxies: cfg.TrustedProxies,
	}, closeAll, nil
}

// requireSession resolves the cookie into a Session and places it in the
// request context. It is the only writer of the session context value.
func (s *server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := s.sessions.CookieValue(r)
		sess, err := s.sessions.Resolve(r.Context(), raw)
		if err != nil {
			if raw != "" {
				s.sessions.ClearCookie(w)
			}
			q := url.Values{}
			if r.Method == http.MethodGet {
				q.Set("callbackUrl", r.URL.RequestURI())
			}
			if errors.Is(err, session.ErrExpired) {
				q.Set("error", sessionExpiredText)
			}
			target := "/login"
			if len(q) > 0 {
				target += "?" + q.Encode()
			}
			http.Redirect(w, r, target, http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r.WithContext(session.WithSession(r.Context(), sess)))
	})
}

func (s *server) requireCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := session.FromContext(r.Context())
		if !ok || !s.sessions.ValidCSRF(sess, r.PostFormValue(csrfField)) {
			http.Error(w, "invalid csrf token", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// parseUpload reads the multipart body before requireCSRF looks for the
// token, so an oversized file is reported as such rather than as a bad token.
func parseUpload(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > n {
				redirectWith(w, r, employeesPath, "error", fileTooLargeText)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, n)
			if err := r.ParseMultipartForm(n); err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					redirectWith(w, r, employeesPath, "error", fileTooLargeText)
					return
				}
				http.Error(w, "invalid upload", http.StatusBadRequest)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// currentSession is only called behind requireSession.
func (s *server) currentSession(r *http.Request) session.Session {
	sess, _ := session.FromContext(r.Context())
	return sess
}

func (s *server) basePage(r *http.Request, title string) pageData {
	sess := s.currentSession(r)
	return pageData{
		Title:          title,
		User:           sess.User,
		SignedIn:       sess.ID != "",
		CSRFToken:      s.sessions.CSRFToken(sess),
		SuccessMessage: r.URL.Query().Get("message"),
		Error:          r.URL.Query().Get("error"),
	}
}

// handleSessionLoss ends the local session when the remote API no longer
// accepts its token. It reports whether it wrote a response.
func (s *server) handleSessionLoss(w http.ResponseWriter, r *http.Request, err error) bool {
	if !errors.Is(err, apiclient.ErrUnauthenticated) {
		return false
	}
	sess := s.currentSession(r)
	if revokeErr := s.sessions.Revoke(r.Context(), sess.ID); revokeErr != nil {
		s.logWarn(r, "revoke session failed", revokeErr)
	}
	s.sessions.ClearCookie(w)
	http.Redirect(w, r, "/login?error="+url.QueryEscape(sessionExpiredText), http.StatusSeeOther)
	return true
}

// roster reads the signed-in identity's employee list through the cache.
func (s *server) roster(ctx context.Context) ([]employee.Employee, error) {
	key := cacheKey(ctx)
	list, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log.WarnContext(ctx, "roster cache read failed", "error", err)
	} else if ok {
		return list, nil
	}
	// The version is read before the fetch starts so a mutation finishing
	// while it is in flight keeps its result out of the cache.
	version, versionErr := s.cache.Version(ctx, key)
	if versionErr != nil {
		s.log.WarnContext(ctx, "roster cache version read failed", "error", versionErr)
	}
	list, err = s.api.ListEmployees(ctx)
	if err != nil {
		return nil, err
	}
	if versionErr == nil {
		if err := s.cache.Set(ctx, key, version, list); err != nil {
			s.log.WarnContext(ctx, "roster cache write failed", "error", err)
		}
	}
	return list, nil
}

func (s *server) invalidateRoster(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, cacheKey(ctx)); err != nil {
		s.log.WarnContext(ctx, "roster cache invalidate failed", "error", err)
	}
}

func cacheKey(ctx context.Context) string {
	sess, _ := session.FromContext(ctx)
	if sess.User.ID != "" {
		return sess.User.ID
	}
	return sess.ID
}

func (s *server) record(r *http.Request, action, target, outcome, detail string) {
	actor := s.currentSession(r).User.Email
	e := audit.Event{Actor: actor, Action: action, Target: target, Outcome: outcome, Detail: detail}
	s.recordEvent(r, e)
}

func (s *server) recordEvent(r *http.Request, e audit.Event) {
	if err := s.audit.Log(r.Context(), e); err != nil {
		s.logWarn(r, "audit write failed", err, "action", e.Action)
	}
}

func (s *server) logWarn(r *http.Request, msg string, err error, args ...any) {
	args = append([]any{"error", err, "request_id", middleware.RequestIDFromContext(r.Context())}, args...)
	s.log.WarnContext(r.Context(), msg, args...)
}

func (s *server) render(w http.ResponseWriter, r *http.Request, tmpl *template.Template, status int, data pageData) {
	if err := renderHTMLTemplate(w, tmpl, status, data); err != nil {
		s.log.ErrorContext(r.Context(), "template render failed", "template", tmpl.Name(), "error", err, "request_id", middleware.RequestIDFromContext(r.Context()))
		http.Error(w, "template render failed", http.StatusInternalServerError)
	}
}

func renderHTMLTemplate(w http.ResponseWriter, tmpl *template.Template, status int, data pageData) error {
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := w.Write(buf.Bytes())
	return err
}

func (s *server) notFound(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, s.notFoundTmpl, http.StatusNotFound, pageData{Title: "Not found"})
}

func (s *server) appCSSFile(w http.ResponseWriter, r *http.Request) {
	b, err := templatesFS.ReadFile("assets/app.css")
	if err != nil {
		http.Error(w, "stylesheet unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(b)
}

// redirectWith appends a one-shot banner parameter to target.
func redirectWith(w http.ResponseWriter, r *http.Request, target, key, message string) {
	u, err := url.Parse(target)
	if err != nil {
		u = &url.URL{Path: "/dashboard"}
	}
	q := u.Query()
	q.Set(key, message)
	u.RawQuery = q.Encode()
	http.Redirect(w, r, u.RequestURI(), http.StatusSeeOther)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
