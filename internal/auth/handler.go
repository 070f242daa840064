package auth

import (
	"errors"
	"log/slog"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/tradeboard/tradeboard/internal/platform/httpx"
	"github.com/tradeboard/tradeboard/internal/registry"
	"github.com/tradeboard/tradeboard/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	resolver       *Resolver
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, resolver *Resolver, sessions *shared.SessionManager, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		resolver:       resolver,
		sessionManager: sessions,
		csrfManager:    csrf,
		validator:      validator.New(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/me", h.handleMe)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
}

type loginForm struct {
	Username string `json:"username" validate:"required,max=128"`
	Password string `json:"password" validate:"required,max=256"`
}

type meResponse struct {
	Authenticated bool               `json:"authenticated"`
	Identity      *registry.Identity `json:"identity,omitempty"`
	CSRFToken     string             `json:"csrf_token"`
}

type validationProblem struct {
	httpx.ProblemDetail
	Errors map[string]string `json:"errors"`
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	token, _ := h.csrfManager.EnsureToken(r.Context(), sess)
	resp := meResponse{CSRFToken: token}
	if id, ok := h.resolver.Identity(r); ok {
		resp.Authenticated = true
		resp.Identity = &id
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("login without session")
		httpx.RespondError(w, shared.ErrSessionMissing)
		return
	}

	form, err := decodeLogin(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Geçersiz istek", "")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			httpx.RespondError(w, err)
			return
		}
		problems := make(map[string]string, len(fieldErrs))
		for _, fieldErr := range fieldErrs {
			problems[fieldErr.Field()] = fieldErr.Tag()
		}
		httpx.JSON(w, http.StatusBadRequest, validationProblem{
			ProblemDetail: httpx.ProblemDetail{Title: "Eksik bilgi", Status: http.StatusBadRequest},
			Errors:        problems,
		})
		return
	}

	user, err := h.service.Authenticate(r.Context(), form.Username, form.Password)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			httpx.Problem(w, http.StatusUnauthorized, "Giriş başarısız", "Kullanıcı adı veya şifre hatalı.")
			return
		}
		h.logger.Error("authenticate", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	id := user.Identity()
	h.sessionManager.Renew(sess)
	sess.SetIdentity(id)
	token, err := h.csrfManager.Rotate(sess)
	if err != nil {
		h.logger.Error("rotate csrf token", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("user logged in", slog.String("user", id.Username), slog.String("role", string(id.Role)))
	httpx.JSON(w, http.StatusOK, meResponse{Authenticated: true, Identity: &id, CSRFToken: token})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		h.sessionManager.Destroy(sess)
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeLogin(r *http.Request) (loginForm, error) {
	var form loginForm
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		err := httpx.DecodeJSON(r, &form)
		return form, err
	}
	if err := r.ParseForm(); err != nil {
		return form, err
	}
	form.Username = r.PostFormValue("username")
	form.Password = r.PostFormValue("password")
	return form, nil
}

// HandleLoginForTest exposes the POST handler for tests.
func (h *Handler) HandleLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.handleLogin(w, r)
}

// HandleMeForTest exposes the GET handler for tests.
func (h *Handler) HandleMeForTest(w http.ResponseWriter, r *http.Request) {
	h.handleMe(w, r)
}

// HandleLogoutForTest exposes the logout handler for tests.
func (h *Handler) HandleLogoutForTest(w http.ResponseWriter, r *http.Request) {
	h.handleLogout(w, r)
}
