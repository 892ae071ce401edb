package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"privacyx/internal/auth"
	"privacyx/internal/telemetry"
	"privacyx/internal/user"
)

type AuthHandler struct {
	Users        *user.Service
	Render       *Renderer
	SecureCookie bool
}

func requestLog(r *http.Request) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
		"ip":     r.RemoteAddr,
	})
}

func credentialsFromForm(r *http.Request) user.Credentials {
	return user.Credentials{
		Username: strings.TrimSpace(r.PostFormValue("username")),
		Password: r.PostFormValue("password"),
	}
}

func (h *AuthHandler) setSession(w http.ResponseWriter, session *user.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   h.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	h.Render.Render(w, http.StatusOK, "login", pageData{Title: "Log in"})
}

func (h *AuthHandler) SignupPage(w http.ResponseWriter, r *http.Request) {
	h.Render.Render(w, http.StatusOK, "signup", pageData{Title: "Sign up"})
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	log := requestLog(r)
	log.Info("signup request received")

	if err := r.ParseForm(); err != nil {
		log.WithError(err).Warn("signup: invalid request body")
		h.Render.Render(w, http.StatusBadRequest, "signup", pageData{Title: "Sign up", Error: "Invalid form submission."})
		return
	}
	creds := credentialsFromForm(r)
	form := pageData{Title: "Sign up", Username: creds.Username}

	session, err := h.Users.Signup(r.Context(), creds)
	var verr *user.ValidationError
	switch {
	case err == nil:
	case errors.As(err, &verr):
		telemetry.AuthEvents.WithLabelValues("signup", "invalid").Inc()
		form.Error = validationMessage(verr)
		h.Render.Render(w, http.StatusBadRequest, "signup", form)
		return
	case errors.Is(err, auth.ErrDuplicateUser):
		telemetry.AuthEvents.WithLabelValues("signup", "duplicate").Inc()
		form.Error = "That username is already taken."
		h.Render.Render(w, http.StatusConflict, "signup", form)
		return
	default:
		telemetry.AuthEvents.WithLabelValues("signup", "error").Inc()
		log.WithError(err).Error("signup: failed to create user")
		h.serverError(w)
		return
	}

	telemetry.AuthEvents.WithLabelValues("signup", "ok").Inc()
	h.setSession(w, session)
	http.Redirect(w, r, "/home", http.StatusFound)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	log := requestLog(r)
	log.Info("login request received")

	if err := r.ParseForm(); err != nil {
		h.Render.Render(w, http.StatusBadRequest, "login", pageData{Title: "Log in", Error: "Invalid form submission."})
		return
	}
	creds := credentialsFromForm(r)

	session, err := h.Users.Login(r.Context(), creds)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			telemetry.AuthEvents.WithLabelValues("login", "invalid").Inc()
			h.Render.Render(w, http.StatusUnauthorized, "login", pageData{
				Title:    "Log in",
				Username: creds.Username,
				Error:    "Invalid username or password.",
			})
			return
		}
		telemetry.AuthEvents.WithLabelValues("login", "error").Inc()
		log.WithError(err).Error("login: an internal error occurred")
		h.serverError(w)
		return
	}

	telemetry.AuthEvents.WithLabelValues("login", "ok").Inc()
	log.WithField("username", session.Username).Info("login: user authenticated successfully")
	h.setSession(w, session)
	http.Redirect(w, r, "/home", http.StatusFound)
}

// Logout revokes the caller's session if the cookie names the active one,
// then clears the cookie. It always redirects to the login page.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	log := requestLog(r)

	username, err := h.Users.Authenticate(r.Context(), auth.TokenFromRequest(r))
	if err == nil {
		if err := h.Users.Logout(r.Context(), username); err != nil {
			telemetry.AuthEvents.WithLabelValues("logout", "error").Inc()
			log.WithError(err).Error("logout: failed to revoke session")
			h.serverError(w)
			return
		}
		telemetry.AuthEvents.WithLabelValues("logout", "ok").Inc()
	} else if !errors.Is(err, auth.ErrNotAuthenticated) {
		log.WithError(err).Warn("logout: could not resolve session")
	}

	h.clearSession(w)
	http.Redirect(w, r, "/", http.StatusFound)
}

func (h *AuthHandler) Home(w http.ResponseWriter, r *http.Request) {
	username, _ := auth.GetUsername(r.Context())
	h.Render.Render(w, http.StatusOK, "home", pageData{Title: "Home", User: username})
}

// Unauthorized renders a rejected session check. It is the failure handler of
// auth.RequireSession.
func (h *AuthHandler) Unauthorized(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, auth.ErrNotAuthenticated) {
		h.Render.Render(w, http.StatusUnauthorized, "login", pageData{
			Title: "Log in",
			Error: "Please log in to continue.",
		})
		return
	}
	requestLog(r).WithError(err).Error("session check failed")
	h.serverError(w)
}

func (h *AuthHandler) serverError(w http.ResponseWriter) {
	h.Render.Render(w, http.StatusInternalServerError, "error", pageData{
		Title: "Something went wrong",
		Error: "An internal error occurred. Please try again.",
	})
}

func validationMessage(err *user.ValidationError) string {
	switch err.Field {
	case "Username":
		return "Username must be 3 to 64 characters: letters, digits, dot, dash or underscore."
	case "Password":
		return "Password must be 6 to 72 characters."
	}
	return "Invalid input."
}
