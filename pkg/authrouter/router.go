package authrouter

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/basestub/basestub/pkg/auth"
	"github.com/basestub/basestub/pkg/httputil"
	"github.com/basestub/basestub/pkg/middleware"
)

// Router serves /auth/v1/*.
type Router struct {
	handler *auth.Handler
	mux     *mux.Router
	limiter *middleware.RateLimiter
}

// New builds the route table around an auth.Handler.
func New(handler *auth.Handler) *Router {
	rt := &Router{
		handler: handler,
		limiter: middleware.NewRateLimiter(middleware.DefaultRateLimitConfig()),
	}

	r := mux.NewRouter()
	r.HandleFunc("/auth/v1/signup", rt.signUp).Methods(http.MethodPost)
	r.HandleFunc("/auth/v1/token", rt.token).Methods(http.MethodPost)
	r.HandleFunc("/auth/v1/logout", rt.logout).Methods(http.MethodPost)
	r.HandleFunc("/auth/v1/user", rt.getUser).Methods(http.MethodGet)
	r.HandleFunc("/auth/v1/user", rt.updateUser).Methods(http.MethodPut)
	r.HandleFunc("/auth/v1/session", rt.getSession).Methods(http.MethodGet)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeAuthError(w, http.StatusNotFound, "not_found", "unknown auth endpoint")
	})
	rt.mux = r
	return rt
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rt.mux.ServeHTTP(w, r)
}

// authError is the OAuth-style error body every auth failure uses.
type authError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

func writeAuthError(w http.ResponseWriter, status int, code, description string) {
	httputil.WriteJSON(w, status, authError{Error: code, ErrorDescription: description})
}

// writeHandlerError maps auth package errors onto stable wire codes.
// Credential-shaped failures all collapse to invalid_credentials so a
// response never reveals whether a user exists.
func writeHandlerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrEmailExists):
		writeAuthError(w, http.StatusBadRequest, "user_already_exists", "a user with this email address has already been registered")
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrUserNotFound), errors.Is(err, auth.ErrUserBanned):
		writeAuthError(w, http.StatusBadRequest, "invalid_credentials", "invalid login credentials")
	case errors.Is(err, auth.ErrInvalidGrant), errors.Is(err, auth.ErrRefreshTokenReused), errors.Is(err, auth.ErrSessionNotFound):
		writeAuthError(w, http.StatusUnauthorized, "invalid_grant", "invalid refresh token")
	default:
		writeAuthError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

type signUpBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Options  struct {
		Data map[string]any `json:"data"`
	} `json:"options"`
}

func (rt *Router) signUp(w http.ResponseWriter, r *http.Request) {
	var body signUpBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeAuthError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	if body.Email == "" || body.Password == "" {
		writeAuthError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	resp, err := rt.handler.SignUp(r.Context(), auth.SignUpRequest{
		Email:        body.Email,
		Password:     body.Password,
		UserMetadata: body.Options.Data,
	})
	if err != nil {
		writeHandlerError(w, err)
		return
	}
	httputil.WriteSuccess(w, resp)
}

type tokenBody struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	RefreshToken string `json:"refresh_token"`
}

func (rt *Router) token(w http.ResponseWriter, r *http.Request) {
	if !rt.limiter.Allow("token:" + clientIP(r)) {
		writeAuthError(w, http.StatusTooManyRequests, "over_request_rate_limit", "too many token requests, retry later")
		return
	}

	var body tokenBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeAuthError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	switch r.URL.Query().Get("grant_type") {
	case "password":
		resp, err := rt.handler.SignInWithPassword(r.Context(), auth.SignInRequest{Email: body.Email, Password: body.Password})
		if err != nil {
			writeHandlerError(w, err)
			return
		}
		httputil.WriteSuccess(w, resp)
	case "refresh_token":
		resp, err := rt.handler.RefreshSession(r.Context(), body.RefreshToken)
		if err != nil {
			writeHandlerError(w, err)
			return
		}
		httputil.WriteSuccess(w, resp)
	default:
		writeAuthError(w, http.StatusBadRequest, "unsupported_grant_type", "grant_type must be password or refresh_token")
	}
}

func (rt *Router) logout(w http.ResponseWriter, r *http.Request) {
	// sign-out succeeds even with no or an unverifiable token; the
	// in-memory session is always cleared
	_ = rt.handler.SignOut(r.Context(), bearerToken(r))
	httputil.WriteNoContent(w)
}

func (rt *Router) getUser(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeAuthError(w, http.StatusUnauthorized, "no_authorization", "missing bearer token")
		return
	}
	user, err := rt.handler.GetUser(r.Context(), token)
	if err != nil {
		writeAuthError(w, http.StatusUnauthorized, "invalid_token", "token is invalid or expired")
		return
	}
	httputil.WriteSuccess(w, user)
}

func (rt *Router) updateUser(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeAuthError(w, http.StatusUnauthorized, "no_authorization", "missing bearer token")
		return
	}

	var req auth.UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAuthError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	user, err := rt.handler.UpdateUser(r.Context(), token, req)
	if err != nil {
		writeAuthError(w, http.StatusUnauthorized, "invalid_token", "token is invalid or expired")
		return
	}
	httputil.WriteSuccess(w, user)
}

func (rt *Router) getSession(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, map[string]any{"session": rt.handler.GetSession()})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	return r.RemoteAddr
}
