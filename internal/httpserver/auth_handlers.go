package httpserver

import (
	"net/http"
	"time"

	"github.com/aaronBIOO/QuickChat/internal/config"
	"github.com/aaronBIOO/QuickChat/internal/domain"
	"github.com/aaronBIOO/QuickChat/internal/service"
)

// sessionResponse is returned by signup and login.
type sessionResponse struct {
	Success bool         `json:"success"`
	User    *domain.User `json:"user"`
	Token   string       `json:"token"`
	Message string       `json:"message"`
}

type userResponse struct {
	Success bool         `json:"success"`
	User    *domain.User `json:"user"`
}

func setSessionCookie(w http.ResponseWriter, auth config.AuthConfig, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(auth.TokenTTL / time.Second),
		HttpOnly: true,
		Secure:   auth.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter, auth config.AuthConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   auth.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// @Summary      Sign up
// @Description  Create an account with email and password and start a session
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        input body service.SignupInput true "Sign-up input"
// @Success      201  {object}  sessionResponse
// @Failure      400  {object}  errorResponse
// @Failure      409  {object}  errorResponse
// @Router       /auth/signup [post]
func handleSignup(authSvc *service.AuthService, auth config.AuthConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in service.SignupInput
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, r, err)
			return
		}
		sess, err := authSvc.Signup(r.Context(), in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		setSessionCookie(w, auth, sess.Token)
		writeJSON(w, http.StatusCreated, sessionResponse{
			Success: true,
			User:    sess.User,
			Token:   sess.Token,
			Message: "Account created successfully",
		})
	}
}

// @Summary      Log in
// @Description  Log in with email and password
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        input body service.LoginInput true "Login input"
// @Success      200  {object}  sessionResponse
// @Failure      400  {object}  errorResponse
// @Failure      401  {object}  errorResponse
// @Router       /auth/login [post]
func handleLogin(authSvc *service.AuthService, auth config.AuthConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in service.LoginInput
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, r, err)
			return
		}
		sess, err := authSvc.Login(r.Context(), in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		setSessionCookie(w, auth, sess.Token)
		writeJSON(w, http.StatusOK, sessionResponse{
			Success: true,
			User:    sess.User,
			Token:   sess.Token,
			Message: "Login successful",
		})
	}
}

// @Summary      Log out
// @Description  Clear the session cookie
// @Tags         auth
// @Produce      json
// @Success      200  {object}  map[string]any
// @Router       /auth/logout [post]
func handleLogout(auth config.AuthConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clearSessionCookie(w, auth)
		writeOK(w, http.StatusOK, envelope{"message": "Logged out successfully"})
	}
}

// @Summary      Current user
// @Description  Return the authenticated user
// @Tags         auth
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  userResponse
// @Failure      401  {object}  errorResponse
// @Router       /auth/check [get]
func handleCheck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, userResponse{Success: true, User: CurrentUser(r)})
	}
}

// @Summary      Update profile
// @Description  Change name, bio or avatar. profilePic is a data URI or base64 image.
// @Tags         auth
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        input body service.ProfileInput true "Profile fields to change"
// @Success      200  {object}  userResponse
// @Failure      400  {object}  errorResponse
// @Failure      401  {object}  errorResponse
// @Failure      502  {object}  errorResponse
// @Router       /auth/update-profile [put]
func handleUpdateProfile(userSvc *service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in service.ProfileInput
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, r, err)
			return
		}
		user, err := userSvc.UpdateProfile(r.Context(), CurrentUser(r).ID, in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, userResponse{Success: true, User: user})
	}
}
