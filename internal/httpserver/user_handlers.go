package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aaronBIOO/QuickChat/internal/service"
)

type onlineResponse struct {
	Success bool     `json:"success"`
	Users   []string `json:"users"`
}

// @Summary      Online users
// @Description  Ids of users with at least one open push connection
// @Tags         users
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  onlineResponse
// @Router       /users/online [get]
func handleListOnlineUsers(userSvc *service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, onlineResponse{Success: true, Users: userSvc.Online(r.Context())})
	}
}

// @Summary      Get user
// @Description  Public profile of one user with online flag
// @Tags         users
// @Security     BearerAuth
// @Produce      json
// @Param        userID path string true "User id"
// @Success      200  {object}  map[string]interface{}
// @Failure      404  {object}  errorResponse
// @Router       /users/{userID} [get]
func handleGetUser(userSvc *service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := userSvc.Lookup(r.Context(), chi.URLParam(r, "userID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, envelope{"user": user})
	}
}
