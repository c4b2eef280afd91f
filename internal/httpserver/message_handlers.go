package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aaronBIOO/QuickChat/internal/domain"
	"github.com/aaronBIOO/QuickChat/internal/service"
)

type peersResponse struct {
	Success        bool               `json:"success"`
	Users          []service.PeerView `json:"users"`
	UnseenMessages map[string]int     `json:"unseenMessages"`
}

type conversationResponse struct {
	Success  bool              `json:"success"`
	Messages []*domain.Message `json:"messages"`
}

type sendResponse struct {
	Success    bool            `json:"success"`
	NewMessage *domain.Message `json:"newMessage"`
}

type markResponse struct {
	Success bool            `json:"success"`
	Message *domain.Message `json:"message"`
}

// @Summary      List peers
// @Description  Every other user with online flag, plus unseen counts keyed by sender id
// @Tags         messages
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  peersResponse
// @Failure      401  {object}  errorResponse
// @Router       /messages/users [get]
func handleListPeers(userSvc *service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		peers, unseen, err := userSvc.ListPeers(r.Context(), CurrentUser(r).ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, peersResponse{Success: true, Users: peers, UnseenMessages: unseen})
	}
}

// @Summary      Conversation
// @Description  Messages between the caller and a peer, oldest first. Marks the peer's messages as seen.
// @Tags         messages
// @Security     BearerAuth
// @Produce      json
// @Param        peerID path string true "Peer user id"
// @Success      200  {object}  conversationResponse
// @Failure      404  {object}  errorResponse
// @Router       /messages/{peerID} [get]
func handleConversation(msgSvc *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		msgs, err := msgSvc.Conversation(r.Context(), CurrentUser(r).ID, chi.URLParam(r, "peerID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, conversationResponse{Success: true, Messages: msgs})
	}
}

// @Summary      Send message
// @Description  Persist a text and/or image message and push it to the receiver if online
// @Tags         messages
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        peerID path string true "Receiver user id"
// @Param        input body service.SendInput true "Message content"
// @Success      201  {object}  sendResponse
// @Failure      400  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Failure      502  {object}  errorResponse
// @Router       /messages/send/{peerID} [post]
func handleSend(msgSvc *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in service.SendInput
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, r, err)
			return
		}
		msg, err := msgSvc.Send(r.Context(), CurrentUser(r).ID, chi.URLParam(r, "peerID"), in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, sendResponse{Success: true, NewMessage: msg})
	}
}

// @Summary      Mark seen
// @Description  Mark one received message as seen. Idempotent.
// @Tags         messages
// @Security     BearerAuth
// @Produce      json
// @Param        messageID path string true "Message id"
// @Success      200  {object}  markResponse
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /messages/mark/{messageID} [put]
func handleMarkSeen(msgSvc *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		msg, err := msgSvc.MarkSeen(r.Context(), CurrentUser(r).ID, chi.URLParam(r, "messageID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, markResponse{Success: true, Message: msg})
	}
}
