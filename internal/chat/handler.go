package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/yshindo/publog/internal/auth"
	"github.com/yshindo/publog/internal/telemetry/metrics"
	"github.com/yshindo/publog/pkg"
)

type newMessageRequest struct {
	Content string `json:"content"`
}

type chatRepo interface {
	Add(ctx context.Context, authorID int, content string) (*Message, error)
	Delete(ctx context.Context, id, userID int) error
	LastMessages(ctx context.Context, limit int) ([]Message, error)
	GetMessagesPage(ctx context.Context, page, size int) ([]Message, error)
	MessagesCount(ctx context.Context) (int, error)
}

type Handler struct {
	repo    chatRepo
	metrics *metrics.Manager
}

func NewHandler(repo chatRepo, metricsManager *metrics.Manager) *Handler {
	return &Handler{
		repo:    repo,
		metrics: metricsManager,
	}
}

func (handler *Handler) SetupRoutes(router *mux.Router) {
	router.HandleFunc("/messages", handler.handleNewMessage).Methods("POST", "OPTIONS").Name("new-chat-message")
	router.HandleFunc("/messages/{id}", handler.handleDeleteMessage).Methods("DELETE", "OPTIONS").Name("delete-chat-message")
	router.HandleFunc("/messages/count", handler.handleMessagesCount).Methods("GET").Name("count-chat-messages")
	router.HandleFunc("/messages/last/{limit}", handler.handleLastMessages).Methods("GET").Name("last-chat-messages")
	router.HandleFunc("/messages/page/{page}/size/{size}", handler.handleGetMessagesPage).Methods("GET").Name("chat-messages-page")
}

func (handler *Handler) handleNewMessage(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	if userID == 0 {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	var newMessageReq newMessageRequest
	if r.Header.Get("Content-Type") == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&newMessageReq); err != nil {
			log.Errorf("store new chat message, unmarshal json params: %s", err)
			http.Error(w, "failed to store message", http.StatusBadRequest)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			log.Errorf("add new chat message failed, parse form error: %s", err)
			http.Error(w, "parse form error", http.StatusInternalServerError)
			return
		}
		newMessageReq = newMessageRequest{
			Content: r.Form.Get("content"),
		}
	}

	if newMessageReq.Content == "" {
		http.Error(w, "error, message empty", http.StatusBadRequest)
		return
	}

	message, err := handler.repo.Add(r.Context(), userID, newMessageReq.Content)
	if err != nil {
		log.Errorf("store new chat message error: %s", err)
		http.Error(w, "failed to store message", http.StatusInternalServerError)
		return
	}

	handler.metrics.CounterChatMessages.Inc()

	pkg.WriteResponse(w, pkg.ContentType.Text, fmt.Sprintf("added:%d", message.ID), http.StatusCreated)
}

func (handler *Handler) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "error, id NaN", http.StatusBadRequest)
		return
	}

	userID := auth.UserIDFromContext(r.Context())
	if err := handler.repo.Delete(r.Context(), id, userID); err != nil {
		switch {
		case errors.Is(err, ErrMessageNotFound):
			http.Error(w, "not found", http.StatusNotFound)
		case errors.Is(err, auth.ErrUnauthenticated):
			http.Error(w, "no can do", http.StatusUnauthorized)
		case errors.Is(err, auth.ErrForbidden):
			http.Error(w, "forbidden", http.StatusForbidden)
		default:
			log.Errorf("delete chat message %d: %s", id, err)
			http.Error(w, "failed to delete message", http.StatusInternalServerError)
		}
		return
	}

	pkg.WriteTextResponseOK(w, fmt.Sprintf("deleted:%d", id))
}

func (handler *Handler) handleLastMessages(w http.ResponseWriter, r *http.Request) {
	limit, err := strconv.Atoi(mux.Vars(r)["limit"])
	if err != nil || limit < 1 {
		http.Error(w, "invalid limit provided", http.StatusBadRequest)
		return
	}

	messages, err := handler.repo.LastMessages(r.Context(), limit)
	if err != nil {
		log.Errorf("get last chat messages error: %s", err)
		http.Error(w, "failed to get messages", http.StatusInternalServerError)
		return
	}

	handler.writeMessages(w, messages)
}

func (handler *Handler) handleGetMessagesPage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	page, err := strconv.Atoi(vars["page"])
	if err != nil || page < 1 {
		http.Error(w, "invalid page (has to be a positive number)", http.StatusBadRequest)
		return
	}
	size, err := strconv.Atoi(vars["size"])
	if err != nil || size < 1 {
		http.Error(w, "invalid size (has to be a positive number)", http.StatusBadRequest)
		return
	}

	messages, err := handler.repo.GetMessagesPage(r.Context(), page, size)
	if err != nil {
		log.Errorf("get chat messages error: %s", err)
		http.Error(w, "failed to get messages", http.StatusInternalServerError)
		return
	}

	handler.writeMessages(w, messages)
}

func (handler *Handler) handleMessagesCount(w http.ResponseWriter, r *http.Request) {
	count, err := handler.repo.MessagesCount(r.Context())
	if err != nil {
		log.Errorf("get chat messages count error: %s", err)
		http.Error(w, "failed to get messages count", http.StatusInternalServerError)
		return
	}

	pkg.WriteJSONResponseOK(w, fmt.Sprintf(`{"count":%d}`, count))
}

func (handler *Handler) writeMessages(w http.ResponseWriter, messages []Message) {
	if len(messages) == 0 {
		pkg.WriteJSONResponseOK(w, "[]")
		return
	}

	messagesJson, err := json.Marshal(messages)
	if err != nil {
		log.Errorf("marshal chat messages error: %s", err)
		http.Error(w, "marshal messages error", http.StatusInternalServerError)
		return
	}

	pkg.WriteJSONResponseOK(w, string(messagesJson))
}
