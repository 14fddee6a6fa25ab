package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/yshindo/publog/internal/auth"
	"github.com/yshindo/publog/internal/telemetry/metrics"
	"github.com/yshindo/publog/pkg"
)

type newPostRequest struct {
	Title      string `json:"title"`
	Content    string `json:"content"`
	Published  bool   `json:"published"`
	Categories []int  `json:"categories"`
}

type contentRepo interface {
	ListPublished(ctx context.Context, params ListParams) (*ListResult, error)
	ListForOwner(ctx context.Context, ownerID int, includeUnpublished bool, page, size int) (*ListResult, error)
	Get(ctx context.Context, id, viewerID int) (*Post, error)
	Create(ctx context.Context, post *Post) error
	Update(ctx context.Context, params UpdateParams) error
	Delete(ctx context.Context, id, userID int) error
}

type Handler struct {
	repo       contentRepo
	collection string
	metrics    *metrics.Manager
}

func NewHandler(repo contentRepo, collection string, metricsManager *metrics.Manager) *Handler {
	return &Handler{
		repo:       repo,
		collection: collection,
		metrics:    metricsManager,
	}
}

func (handler *Handler) SetupRoutes(router *mux.Router) {
	router.HandleFunc("", handler.handleList).Methods("GET").Name(handler.collection + "-list")
	router.HandleFunc("/page/{page}/size/{size}", handler.handleListPage).Methods("GET").Name(handler.collection + "-page")
	router.HandleFunc("/{id:[0-9]+}", handler.handleGet).Methods("GET").Name(handler.collection + "-get")
	router.HandleFunc("", handler.handleCreate).Methods("POST", "OPTIONS").Name("new-" + handler.collection)
	router.HandleFunc("/{id:[0-9]+}", handler.handleUpdate).Methods("PUT", "OPTIONS").Name("update-" + handler.collection)
	router.HandleFunc("/{id:[0-9]+}", handler.handleDelete).Methods("DELETE", "OPTIONS").Name("delete-" + handler.collection)
}

// handleList serves the default listing: query params `search`, `category`
// and `page`, fixed page size. A missing page means page one, a present but
// broken one is a client error.
func (handler *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	page := 1
	if pageStr := query.Get("page"); pageStr != "" {
		var err error
		page, err = strconv.Atoi(pageStr)
		if err != nil || page < 1 {
			http.Error(w, "invalid page (has to be a positive number)", http.StatusBadRequest)
			return
		}
	}

	categoryID := 0
	if categoryStr := query.Get("category"); categoryStr != "" {
		var err error
		categoryID, err = strconv.Atoi(categoryStr)
		if err != nil {
			http.Error(w, "invalid category", http.StatusBadRequest)
			return
		}
	}

	handler.writeListPage(w, r, ListParams{
		Search:     query.Get("search"),
		CategoryID: categoryID,
		Page:       page,
		Size:       DefaultPageSize,
	})
}

func (handler *Handler) handleListPage(w http.ResponseWriter, r *http.Request) {
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

	categoryID := 0
	if categoryStr := r.URL.Query().Get("category"); categoryStr != "" {
		categoryID, err = strconv.Atoi(categoryStr)
		if err != nil {
			http.Error(w, "invalid category", http.StatusBadRequest)
			return
		}
	}

	handler.writeListPage(w, r, ListParams{
		Search:     r.URL.Query().Get("search"),
		CategoryID: categoryID,
		Page:       page,
		Size:       size,
	})
}

func (handler *Handler) writeListPage(w http.ResponseWriter, r *http.Request, params ListParams) {
	result, err := handler.repo.ListPublished(r.Context(), params)
	if err != nil {
		log.Errorf("list %s error: %s", handler.collection, err)
		http.Error(w, fmt.Sprintf("failed to get %s", handler.collection), http.StatusInternalServerError)
		return
	}

	resultJson, err := json.Marshal(result)
	if err != nil {
		log.Errorf("marshal %s error: %s", handler.collection, err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, resultJson)
}

func (handler *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "error, id NaN", http.StatusBadRequest)
		return
	}

	viewerID := auth.UserIDFromContext(r.Context())

	post, err := handler.repo.Get(r.Context(), id, viewerID)
	if err != nil {
		handler.writeError(w, fmt.Sprintf("get %s %d", handler.collection, id), err)
		return
	}

	postJson, err := json.Marshal(post)
	if err != nil {
		log.Errorf("marshal %s %d error: %s", handler.collection, id, err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, postJson)
}

func (handler *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	if userID == 0 {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	newPostReq, ok := handler.readPostRequest(w, r)
	if !ok {
		return
	}

	if newPostReq.Title == "" {
		http.Error(w, "error, title empty", http.StatusBadRequest)
		return
	}
	if newPostReq.Content == "" {
		http.Error(w, "error, content empty", http.StatusBadRequest)
		return
	}

	newPost := &Post{
		Title:       newPostReq.Title,
		Content:     newPostReq.Content,
		Published:   newPostReq.Published,
		Author:      Author{ID: userID},
		CategoryIDs: newPostReq.Categories,
	}

	if err := handler.repo.Create(r.Context(), newPost); err != nil {
		log.Errorf("add new %s failed: %s", handler.collection, err)
		http.Error(w, fmt.Sprintf("add new %s failed", handler.collection), http.StatusInternalServerError)
		return
	}

	log.Tracef("new %s %d: [%s] added", handler.collection, newPost.ID, newPost.Title)
	handler.metrics.CounterPostsCreated.With(prometheus.Labels{"collection": handler.collection}).Inc()

	pkg.WriteResponse(
		w,
		pkg.ContentType.Text,
		fmt.Sprintf("added:%d", newPost.ID),
		http.StatusCreated,
	)
}

func (handler *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "error, id NaN", http.StatusBadRequest)
		return
	}

	updateReq, ok := handler.readPostRequest(w, r)
	if !ok {
		return
	}

	if updateReq.Title == "" {
		http.Error(w, "error, title empty", http.StatusBadRequest)
		return
	}
	if updateReq.Content == "" {
		http.Error(w, "error, content empty", http.StatusBadRequest)
		return
	}

	err = handler.repo.Update(r.Context(), UpdateParams{
		ID:          id,
		UserID:      auth.UserIDFromContext(r.Context()),
		Title:       updateReq.Title,
		Content:     updateReq.Content,
		Published:   updateReq.Published,
		CategoryIDs: updateReq.Categories,
	})
	if err != nil {
		handler.writeError(w, fmt.Sprintf("update %s %d", handler.collection, id), err)
		return
	}

	pkg.WriteTextResponseOK(w, fmt.Sprintf("updated:%d", id))
}

func (handler *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "error, id NaN", http.StatusBadRequest)
		return
	}

	userID := auth.UserIDFromContext(r.Context())
	if err := handler.repo.Delete(r.Context(), id, userID); err != nil {
		handler.writeError(w, fmt.Sprintf("delete %s %d", handler.collection, id), err)
		return
	}

	pkg.WriteTextResponseOK(w, fmt.Sprintf("deleted:%d", id))
}

// readPostRequest accepts the same payload as JSON body or form values
// (where `categories` repeats, one value per id).
func (handler *Handler) readPostRequest(w http.ResponseWriter, r *http.Request) (newPostRequest, bool) {
	var req newPostRequest
	if r.Header.Get("Content-Type") == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.Errorf("%s request, unmarshal json params: %s", handler.collection, err)
			http.Error(w, "invalid request", http.StatusBadRequest)
			return req, false
		}
		return req, true
	}

	if err := r.ParseForm(); err != nil {
		log.Errorf("%s request, parse form error: %s", handler.collection, err)
		http.Error(w, "parse form error", http.StatusInternalServerError)
		return req, false
	}

	var categories []int
	for _, categoryStr := range r.Form["categories"] {
		categoryID, err := strconv.Atoi(categoryStr)
		if err != nil {
			http.Error(w, "error, category NaN", http.StatusBadRequest)
			return req, false
		}
		categories = append(categories, categoryID)
	}

	published := r.Form.Get("published") == "true" || r.Form.Get("published") == "on"
	req = newPostRequest{
		Title:      r.Form.Get("title"),
		Content:    r.Form.Get("content"),
		Published:  published,
		Categories: categories,
	}
	return req, true
}

func (handler *Handler) writeError(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, ErrPostNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, auth.ErrUnauthenticated):
		http.Error(w, "no can do", http.StatusUnauthorized)
	case errors.Is(err, auth.ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, ErrTitleOrContentEmpty):
		http.Error(w, "error, title or content empty", http.StatusBadRequest)
	default:
		log.Errorf("%s: %s", msg, err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}
