package categories

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/coocood/freecache"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"github.com/yshindo/publog/internal/telemetry/tracing"
	"github.com/yshindo/publog/pkg"
)

const (
	oneHour             = 60 * 60
	categoryCacheExpire = oneHour * 1 // default expire in hours
)

var categoriesCacheKey = []byte("categories")

type Category struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

var _ categoriesRepo = (*Repo)(nil)

type Repo struct {
	db    *pgxpool.Pool
	cache *freecache.Cache
}

func NewRepo(db *pgxpool.Pool) *Repo {
	megabyte := 1024 * 1024
	return &Repo{
		db:    db,
		cache: freecache.NewCache(1 * megabyte),
	}
}

func (r *Repo) List(ctx context.Context) ([]Category, error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "categoriesRepo.List")
	defer span.End()

	// categories are seed data, the cached copy is good enough
	if cachedBytes, err := r.cache.Get(categoriesCacheKey); err == nil {
		var categories []Category
		if err := json.Unmarshal(cachedBytes, &categories); err == nil {
			log.Traceln("categories served from cache")
			return categories, nil
		}
	}

	rows, err := r.db.Query(ctx, `SELECT id, name FROM category ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if categoriesBytes, err := json.Marshal(categories); err == nil {
		if err := r.cache.Set(categoriesCacheKey, categoriesBytes, categoryCacheExpire); err != nil {
			log.Errorf("failed to cache categories: %s", err)
		}
	}

	return categories, nil
}

type categoriesRepo interface {
	List(ctx context.Context) ([]Category, error)
}

type Handler struct {
	repo categoriesRepo
}

func NewHandler(repo categoriesRepo) *Handler {
	return &Handler{
		repo: repo,
	}
}

func (handler *Handler) SetupRoutes(router *mux.Router) {
	router.HandleFunc("/categories", handler.handleList).Methods("GET").Name("categories")
}

func (handler *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	categories, err := handler.repo.List(r.Context())
	if err != nil {
		log.Errorf("get categories error: %s", err)
		http.Error(w, "failed to get categories", http.StatusInternalServerError)
		return
	}

	if len(categories) == 0 {
		pkg.WriteJSONResponseOK(w, "[]")
		return
	}

	categoriesJson, err := json.Marshal(categories)
	if err != nil {
		log.Errorf("marshal categories error: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	pkg.WriteJSONResponseOK(w, string(categoriesJson))
}
