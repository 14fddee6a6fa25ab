package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/yshindo/publog/internal/auth"
	"github.com/yshindo/publog/internal/content"
	"github.com/yshindo/publog/internal/middleware"
	"github.com/yshindo/publog/internal/storage"
	"github.com/yshindo/publog/internal/telemetry/metrics"
	"github.com/yshindo/publog/internal/validate"
	"github.com/yshindo/publog/pkg"
)

const maxImageUploadBytes = 5 << 20

var allowedImageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
}

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type updateProfileRequest struct {
	Name string `json:"name"`
	Bio  string `json:"bio"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type profileUser struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image"`
	Bio   string `json:"bio"`
	// Email is only set when the profile owner looks at their own profile
	Email string `json:"email,omitempty"`
}

type sessionResponse struct {
	Token string      `json:"token"`
	User  profileUser `json:"user"`
}

type profileResponse struct {
	User  profileUser         `json:"user"`
	Blogs *content.ListResult `json:"blogs"`
}

type usersRepo interface {
	Create(ctx context.Context, email, name, passwordHash string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id int) (*User, error)
	UpdateProfile(ctx context.Context, id int, name, bio string) error
	UpdatePassword(ctx context.Context, id int, passwordHash string) error
	UpdateImage(ctx context.Context, id int, image string) error
}

type loginService interface {
	Login(ctx context.Context, userID int, createdAt time.Time) (string, error)
	Logout(ctx context.Context, token string) (bool, error)
}

type blogsLister interface {
	ListForOwner(ctx context.Context, ownerID int, includeUnpublished bool, page, size int) (*content.ListResult, error)
}

type Handler struct {
	repo         usersRepo
	loginService loginService
	blogs        blogsLister
	store        storage.ObjectStore
	metrics      *metrics.Manager
}

func NewHandler(
	repo usersRepo,
	loginService loginService,
	blogs blogsLister,
	store storage.ObjectStore,
	metricsManager *metrics.Manager,
) *Handler {
	return &Handler{
		repo:         repo,
		loginService: loginService,
		blogs:        blogs,
		store:        store,
		metrics:      metricsManager,
	}
}

func (handler *Handler) SetupRoutes(
	router *mux.Router,
	rateLimiter middleware.RequestRateLimiter,
	loginAllowedPerMin int,
) {
	router.HandleFunc("/signup", handler.handleSignup).Methods("POST", "OPTIONS").Name("signup")
	router.HandleFunc("/logout", handler.handleLogout).Methods("GET", "OPTIONS").Name("logout")
	router.HandleFunc("/profile/{id:[0-9]+}", handler.handleGetProfile).Methods("GET").Name("profile")
	router.HandleFunc("/profile", handler.handleUpdateProfile).Methods("PUT", "OPTIONS").Name("update-profile")
	router.HandleFunc("/profile/image", handler.handleUploadImage).Methods("POST", "OPTIONS").Name("upload-profile-image")
	router.HandleFunc("/password", handler.handleChangePassword).Methods("PUT", "OPTIONS").Name("change-password")

	loginRouter := router.PathPrefix("/login").Subrouter()
	loginRouter.HandleFunc("", handler.handleLogin).Methods("POST", "OPTIONS").Name("login")
	if rateLimiter != nil {
		loginRouter.Use(middleware.RateLimit(rateLimiter, "login", loginAllowedPerMin, handler.metrics))
	}
}

func (handler *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	var signupReq signupRequest
	if r.Header.Get("Content-Type") == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&signupReq); err != nil {
			log.Errorf("signup, unmarshal json params: %s", err)
			http.Error(w, "signup failed", http.StatusBadRequest)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			log.Errorf("signup failed, parse form error: %s", err)
			http.Error(w, "parse form error", http.StatusInternalServerError)
			return
		}
		signupReq = signupRequest{
			Name:     r.Form.Get("name"),
			Email:    r.Form.Get("email"),
			Password: r.Form.Get("password"),
		}
	}

	fieldErrs := signupSchema.Validate(url.Values{
		"name":     {signupReq.Name},
		"email":    {signupReq.Email},
		"password": {signupReq.Password},
	})
	if fieldErrs != nil {
		pkg.WriteResponseBytes(w, pkg.ContentType.JSON, fieldErrs.JSON(), http.StatusBadRequest)
		return
	}

	passwordHash, err := pkg.HashPassword(signupReq.Password)
	if err != nil {
		log.Errorf("signup, hash password: %s", err)
		http.Error(w, "signup failed", http.StatusInternalServerError)
		return
	}

	user, err := handler.repo.Create(r.Context(), signupReq.Email, signupReq.Name, passwordHash)
	if errors.Is(err, ErrEmailTaken) {
		fieldErrs := validate.FieldErrors{"email": {"a user with this email already exists"}}
		pkg.WriteResponseBytes(w, pkg.ContentType.JSON, fieldErrs.JSON(), http.StatusBadRequest)
		return
	}
	if err != nil {
		log.Errorf("signup, create user: %s", err)
		http.Error(w, "signup failed", http.StatusInternalServerError)
		return
	}

	token, err := handler.loginService.Login(r.Context(), user.ID, time.Now())
	if err != nil {
		log.Errorf("signup, auto login user %d: %s", user.ID, err)
		http.Error(w, "signup failed", http.StatusInternalServerError)
		return
	}

	log.Tracef("new user %d [%s] signed up", user.ID, user.Email)
	handler.metrics.CounterSignups.Inc()

	respJson, err := json.Marshal(sessionResponse{
		Token: token,
		User: profileUser{
			ID:    user.ID,
			Name:  user.Name,
			Image: user.Image,
			Email: user.Email,
		},
	})
	if err != nil {
		log.Errorf("signup, marshal response: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, respJson, http.StatusCreated)
}

func (handler *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var loginReq loginRequest
	if r.Header.Get("Content-Type") == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&loginReq); err != nil {
			log.Errorf("login, unmarshal json params: %s", err)
			http.Error(w, "login failed", http.StatusBadRequest)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			log.Errorf("login failed, parse form error: %s", err)
			http.Error(w, "parse form error", http.StatusInternalServerError)
			return
		}
		loginReq = loginRequest{
			Email:    r.Form.Get("email"),
			Password: r.Form.Get("password"),
		}
	}

	fieldErrs := loginSchema.Validate(url.Values{
		"email":    {loginReq.Email},
		"password": {loginReq.Password},
	})
	if fieldErrs != nil {
		pkg.WriteResponseBytes(w, pkg.ContentType.JSON, fieldErrs.JSON(), http.StatusBadRequest)
		return
	}

	user, err := handler.repo.GetByEmail(r.Context(), loginReq.Email)
	if errors.Is(err, ErrUserNotFound) {
		handler.writeInvalidCredentials(w)
		return
	}
	if err != nil {
		log.Errorf("login, get user: %s", err)
		http.Error(w, "login failed", http.StatusInternalServerError)
		return
	}

	if !pkg.CheckPasswordHash(loginReq.Password, user.PasswordHash) {
		handler.writeInvalidCredentials(w)
		return
	}

	token, err := handler.loginService.Login(r.Context(), user.ID, time.Now())
	if err != nil {
		log.Errorf("login user %d: %s", user.ID, err)
		http.Error(w, "login failed", http.StatusInternalServerError)
		return
	}

	log.Tracef("user %d [%s] logged in", user.ID, user.Email)
	handler.metrics.CounterLogins.Inc()

	respJson, err := json.Marshal(sessionResponse{
		Token: token,
		User: profileUser{
			ID:    user.ID,
			Name:  user.Name,
			Image: user.Image,
			Email: user.Email,
		},
	})
	if err != nil {
		log.Errorf("login, marshal response: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, respJson)
}

func (handler *Handler) writeInvalidCredentials(w http.ResponseWriter) {
	fieldErrs := validate.FieldErrors{"credentials": {"invalid email or password"}}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, fieldErrs.JSON(), http.StatusBadRequest)
}

func (handler *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("X-PUBLOG-TOKEN")
	if token == "" {
		http.Error(w, "no token provided", http.StatusBadRequest)
		return
	}

	if _, err := handler.loginService.Logout(r.Context(), token); err != nil {
		// an unknown token is as good as a logged out one
		log.Tracef("logout, session not removed: %s", err)
	}

	pkg.WriteTextResponseOK(w, "logged-out")
}

func (handler *Handler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "error, id NaN", http.StatusBadRequest)
		return
	}

	page := 1
	if pageStr := r.URL.Query().Get("page"); pageStr != "" {
		page, err = strconv.Atoi(pageStr)
		if err != nil || page < 1 {
			http.Error(w, "invalid page (has to be a positive number)", http.StatusBadRequest)
			return
		}
	}

	user, err := handler.repo.GetByID(r.Context(), id)
	if errors.Is(err, ErrUserNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Errorf("get profile %d: %s", id, err)
		http.Error(w, "failed to get profile", http.StatusInternalServerError)
		return
	}

	viewerID := auth.UserIDFromContext(r.Context())
	isOwner := viewerID == user.ID

	// the owner additionally sees their own drafts
	blogs, err := handler.blogs.ListForOwner(r.Context(), user.ID, isOwner, page, content.DefaultPageSize)
	if err != nil {
		log.Errorf("get profile %d blogs: %s", id, err)
		http.Error(w, "failed to get profile", http.StatusInternalServerError)
		return
	}

	resp := profileResponse{
		User: profileUser{
			ID:    user.ID,
			Name:  user.Name,
			Image: user.Image,
			Bio:   user.Bio,
		},
		Blogs: blogs,
	}
	if isOwner {
		resp.User.Email = user.Email
	}

	respJson, err := json.Marshal(resp)
	if err != nil {
		log.Errorf("marshal profile %d: %s", id, err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, respJson)
}

func (handler *Handler) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	if userID == 0 {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	var updateReq updateProfileRequest
	if r.Header.Get("Content-Type") == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&updateReq); err != nil {
			log.Errorf("update profile, unmarshal json params: %s", err)
			http.Error(w, "update profile failed", http.StatusBadRequest)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			log.Errorf("update profile failed, parse form error: %s", err)
			http.Error(w, "parse form error", http.StatusInternalServerError)
			return
		}
		updateReq = updateProfileRequest{
			Name: r.Form.Get("name"),
			Bio:  r.Form.Get("bio"),
		}
	}

	fieldErrs := profileSchema.Validate(url.Values{
		"name": {updateReq.Name},
		"bio":  {updateReq.Bio},
	})
	if fieldErrs != nil {
		pkg.WriteResponseBytes(w, pkg.ContentType.JSON, fieldErrs.JSON(), http.StatusBadRequest)
		return
	}

	if err := handler.repo.UpdateProfile(r.Context(), userID, updateReq.Name, updateReq.Bio); err != nil {
		log.Errorf("update profile %d: %s", userID, err)
		http.Error(w, "update profile failed", http.StatusInternalServerError)
		return
	}

	pkg.WriteTextResponseOK(w, "updated")
}

func (handler *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	if userID == 0 {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	var changeReq changePasswordRequest
	if r.Header.Get("Content-Type") == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&changeReq); err != nil {
			log.Errorf("change password, unmarshal json params: %s", err)
			http.Error(w, "change password failed", http.StatusBadRequest)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			log.Errorf("change password failed, parse form error: %s", err)
			http.Error(w, "parse form error", http.StatusInternalServerError)
			return
		}
		changeReq = changePasswordRequest{
			CurrentPassword: r.Form.Get("current_password"),
			NewPassword:     r.Form.Get("new_password"),
		}
	}

	fieldErrs := passwordChangeSchema.Validate(url.Values{
		"current_password": {changeReq.CurrentPassword},
		"new_password":     {changeReq.NewPassword},
	})
	if fieldErrs != nil {
		pkg.WriteResponseBytes(w, pkg.ContentType.JSON, fieldErrs.JSON(), http.StatusBadRequest)
		return
	}

	user, err := handler.repo.GetByID(r.Context(), userID)
	if err != nil {
		log.Errorf("change password, get user %d: %s", userID, err)
		http.Error(w, "change password failed", http.StatusInternalServerError)
		return
	}

	if !pkg.CheckPasswordHash(changeReq.CurrentPassword, user.PasswordHash) {
		fieldErrs := validate.FieldErrors{"current_password": {"wrong password"}}
		pkg.WriteResponseBytes(w, pkg.ContentType.JSON, fieldErrs.JSON(), http.StatusBadRequest)
		return
	}

	newHash, err := pkg.HashPassword(changeReq.NewPassword)
	if err != nil {
		log.Errorf("change password, hash: %s", err)
		http.Error(w, "change password failed", http.StatusInternalServerError)
		return
	}

	if err := handler.repo.UpdatePassword(r.Context(), userID, newHash); err != nil {
		log.Errorf("change password, update user %d: %s", userID, err)
		http.Error(w, "change password failed", http.StatusInternalServerError)
		return
	}

	pkg.WriteTextResponseOK(w, "updated")
}

func (handler *Handler) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	if userID == 0 {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	if err := r.ParseMultipartForm(maxImageUploadBytes); err != nil {
		log.Errorf("upload profile image, parse multipart form: %s", err)
		http.Error(w, "invalid upload", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		log.Errorf("upload profile image, form file: %s", err)
		http.Error(w, "image file missing", http.StatusBadRequest)
		return
	}
	defer func() { _ = file.Close() }()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedImageExtensions[ext] {
		http.Error(w, "unsupported image type", http.StatusBadRequest)
		return
	}

	// random suffix so a new upload gets a new URL (no stale CDN caches)
	key := fmt.Sprintf("profile/%d/%s%s", userID, uuid.NewString(), ext)
	imageURL, err := handler.store.Put(r.Context(), key, header.Header.Get("Content-Type"), file)
	if err != nil {
		log.Errorf("upload profile image %d: %s", userID, err)
		http.Error(w, "upload failed", http.StatusInternalServerError)
		return
	}

	if err := handler.repo.UpdateImage(r.Context(), userID, imageURL); err != nil {
		log.Errorf("upload profile image, update user %d: %s", userID, err)
		http.Error(w, "upload failed", http.StatusInternalServerError)
		return
	}

	respJson, err := json.Marshal(map[string]string{"image": imageURL})
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, respJson)
}
