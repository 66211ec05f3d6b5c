package httpserver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	appanalyses "github.com/stillwater-app/stillwater/internal/application/analyses"
	appjournal "github.com/stillwater-app/stillwater/internal/application/journal"
	domanalyses "github.com/stillwater-app/stillwater/internal/domain/analyses"
	domjournal "github.com/stillwater-app/stillwater/internal/domain/journal"
	"github.com/stillwater-app/stillwater/internal/middleware"
)

type Router struct {
	journalSvc  *appjournal.Service
	analysesSvc *appanalyses.Service
}

func NewRouter(journalSvc *appjournal.Service, analysesSvc *appanalyses.Service) http.Handler {
	rt := &Router{journalSvc: journalSvc, analysesSvc: analysesSvc}
	mux := chi.NewRouter()

	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"https://*", "http://*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	mux.Route("/v1", func(v1 chi.Router) {
		v1.Post("/users", rt.wrap(rt.handleCreateUser))
		v1.Get("/users/{userID}", rt.wrap(rt.handleGetUser))
		v1.Get("/questions/today", rt.wrap(rt.handleTodaysQuestion))

		v1.Post("/users/{userID}/drops", rt.wrap(rt.handleCreateDrop))
		v1.Get("/users/{userID}/drops", rt.wrap(rt.handleListDrops))
		v1.Post("/drops/{dropID}/messages", rt.wrap(rt.handleAddMessage))
		v1.Get("/drops/{dropID}/messages", rt.wrap(rt.handleTranscript))

		v1.Get("/users/{userID}/analyses/eligibility", rt.wrap(rt.handleEligibility))
		v1.Get("/users/{userID}/analyses/preview", rt.wrap(rt.handlePreview))
		v1.Post("/users/{userID}/analyses", rt.wrap(rt.handleCreateAnalysis))
		v1.Get("/users/{userID}/analyses", rt.wrap(rt.handleListAnalyses))
		v1.Get("/analyses/{id}", rt.wrap(rt.handleGetAnalysis))
		v1.Post("/analyses/{id}/favorite", rt.wrap(rt.handleFavorite))
		v1.Get("/analyses/{id}/drops", rt.wrap(rt.handleAnalysisDrops))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (rt *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			http.Error(w, err.Error(), statusFor(err))
		}
	}
}

// statusFor maps the error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	var exhausted *domanalyses.RetriesExhaustedError
	switch {
	case errors.Is(err, domjournal.ErrUserNotFound),
		errors.Is(err, domjournal.ErrDropNotFound),
		errors.Is(err, domjournal.ErrQuestionNotFound),
		errors.Is(err, domanalyses.ErrAnalysisNotFound),
		errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound
	case errors.Is(err, domanalyses.ErrInsufficientData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domjournal.ErrExchangeLimit),
		errors.Is(err, domanalyses.ErrAnalysisInProgress):
		return http.StatusConflict
	case errors.Is(err, domanalyses.ErrMissingAPIKey),
		errors.Is(err, domanalyses.ErrProviderAuth),
		errors.As(err, &exhausted),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	case errors.Is(err, domanalyses.ErrEmptyResponse),
		domanalyses.IsParseFailure(err):
		return http.StatusBadGateway
	case errors.Is(err, domanalyses.ErrStorage):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// POST /v1/users
func (rt *Router) handleCreateUser(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return err
	}
	if err := middleware.ValidateEmail(body.Email); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil
	}

	u, err := rt.journalSvc.CreateUser(req.Context(), body.Email, middleware.SanitizeString(body.Name))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, u)
}

// GET /v1/users/{userID}
func (rt *Router) handleGetUser(w http.ResponseWriter, req *http.Request) error {
	userID, err := middleware.ParseID(chi.URLParam(req, "userID"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil
	}
	u, err := rt.journalSvc.GetUser(req.Context(), userID)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, u)
}

// GET /v1/questions/today
func (rt *Router) handleTodaysQuestion(w http.ResponseWriter, req *http.Request) error {
	q, err := rt.journalSvc.TodaysQuestion(req.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, q)
}

// POST /v1/users/{userID}/drops
func (rt *Router) handleCreateDrop(w http.ResponseWriter, req *http.Request) error {
	userID, err := middleware.ParseID(chi.URLParam(req, "userID"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil
	}
	var body struct {
		QuestionID int64  `json:"question_id"`
		Text       string `json:"text"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return err
	}
	if err := middleware.ValidateText(body.Text); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil
	}

	d, err := rt.journalSvc.CreateDrop(req.Context(), userID, body.QuestionID, middleware.SanitizeString(body.Text))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, d)
}

// GET /v1/users/{userID}/drops?limit=20
func (rt *Router) handleListDrops(w http.ResponseWriter, req *http.Request) error {
	userID, err := middleware.ParseID(chi.URLParam(req, "userID"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil
	}
	_, limit := middleware.ParsePagination("", req.URL.Query().Get("limit"))

	list, err := rt.journalSvc.ListDrops(req.Context(), userID, limit)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

// POST /v1/drops/{dropID}/messages
func (rt *Router) handleAddMessage(w http.ResponseWriter, req *http.Request) error {
	dropID, err := middleware.ParseID(chi.URLParam(req, "dropID"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil
	}
	var body struct {
		Text     string `json:"text"`
		FromUser bool   `json:"from_user"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return err
	}
	if err := middleware.ValidateText(body.Text); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil
	}

	m, err := rt.journalSvc.AddMessage(req.Context(), dropID, middleware.SanitizeString(body.Text), body.FromUser)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, m)
}

// GET /v1/drops/{dropID}/messages
func (rt *Router) handleTranscript(w http.ResponseWriter, req *http.Request) error {
	dropID, err := middleware.ParseID(chi.URLParam(req, "dropID"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil
	}
	msgs, err := rt.journalSvc.Transcript(req.Context(), dropID)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, msgs)
}

// GET /v1/users/{userID}/analyses/eligibility
func (rt *Router) handleEligibility(w http.ResponseWriter, req *http.Request) error {
	userID, err := middleware.ParseID(chi.URLParam(req, "userID"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil
	}
	elig, err := rt.analysesSvc.Eligibility(req.Context(), userID)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, elig)
}

// GET /v1/users/{userID}/analyses/preview
func (rt *Router) handlePreview(w http.ResponseWriter, req *http.Request) error {
	userID, err := middleware.ParseID(chi.URLParam(req, "userID"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil
	}
	p, err := rt.analysesSvc.Preview(req.Context(), userID)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, p)
}

// POST /v1/users/{userID}/analyses
// Runs the pipeline synchronously and always answers with the result shape;
// the status code carries the failure class.
func (rt *Router) handleCreateAnalysis(w http.ResponseWriter, req *http.Request) error {
	userID, err := middleware.ParseID(chi.URLParam(req, "userID"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil
	}

	middleware.IncrementAnalyses()
	middleware.IncrementAnalysesRunning()
	defer middleware.DecrementAnalysesRunning()

	res, runErr := rt.analysesSvc.CreateForUser(req.Context(), userID)
	if runErr != nil {
		middleware.IncrementAnalysesFailed()
		return writeJSON(w, statusFor(runErr), res)
	}
	return writeJSON(w, http.StatusCreated, res)
}

// GET /v1/users/{userID}/analyses?page=&page_size=
func (rt *Router) handleListAnalyses(w http.ResponseWriter, req *http.Request) error {
	userID, err := middleware.ParseID(chi.URLParam(req, "userID"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil
	}
	page, size := middleware.ParsePagination(req.URL.Query().Get("page"), req.URL.Query().Get("page_size"))

	list, err := rt.analysesSvc.List(req.Context(), userID, page, size)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

// GET /v1/analyses/{id}
func (rt *Router) handleGetAnalysis(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateAnalysisID(id); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil
	}
	a, err := rt.analysesSvc.Get(req.Context(), domanalyses.AnalysisID(id))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, a)
}

// POST /v1/analyses/{id}/favorite
func (rt *Router) handleFavorite(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateAnalysisID(id); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil
	}
	var body struct {
		Favorited bool `json:"favorited"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return err
	}

	a, err := rt.analysesSvc.SetFavorite(req.Context(), domanalyses.AnalysisID(id), body.Favorited)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, a)
}

// GET /v1/analyses/{id}/drops
func (rt *Router) handleAnalysisDrops(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateAnalysisID(id); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil
	}
	drops, err := rt.analysesSvc.AnalysisDrops(req.Context(), domanalyses.AnalysisID(id))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, drops)
}
