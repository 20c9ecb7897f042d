package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/markdave123-py/Examina/internal/core"
	"github.com/markdave123-py/Examina/internal/models"
	"github.com/markdave123-py/Examina/internal/search"
)

type SearchHandler struct {
	searcher *search.Searcher
	log      zerolog.Logger
}

func NewSearchHandler(searcher *search.Searcher, log zerolog.Logger) *SearchHandler {
	return &SearchHandler{searcher: searcher, log: log}
}

type SearchRequest struct {
	Query  string        `json:"query"`
	TopK   int           `json:"top_k"`
	Filter models.Filter `json:"filter"`
}

type SearchResponse struct {
	Results []models.ScoredResult `json:"results"`
	Context string                `json:"context"`
}

// Search embeds the query, retrieves the closest indexed questions, and
// returns both the raw hits and the formatted context block. Retrieval
// failures degrade to the no-context sentinel instead of a 5xx; only a bad
// request is an error to the caller.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}

	results, err := h.searcher.Search(ctx, req.Query, req.TopK, req.Filter)
	if err != nil {
		h.log.Error().Err(err).Msg("search failed")
		results = nil
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(SearchResponse{
		Results: results,
		Context: h.searcher.FormatContext(results),
	})
}

type QuestionHandler struct {
	store core.QuestionStore
	log   zerolog.Logger
}

func NewQuestionHandler(store core.QuestionStore, log zerolog.Logger) *QuestionHandler {
	return &QuestionHandler{store: store, log: log}
}

// List returns every persisted question in a (year, paper) scope. Year is
// required; paper is optional and widens the listing to the whole year.
func (h *QuestionHandler) List(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil || year == 0 {
		http.Error(w, "year is required", http.StatusBadRequest)
		return
	}

	questions, err := h.store.ListByScope(r.Context(), year, r.URL.Query().Get("paper"))
	if err != nil {
		h.log.Error().Err(err).Int("year", year).Msg("list questions failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if questions == nil {
		questions = []models.QuestionRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"questions": questions})
}

func Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
