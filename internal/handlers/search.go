package handlers

import (
	"net/http"

	"gallery-index/internal/search"
)

// searchQuery holds the query parameters of Search. year and month may be
// repeated or comma separated.
type searchQuery struct {
	Q               string   `schema:"q"`
	StartDate       string   `schema:"startDate"`
	EndDate         string   `schema:"endDate"`
	Year            []string `schema:"year"`
	Month           []string `schema:"month"`
	Orientation     string   `schema:"orientation"`
	CollectionsOnly bool     `schema:"collectionsOnly"`
	Page            int      `schema:"page"`
	Limit           int      `schema:"limit"`
}

// Search finds images, or whole galleries with collectionsOnly, across all
// galleries.
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	var q searchQuery
	if err := h.decodeQuery(&q, r); err != nil {
		writeError(w, r, err, "Failed to search images")
		return
	}

	result, err := h.galleries.Search(r.Context(), search.Params{
		Query:           q.Q,
		StartDate:       q.StartDate,
		EndDate:         q.EndDate,
		Years:           q.Year,
		Months:          q.Month,
		Orientation:     q.Orientation,
		CollectionsOnly: q.CollectionsOnly,
		Page:            q.Page,
		PageSize:        q.Limit,
	})
	if err != nil {
		writeError(w, r, err, "Failed to search images")
		return
	}
	writeJSONOK(w, result)
}
