package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/andrsadr/koravi/internal/clientlist"
	"github.com/andrsadr/koravi/internal/domain"
	"github.com/andrsadr/koravi/internal/service"
)

// maxBodyBytes caps create and update payloads
const maxBodyBytes = 1 << 20

// ClientHandler serves the /api/clients endpoints
type ClientHandler struct {
	clients *service.ClientService
	logger  *slog.Logger
}

// NewClientHandler creates a new client handler
func NewClientHandler(clients *service.ClientService, logger *slog.Logger) *ClientHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ClientHandler{clients: clients, logger: logger}
}

// Register mounts the client routes on mux
func (h *ClientHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/clients", h.List)
	mux.HandleFunc("GET /api/clients/view", h.View)
	mux.HandleFunc("GET /api/clients/search", h.Search)
	mux.HandleFunc("GET /api/clients/stats", h.Stats)
	mux.HandleFunc("GET /api/clients/{id}", h.Get)
	mux.HandleFunc("POST /api/clients", h.Create)
	mux.HandleFunc("PATCH /api/clients/{id}", h.Update)
	mux.HandleFunc("DELETE /api/clients/{id}", h.Delete)
}

// ViewResponse is the derived client table
type ViewResponse struct {
	Clients         []*domain.Client `json:"clients"`
	Count           int              `json:"count"`
	Total           int              `json:"total"`
	Searching       bool             `json:"searching"`
	AvailableLabels []string         `json:"available_labels"`
	Sort            string           `json:"sort,omitempty"`
	Direction       string           `json:"dir,omitempty"`
}

// List handles GET /api/clients
func (h *ClientHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r)
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}

	clients, err := h.clients.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, h.logger, "list clients", err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, clients)
}

// View handles GET /api/clients/view: the full collection filtered,
// searched and sorted in memory.
func (h *ClientHandler) View(w http.ResponseWriter, r *http.Request) {
	view, err := parseView(r)
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}

	all, err := h.clients.List(r.Context(), domain.ListFilter{})
	if err != nil {
		writeServiceError(w, h.logger, "list clients", err)
		return
	}

	rows := clientlist.Derive(all, view)
	writeJSON(w, h.logger, http.StatusOK, ViewResponse{
		Clients:         rows,
		Count:           len(rows),
		Total:           len(all),
		Searching:       view.Searching(),
		AvailableLabels: clientlist.AvailableLabels(all),
		Sort:            string(view.Sort.Column),
		Direction:       view.Sort.Direction.String(),
	})
}

// Search handles GET /api/clients/search
func (h *ClientHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := parseNonNegative(q.Get("limit"), "limit")
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}

	clients, err := h.clients.Search(r.Context(), q.Get("q"), limit)
	if err != nil {
		writeServiceError(w, h.logger, "search clients", err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, clients)
}

// Stats handles GET /api/clients/stats
func (h *ClientHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.clients.Stats(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "client stats", err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, stats)
}

// Get handles GET /api/clients/{id}
func (h *ClientHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !validID(id) {
		writeError(w, h.logger, http.StatusNotFound, "client not found")
		return
	}

	c, err := h.clients.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, "get client", err)
		return
	}
	if c == nil {
		writeError(w, h.logger, http.StatusNotFound, "client not found")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, c)
}

// Create handles POST /api/clients
func (h *ClientHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.NewClient
	if err := decodeBody(w, r, &req); err != nil {
		h.logger.Warn("failed to decode request", slog.String("error", err.Error()))
		writeError(w, h.logger, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	c, err := h.clients.Create(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.logger, "create client", err)
		return
	}
	w.Header().Set("Location", "/api/clients/"+c.ID)
	writeJSON(w, h.logger, http.StatusCreated, c)
}

// Update handles PATCH /api/clients/{id}. Absent fields are left alone and
// an explicit null clears a nullable field.
func (h *ClientHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !validID(id) {
		writeError(w, h.logger, http.StatusNotFound, "client not found")
		return
	}

	var req domain.ClientUpdate
	if err := decodeBody(w, r, &req); err != nil {
		h.logger.Warn("failed to decode request", slog.String("error", err.Error()))
		writeError(w, h.logger, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	c, err := h.clients.Update(r.Context(), id, req)
	if err != nil {
		writeServiceError(w, h.logger, "update client", err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, c)
}

// Delete handles DELETE /api/clients/{id}; unknown ids succeed
func (h *ClientHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !validID(id) {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := h.clients.Delete(r.Context(), id); err != nil {
		writeServiceError(w, h.logger, "delete client", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func parseListFilter(r *http.Request) (domain.ListFilter, error) {
	q := r.URL.Query()
	filter := domain.ListFilter{
		Search: strings.TrimSpace(q.Get("search")),
		Labels: splitCSV(q.Get("labels")),
	}

	if s := q.Get("status"); s != "" {
		st, err := domain.ParseStatus(s)
		if err != nil {
			return filter, err
		}
		filter.Status = st
	}

	var err error
	if filter.Limit, err = parseNonNegative(q.Get("limit"), "limit"); err != nil {
		return filter, err
	}
	if filter.Offset, err = parseNonNegative(q.Get("offset"), "offset"); err != nil {
		return filter, err
	}
	return filter, nil
}

func parseView(r *http.Request) (clientlist.View, error) {
	q := r.URL.Query()
	view := clientlist.NewView()
	view.Query = q.Get("q")

	if q.Has("status") {
		var statuses []domain.Status
		for _, s := range splitCSV(q.Get("status")) {
			st, err := domain.ParseStatus(s)
			if err != nil {
				return view, err
			}
			statuses = append(statuses, st)
		}
		view.SetStatuses(statuses...)
	}
	view.SetLabels(splitCSV(q.Get("labels"))...)

	if s := q.Get("sort"); s != "" {
		col, ok := clientlist.ParseColumn(s)
		if !ok {
			return view, fmt.Errorf("unknown sort column %q", s)
		}
		dir := clientlist.ParseDirection(q.Get("dir"))
		if !q.Has("dir") {
			dir = clientlist.Ascending
		}
		view.Sort = clientlist.Sort{Column: col, Direction: dir}
	}
	return view, nil
}

func parseNonNegative(v, name string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
