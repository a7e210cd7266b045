package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/andrsadr/koravi/internal/domain"
	"github.com/andrsadr/koravi/internal/reliability/retry"
	"github.com/andrsadr/koravi/internal/repository"
	"github.com/andrsadr/koravi/internal/service"
	"github.com/andrsadr/koravi/pkg/cache"
)

type apiFixture struct {
	mux  *http.ServeMux
	repo *repository.MemoryClientRepository
	svc  *service.ClientService
	now  time.Time
}

func newAPI(t *testing.T) *apiFixture {
	t.Helper()
	f := &apiFixture{now: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return f.now }
	f.repo = repository.NewMemoryClientRepository(clock)

	cfg := retry.DefaultConfig()
	cfg.Sleep = func(context.Context, time.Duration) error { return nil }
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.svc = service.NewClientService(f.repo, cache.New(cache.Options{Now: clock}), cfg, logger, service.WithClock(clock))

	f.mux = http.NewServeMux()
	NewClientHandler(f.svc, logger).Register(f.mux)
	return f
}

func (f *apiFixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestClientCRUDOverHTTP(t *testing.T) {
	f := newAPI(t)

	rec := f.do(t, http.MethodPost, "/api/clients",
		`{"first_name":"Jane","last_name":"Smith","email":"jane@x.com","status":"active"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[domain.Client](t, rec)
	require.Equal(t, "/api/clients/"+created.ID, rec.Header().Get("Location"))
	require.Equal(t, []string{}, created.Labels)
	require.Equal(t, domain.DefaultCountry, created.Country)

	rec = f.do(t, http.MethodGet, "/api/clients/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "jane@x.com", *decode[domain.Client](t, rec).Email)

	f.now = f.now.Add(time.Minute)
	rec = f.do(t, http.MethodPatch, "/api/clients/"+created.ID, `{"first_name":"Janet","email":null}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[domain.Client](t, rec)
	require.Equal(t, "Janet", updated.FirstName)
	require.Nil(t, updated.Email)
	require.Equal(t, "Smith", updated.LastName)
	require.True(t, updated.UpdatedAt.After(updated.CreatedAt))

	rec = f.do(t, http.MethodDelete, "/api/clients/"+created.ID, "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(t, http.MethodDelete, "/api/clients/"+created.ID, "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/clients/"+created.ID, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInvalidIDs(t *testing.T) {
	f := newAPI(t)
	require.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/clients/not-a-uuid", "").Code)
	require.Equal(t, http.StatusNotFound, f.do(t, http.MethodPatch, "/api/clients/not-a-uuid", `{"first_name":"X"}`).Code)
	require.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/api/clients/not-a-uuid", "").Code)
	require.Zero(t, f.repo.Calls("get"))
	require.Zero(t, f.repo.Calls("delete"))
}

func TestUpperCaseIDSeesDelete(t *testing.T) {
	f := newAPI(t)
	rec := f.do(t, http.MethodPost, "/api/clients", `{"first_name":"Jane","last_name":"Smith"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[domain.Client](t, rec)
	upper := "/api/clients/" + strings.ToUpper(created.ID)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, upper, "").Code)
	require.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/api/clients/"+created.ID, "").Code)
	require.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, upper, "").Code)
}

func TestUpdateRejectsNullForRequiredFields(t *testing.T) {
	f := newAPI(t)
	rec := f.do(t, http.MethodPost, "/api/clients", `{"first_name":"Jane","last_name":"Smith","total_visits":3}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[domain.Client](t, rec)

	rec = f.do(t, http.MethodPatch, "/api/clients/"+created.ID, `{"total_visits":null}`)
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	require.Zero(t, f.repo.Calls("update"))

	rec = f.do(t, http.MethodGet, "/api/clients/"+created.ID, "")
	require.Equal(t, 3, decode[domain.Client](t, rec).TotalVisits)
}

func TestUpdateUnknownClient(t *testing.T) {
	f := newAPI(t)
	rec := f.do(t, http.MethodPatch, "/api/clients/9b2f3a52-4b1e-4c1e-9d55-0d6f1f0a8c11", `{"first_name":"X"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, domain.CodeNotFound, decode[ErrorResponse](t, rec).Code)
}

func TestCreateRejectsBadInput(t *testing.T) {
	f := newAPI(t)

	rec := f.do(t, http.MethodPost, "/api/clients", `{"first_name":"Jane"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/clients", `{"first_name":"Jane","last_name":"Smith","favourite":"tea"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/clients", `{"first_name":"Jane","last_name":"Smith","status":"vip"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	require.Zero(t, f.repo.Calls("create"))
}

func TestListQueryValidation(t *testing.T) {
	f := newAPI(t)
	require.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/clients?status=gone", "").Code)
	require.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/clients?limit=-1", "").Code)
	require.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/clients?offset=abc", "").Code)

	rec := f.do(t, http.MethodGet, "/api/clients?status=active&labels=VIP,%20Regular&limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "[]\n", rec.Body.String())
}

func TestSearchAndStats(t *testing.T) {
	f := newAPI(t)
	f.do(t, http.MethodPost, "/api/clients", `{"first_name":"Sarah","last_name":"Johnson","status":"inactive"}`)
	f.do(t, http.MethodPost, "/api/clients", `{"first_name":"Michael","last_name":"Chen"}`)

	rec := f.do(t, http.MethodGet, "/api/clients/search?q=", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "[]\n", rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/clients/search?q=chen&limit=5", "")
	hits := decode[[]domain.Client](t, rec)
	require.Len(t, hits, 1)
	require.Equal(t, "Michael", hits[0].FirstName)

	rec = f.do(t, http.MethodGet, "/api/clients/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, domain.Stats{Total: 2, Active: 1, Inactive: 1}, decode[domain.Stats](t, rec))
}

func TestViewEndpoint(t *testing.T) {
	f := newAPI(t)
	f.do(t, http.MethodPost, "/api/clients", `{"first_name":"Sarah","last_name":"Johnson","labels":["VIP"]}`)
	f.now = f.now.Add(time.Second)
	f.do(t, http.MethodPost, "/api/clients", `{"first_name":"Michael","last_name":"Chen","status":"inactive","labels":["Regular","VIP"]}`)

	view := decode[ViewResponse](t, f.do(t, http.MethodGet, "/api/clients/view?q=S", ""))
	require.Equal(t, 2, view.Count)
	require.False(t, view.Searching)
	require.Equal(t, []string{"Regular", "VIP"}, view.AvailableLabels)

	view = decode[ViewResponse](t, f.do(t, http.MethodGet, "/api/clients/view?q=Sa", ""))
	require.Equal(t, 1, view.Count)
	require.True(t, view.Searching)
	require.Equal(t, "Sarah", view.Clients[0].FirstName)

	view = decode[ViewResponse](t, f.do(t, http.MethodGet, "/api/clients/view?status=", ""))
	require.Zero(t, view.Count)
	require.Equal(t, 2, view.Total)

	view = decode[ViewResponse](t, f.do(t, http.MethodGet, "/api/clients/view?sort=client_name", ""))
	require.Equal(t, "Michael", view.Clients[0].FirstName)
	require.Equal(t, "asc", view.Direction)

	view = decode[ViewResponse](t, f.do(t, http.MethodGet, "/api/clients/view?sort=client_name&dir=desc&labels=VIP", ""))
	require.Equal(t, "Sarah", view.Clients[0].FirstName)

	require.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/clients/view?sort=password", "").Code)
	require.Equal(t, 1, f.repo.Calls("list"))
}

func TestBackendErrorsMapToStatus(t *testing.T) {
	f := newAPI(t)

	f.repo.Fail = func(op string) error {
		return &domain.DataError{Op: op, Message: "duplicate key value", Code: "23505"}
	}
	rec := f.do(t, http.MethodPost, "/api/clients", `{"first_name":"Jane","last_name":"Smith"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "duplicate key value", decode[ErrorResponse](t, rec).Error)

	f.repo.Fail = func(op string) error {
		return &domain.DataError{Op: op, Message: "connection refused", Code: domain.CodeBackendUnavailable, Retryable: true}
	}
	rec = f.do(t, http.MethodGet, "/api/clients/stats", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	require.True(t, resp.Retryable)
	require.Equal(t, domain.CodeBackendUnavailable, resp.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", domain.NotFoundError("get client", "x"), http.StatusNotFound},
		{"invalid", domain.ErrInvalidInput, http.StatusBadRequest},
		{"unique", &domain.DataError{Code: "23505"}, http.StatusConflict},
		{"retryable", &domain.DataError{Code: "08006", Retryable: true}, http.StatusServiceUnavailable},
		{"terminal", &domain.DataError{Code: "23514"}, http.StatusUnprocessableEntity},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
