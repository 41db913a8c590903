package ledgerhttp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finboard/finboard/internal/ledger"
)

type stubEntries struct {
	recorded  []ledger.Entry
	recordErr error
	deleteErr error
}

func (s *stubEntries) Record(_ context.Context, e ledger.Entry) (ledger.Entry, error) {
	if s.recordErr != nil {
		return ledger.Entry{}, s.recordErr
	}
	e.ID = uuid.New()
	s.recorded = append(s.recorded, e)
	return e, nil
}

func (s *stubEntries) Delete(context.Context, uuid.UUID, uuid.UUID) error {
	return s.deleteErr
}

type stubCache struct {
	calls int
	err   error
}

func (s *stubCache) Invalidate(context.Context) error {
	s.calls++
	return s.err
}

func router(h *Handler) http.Handler {
	r := chi.NewRouter()
	h.MountRoutes(r)
	h.MountAdminRoutes(r)
	return r
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, target, strings.NewReader(body)))
	return rr
}

func TestCreateEntry(t *testing.T) {
	entries := &stubEntries{}
	company := uuid.New()
	category := uuid.New()
	body := fmt.Sprintf(`{"category_id":%q,"month":4,"year":2024,"amount":"125.40","kind":"despesa"}`, category)

	rr := do(router(NewHandler(nil, entries, nil)), http.MethodPost, "/companies/"+company.String()+"/entries", body)

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	require.Len(t, entries.recorded, 1)
	got := entries.recorded[0]
	assert.Equal(t, company, got.CompanyID)
	assert.Equal(t, ledger.CategoryRef(category), got.Subject)
	assert.Equal(t, ledger.KindExpense, got.Kind)
	assert.Equal(t, "125.4", got.Amount.String())
}

func TestCreateEntryRejectsBadInput(t *testing.T) {
	company := uuid.NewString()
	cat, cli := uuid.NewString(), uuid.NewString()
	cases := map[string]string{
		"two subjects":  fmt.Sprintf(`{"category_id":%q,"client_id":%q,"month":4,"year":2024,"amount":1,"kind":"receita"}`, cat, cli),
		"no subject":    `{"month":4,"year":2024,"amount":1,"kind":"receita"}`,
		"bad month":     fmt.Sprintf(`{"category_id":%q,"month":0,"year":2024,"amount":1,"kind":"receita"}`, cat),
		"bad kind":      fmt.Sprintf(`{"category_id":%q,"month":4,"year":2024,"amount":1,"kind":"transfer"}`, cat),
		"unknown field": fmt.Sprintf(`{"category_id":%q,"month":4,"year":2024,"amount":1,"kind":"receita","note":"x"}`, cat),
		"malformed":     `{`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			entries := &stubEntries{}
			rr := do(router(NewHandler(nil, entries, nil)), http.MethodPost, "/companies/"+company+"/entries", body)
			assert.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
			assert.Empty(t, entries.recorded)
		})
	}
}

func TestCreateEntryMapsServiceErrors(t *testing.T) {
	body := fmt.Sprintf(`{"category_id":%q,"month":4,"year":2024,"amount":1,"kind":"receita"}`, uuid.New())
	target := "/companies/" + uuid.NewString() + "/entries"

	rr := do(router(NewHandler(nil, &stubEntries{recordErr: fmt.Errorf("%w: inactive", ledger.ErrInvalidEntry)}, nil)), http.MethodPost, target, body)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(router(NewHandler(nil, &stubEntries{recordErr: fmt.Errorf("x: %w", ledger.ErrUpstreamFetch)}, nil)), http.MethodPost, target, body)
	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestDeleteEntry(t *testing.T) {
	target := "/companies/" + uuid.NewString() + "/entries/" + uuid.NewString()

	rr := do(router(NewHandler(nil, &stubEntries{}, nil)), http.MethodDelete, target, "")
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = do(router(NewHandler(nil, &stubEntries{deleteErr: ledger.ErrEntryNotFound}, nil)), http.MethodDelete, target, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestInvalidateReferenceCache(t *testing.T) {
	rr := do(router(NewHandler(nil, &stubEntries{}, nil)), http.MethodPost, "/admin/reference-cache/invalidate", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	cache := &stubCache{}
	rr = do(router(NewHandler(nil, &stubEntries{}, cache)), http.MethodPost, "/admin/reference-cache/invalidate", "")
	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, 1, cache.calls)

	cache.err = errors.New("redis down")
	rr = do(router(NewHandler(nil, &stubEntries{}, cache)), http.MethodPost, "/admin/reference-cache/invalidate", "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
