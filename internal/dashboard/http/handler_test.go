package dashboardhttp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/finboard/finboard/internal/dashboard"
	"github.com/finboard/finboard/internal/indicator"
	"github.com/finboard/finboard/internal/ledger"
	"github.com/finboard/finboard/internal/period"
)

type stubService struct {
	result dashboard.Result
	err    error
	last   dashboard.Request
	calls  int
}

func (s *stubService) Compute(ctx context.Context, req dashboard.Request) (dashboard.Result, error) {
	s.calls++
	s.last = req
	return s.result, s.err
}

func newRouter(svc Service) http.Handler {
	h := NewHandler(nil, svc, time.Second)
	h.WithNow(func() time.Time { return time.Date(2024, time.August, 15, 0, 0, 0, 0, time.UTC) })
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func TestDashboardDefaultsToCurrentMonth(t *testing.T) {
	cardID := uuid.New()
	svc := &stubService{result: dashboard.Result{
		Surface: dashboard.SurfaceDashboard,
		Cards: map[uuid.UUID]dashboard.CardValue{
			cardID: {Value: decimal.RequireFromString("1250.50"), DataKind: ledger.DataCurrency},
		},
	}}
	company := uuid.New()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/companies/"+company.String()+"/dashboard", nil)
	newRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if svc.last.CompanyID != company {
		t.Fatalf("unexpected company %s", svc.last.CompanyID)
	}
	if svc.last.Period != (period.Period{Month: 8, Year: 2024}) {
		t.Fatalf("unexpected period %+v", svc.last.Period)
	}
	if svc.last.WindowLength != period.LongWindow || svc.last.Surface != dashboard.SurfaceDashboard {
		t.Fatalf("unexpected defaults %+v", svc.last)
	}

	var body struct {
		Cards map[string]struct {
			Value json.Number `json:"value"`
		} `json:"cards"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := body.Cards[cardID.String()]; !ok {
		t.Fatalf("card %s missing from response", cardID)
	}
}

func TestDashboardParsesQuery(t *testing.T) {
	svc := &stubService{}
	rr := httptest.NewRecorder()
	url := fmt.Sprintf("/companies/%s/dashboard?surface=vendas&month=2&year=2023&window=6M&limit=5", uuid.New())
	newRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, url, nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	want := dashboard.Request{
		CompanyID:    svc.last.CompanyID,
		Surface:      dashboard.SurfaceSales,
		Period:       period.Period{Month: 2, Year: 2023},
		WindowLength: period.ShortWindow,
		ListLimit:    5,
	}
	if svc.last != want {
		t.Fatalf("unexpected request %+v", svc.last)
	}
}

func TestDashboardRejectsBadInput(t *testing.T) {
	company := uuid.New().String()
	cases := []string{
		"/companies/not-a-uuid/dashboard",
		"/companies/" + company + "/dashboard?month=13",
		"/companies/" + company + "/dashboard?year=abc",
		"/companies/" + company + "/dashboard?window=12M",
		"/companies/" + company + "/dashboard?surface=kanban",
	}
	for _, url := range cases {
		svc := &stubService{}
		rr := httptest.NewRecorder()
		newRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, url, nil))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", url, rr.Code)
		}
		if svc.calls != 0 {
			t.Fatalf("%s: service must not be called", url)
		}
	}
}

func TestDashboardMapsEngineErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{&indicator.CyclicCompositionError{Path: []uuid.UUID{uuid.Nil, uuid.Nil}}, http.StatusUnprocessableEntity},
		{fmt.Errorf("dashboard: fetch: %w", ledger.ErrUpstreamFetch), http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		url := "/companies/" + uuid.New().String() + "/dashboard"
		newRouter(&stubService{err: tc.err}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, url, nil))
		if rr.Code != tc.status {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.status, rr.Code)
		}
	}
}
