package livehttp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sigil/internal/exit"
	"sigil/internal/facts"
	"sigil/internal/guard"
	"sigil/internal/market"
	"sigil/internal/metrics"
	"sigil/internal/profile"
	"sigil/internal/store"
	"sigil/internal/store/journal"
)

type liveFixture struct {
	srv     *Server
	store   *store.Store
	journal *journal.Journal
	book    *exit.Book
	rec     *metrics.Recorder
}

func newLiveFixture(t *testing.T) *liveFixture {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "decisions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	jn, err := journal.Open(filepath.Join(dir, "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = jn.Close() })

	reg, err := profile.NewStatic(profile.Default())
	require.NoError(t, err)

	factStore := facts.NewStore()
	classifier := facts.NewClassifier(reg)
	book := exit.NewBook()

	promReg := prometheus.NewRegistry()
	rec := metrics.New(promReg)

	router := NewRouter(st, jn, factStore, classifier, reg, book)
	srv, err := NewServer(ServerConfig{Addr: ":0", Router: router, Metrics: promReg})
	require.NoError(t, err)
	return &liveFixture{srv: srv, store: st, journal: jn, book: book, rec: rec}
}

func (f *liveFixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	return w
}

func sampleEvaluation(id string, allowed bool, at time.Time) guard.Result {
	res := guard.Result{
		ID:              id,
		Token:           7001,
		Symbol:          "ALPHA",
		Direction:       market.DirectionRunner,
		Zone:            market.ZoneStrong,
		Score:           78,
		Allowed:         allowed,
		ConfidenceScore: 84,
		EvaluatedAt:     at,
	}
	if !allowed {
		res.BlockReasons = []string{"PANIC_STATE"}
		res.ConfidenceScore = 0
	}
	return res
}

func TestHealthz(t *testing.T) {
	f := newLiveFixture(t)
	w := f.get(t, "/healthz")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestDecisionsListAndDetail(t *testing.T) {
	f := newLiveFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 2, 3, 11, 0, 0, 0, time.UTC)
	require.NoError(t, f.store.SaveEvaluation(ctx, sampleEvaluation("eval-a", true, base)))
	require.NoError(t, f.store.SaveEvaluation(ctx, sampleEvaluation("eval-b", false, base.Add(time.Minute))))

	w := f.get(t, "/api/live/decisions?limit=10")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Evaluations []guard.Result `json:"evaluations"`
		Count       int            `json:"count"`
		Page        int            `json:"page"`
		PageSize    int            `json:"page_size"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Count)
	// 时间倒序，最近的评估排最前
	assert.Equal(t, "eval-b", resp.Evaluations[0].ID)
	assert.Equal(t, 1, resp.Page)
	assert.Equal(t, 10, resp.PageSize)

	w = f.get(t, "/api/live/decisions?allowed=false")
	require.Equal(t, http.StatusOK, w.Code)
	resp.Evaluations = nil
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Evaluations, 1)
	assert.Equal(t, "eval-b", resp.Evaluations[0].ID)
	assert.Equal(t, []string{"PANIC_STATE"}, resp.Evaluations[0].BlockReasons)

	w = f.get(t, "/api/live/decisions/eval-a")
	require.Equal(t, http.StatusOK, w.Code)
	var detail struct {
		Evaluation guard.Result `json:"evaluation"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &detail))
	assert.Equal(t, "eval-a", detail.Evaluation.ID)
	assert.True(t, detail.Evaluation.Allowed)

	w = f.get(t, "/api/live/decisions/no-such-eval")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDecisionsUnavailableWithoutStore(t *testing.T) {
	srv, err := NewServer(ServerConfig{Router: NewRouter(nil, nil, nil, nil, nil, nil)})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/live/decisions", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestExitsEndpoint(t *testing.T) {
	f := newLiveFixture(t)
	ctx := context.Background()
	dec := exit.Decision{
		PositionID:   "pos-1",
		Token:        7001,
		Symbol:       "ALPHA",
		Type:         exit.TypeTrailing,
		Reason:       "回撤触发移动止损",
		TriggerPrice: 101.5,
		At:           time.Date(2026, 2, 3, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, f.store.SaveExit(ctx, dec))

	w := f.get(t, "/api/live/exits?token=7001")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Exits []exit.Decision `json:"exits"`
		Count int             `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, exit.TypeTrailing, resp.Exits[0].Type)
	assert.Equal(t, "pos-1", resp.Exits[0].PositionID)
}

func TestSummaryAndPositions(t *testing.T) {
	f := newLiveFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.SaveEvaluation(ctx, sampleEvaluation("eval-a", true, time.Now().UTC())))
	require.NoError(t, f.book.Add(&exit.Position{
		ID:         "pos-1",
		Instrument: market.Instrument{Token: 7001, Symbol: "ALPHA"},
		Direction:  market.DirectionRunner,
		EntryPrice: 100,
		EntryTime:  time.Now().UTC(),
		State:      exit.StateOpen,
	}))

	w := f.get(t, "/api/live/summary")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Store         store.Summary `json:"store"`
		OpenPositions int           `json:"open_positions"`
		Regime        string        `json:"regime"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.Store.Evaluations)
	assert.Equal(t, 1, resp.OpenPositions)
	assert.NotEmpty(t, resp.Regime)

	w = f.get(t, "/api/live/positions")
	require.Equal(t, http.StatusOK, w.Code)
	var positions struct {
		Positions []exit.Position `json:"positions"`
		Count     int             `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &positions))
	require.Equal(t, 1, positions.Count)
	assert.Equal(t, "pos-1", positions.Positions[0].ID)
}

func TestJournalEndpoint(t *testing.T) {
	f := newLiveFixture(t)
	ctx := context.Background()
	require.NoError(t, f.journal.Append(ctx, "snapshot", 7001, `{"mark":101.5}`))
	require.NoError(t, f.journal.Append(ctx, "fact", 0, `{"panic":true}`))

	w := f.get(t, "/api/live/journal?kind=snapshot&limit=10")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Entries []journal.Entry `json:"entries"`
		Count   int             `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "snapshot", resp.Entries[0].Kind)
	assert.Equal(t, int64(7001), resp.Entries[0].Token)
}

func TestFactsAndProfileEndpoints(t *testing.T) {
	f := newLiveFixture(t)

	w := f.get(t, "/api/live/facts")
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.get(t, "/api/live/profile")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Profile profile.Snapshot `json:"profile"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "static", resp.Profile.Source)

	w = f.get(t, "/api/live/regime")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newLiveFixture(t)
	f.rec.SetOpenPositions(3)

	w := f.get(t, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "sigil_open_positions 3")
	assert.Contains(t, body, "sigil_confidence_score")
}

func TestConfidenceChart(t *testing.T) {
	f := newLiveFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 2, 3, 11, 0, 0, 0, time.UTC)
	// 凑够一个平滑周期的样本
	for i := 0; i < 12; i++ {
		res := sampleEvaluation(fmt.Sprintf("eval-%02d", i), true, base.Add(time.Duration(i)*time.Minute))
		res.ConfidenceScore = 70 + float64(i)
		require.NoError(t, f.store.SaveEvaluation(ctx, res))
	}

	w := f.get(t, "/api/live/charts/confidence?limit=50")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/html"))
	body := w.Body.String()
	assert.Contains(t, body, "Confidence Timeline")
	assert.Contains(t, body, "Zone Score")
	assert.Contains(t, body, "echarts")
}

func TestConfidenceChartEmptyStore(t *testing.T) {
	f := newLiveFixture(t)
	w := f.get(t, "/api/live/charts/confidence")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
