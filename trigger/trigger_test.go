package trigger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/recon/dbconn"
	"github.com/cockroachdb/recon/pagefetch"
	"github.com/cockroachdb/recon/reconcile"
	"github.com/cockroachdb/recon/reconcile/inconsistency"
	"github.com/cockroachdb/recon/reconcile/reconbase"
	"github.com/cockroachdb/recon/scalar"
	"github.com/cockroachdb/recon/tableconfig"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type sliceFetcher struct {
	rows [2][]reconbase.Row
	// block holds every fetch until the context given to the run is done.
	block chan struct{}
}

func (f *sliceFetcher) Fetch(
	ctx context.Context, src pagefetch.Source, spec reconbase.TableSpec, page pagefetch.Page,
) ([]reconbase.Row, error) {
	if f.block != nil {
		<-f.block
	}
	rows := f.rows[src.Side]
	if page.Offset() >= len(rows) {
		return nil, nil
	}
	end := page.Offset() + page.Size
	if end > len(rows) {
		end = len(rows)
	}
	return rows[page.Offset():end], nil
}

func playerRow(id, gold int64) reconbase.Row {
	return reconbase.Row{
		Columns: []string{"id", "gold"},
		Vals:    []scalar.Value{scalar.Int(id), scalar.Int(gold)},
	}
}

func newTestServer(t *testing.T, f pagefetch.Fetcher, reporter inconsistency.Reporter) *Server {
	source, err := tableconfig.New(tableconfig.Config{
		Tables: []tableconfig.TableConfig{
			{Name: "player", Identity: "id", Fields: []string{"gold"}},
			{Name: "guild", Identity: "id", Fields: []string{"gold"}},
		},
	})
	require.NoError(t, err)
	conns := dbconn.OrderedConns{
		dbconn.MakeFakeConn("primary", "PostgreSQL"),
		dbconn.MakeFakeConn("secondary", "MySQL"),
	}
	s := NewServer(conns, source, reporter, zerolog.Nop(), reconcile.WithFetcher(f), reconcile.WithPageSize(2))
	t.Cleanup(s.Close)
	return s
}

func do(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	ret := map[string]any{}
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ret))
	}
	return w, ret
}

func TestCompareTableSync(t *testing.T) {
	f := &sliceFetcher{rows: [2][]reconbase.Row{
		{playerRow(1, 10), playerRow(7, 500)},
		{playerRow(1, 10), playerRow(7, 450), playerRow(42, 0)},
	}}
	var shared inconsistency.BufferedReporter
	h := newTestServer(t, f, &shared).Handler()

	w, body := do(t, h, http.MethodPost, "/api/v1/compare/player", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := body["result"].(map[string]any)
	require.Equal(t, "done", result["state"])
	require.Equal(t, "player", result["table"])
	require.EqualValues(t, 2, result["pages"])
	require.EqualValues(t, 1, result["counts"].(map[string]any)["field-mismatch"])
	require.EqualValues(t, 1, result["counts"].(map[string]any)["missing-on-primary"])
	require.NotContains(t, result, "failed_page")

	diffs := body["differences"].([]any)
	require.Len(t, diffs, 2)
	require.Len(t, shared.Differences(), 2)
}

func TestCompareTableErrors(t *testing.T) {
	h := newTestServer(t, &sliceFetcher{}, &inconsistency.BufferedReporter{}).Handler()
	for _, tc := range []struct {
		desc   string
		target string
		status int
	}{
		{desc: "unknown table", target: "/api/v1/compare/nope", status: http.StatusNotFound},
		{desc: "bad page size", target: "/api/v1/compare/player?page_size=-1", status: http.StatusBadRequest},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			w, body := do(t, h, http.MethodPost, tc.target, "")
			require.Equal(t, tc.status, w.Code)
			require.NotEmpty(t, body["error"])
		})
	}
}

func TestListTables(t *testing.T) {
	h := newTestServer(t, &sliceFetcher{}, &inconsistency.BufferedReporter{}).Handler()
	w, body := do(t, h, http.MethodGet, "/api/v1/tables", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, []any{"guild", "player"}, body["tables"])
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestServer(t, &sliceFetcher{}, &inconsistency.BufferedReporter{}).Handler()
	w, _ := do(t, h, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "OK", w.Body.String())

	w, _ = do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "go_goroutines")
}

func waitForState(t *testing.T, h http.Handler, id string, state runState) map[string]any {
	var body map[string]any
	require.Eventually(t, func() bool {
		var w *httptest.ResponseRecorder
		w, body = do(t, h, http.MethodGet, "/api/v1/runs/"+id, "")
		return w.Code == http.StatusOK && body["state"] == string(state)
	}, 5*time.Second, 10*time.Millisecond)
	return body
}

func TestAsyncRuns(t *testing.T) {
	f := &sliceFetcher{rows: [2][]reconbase.Row{
		{playerRow(1, 10), playerRow(2, 20), playerRow(3, 30)},
		{playerRow(1, 10), playerRow(2, 21)},
	}}
	var reporter inconsistency.BufferedReporter
	h := newTestServer(t, f, &reporter).Handler()

	t.Run("single table", func(t *testing.T) {
		w, body := do(t, h, http.MethodPost, "/api/v1/compare/player?async=true", "")
		require.Equal(t, http.StatusAccepted, w.Code)
		require.Equal(t, "running", body["state"])
		body = waitForState(t, h, body["id"].(string), runDone)
		results := body["results"].([]any)
		require.Len(t, results, 1)
		// The run id of the result is the id of the run.
		require.Equal(t, body["id"], results[0].(map[string]any)["run_id"])
	})

	t.Run("every table", func(t *testing.T) {
		w, body := do(t, h, http.MethodPost, "/api/v1/compare", "")
		require.Equal(t, http.StatusAccepted, w.Code)
		require.Equal(t, []any{"guild", "player"}, body["tables"])
		body = waitForState(t, h, body["id"].(string), runDone)
		require.Len(t, body["results"].([]any), 2)
	})

	t.Run("named tables", func(t *testing.T) {
		w, body := do(t, h, http.MethodPost, "/api/v1/compare", `{"tables": ["guild"]}`)
		require.Equal(t, http.StatusAccepted, w.Code)
		require.Equal(t, []any{"guild"}, body["tables"])
		waitForState(t, h, body["id"].(string), runDone)
	})

	t.Run("unknown named table", func(t *testing.T) {
		w, _ := do(t, h, http.MethodPost, "/api/v1/compare", `{"tables": ["guild", "nope"]}`)
		require.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("unknown run", func(t *testing.T) {
		w, _ := do(t, h, http.MethodGet, "/api/v1/runs/00000000-0000-0000-0000-000000000001", "")
		require.Equal(t, http.StatusNotFound, w.Code)
		w, _ = do(t, h, http.MethodDelete, "/api/v1/runs/00000000-0000-0000-0000-000000000001", "")
		require.Equal(t, http.StatusNotFound, w.Code)
		w, _ = do(t, h, http.MethodGet, "/api/v1/runs/not-a-uuid", "")
		require.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestCancelRun(t *testing.T) {
	f := &sliceFetcher{
		rows: [2][]reconbase.Row{
			{playerRow(1, 10), playerRow(2, 20), playerRow(3, 30)},
			{playerRow(1, 10), playerRow(2, 20), playerRow(3, 30)},
		},
		block: make(chan struct{}),
	}
	h := newTestServer(t, f, &inconsistency.BufferedReporter{}).Handler()
	w, body := do(t, h, http.MethodPost, "/api/v1/compare/player?async=true", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	id := body["id"].(string)

	// Release the fetches of the page in progress once the cancel is issued.
	go func() {
		time.Sleep(50 * time.Millisecond)
		close(f.block)
	}()
	w, body = do(t, h, http.MethodDelete, "/api/v1/runs/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, string(runCancelled), body["state"])
	result := body["results"].([]any)[0].(map[string]any)
	require.Equal(t, "aborted", result["state"])
	require.Contains(t, result["error"], "context canceled")
}

func TestRegistryEviction(t *testing.T) {
	noop := func(context.Context, uuid.UUID) []reconcile.Result { return nil }
	startAndWait := func(reg *registry) *run {
		r := reg.start(context.Background(), []string{"player"}, noop)
		<-r.done
		return r
	}

	t.Run("finished runs expire after retention", func(t *testing.T) {
		now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		reg := newRegistry(time.Hour, 0)
		reg.now = func() time.Time { return now }
		defer reg.shutdown()

		old := startAndWait(reg)
		now = now.Add(2 * time.Hour)
		fresh := startAndWait(reg)

		_, ok := reg.get(old.id)
		require.False(t, ok)
		_, ok = reg.get(fresh.id)
		require.True(t, ok)
	})

	t.Run("oldest finished runs dropped over the cap", func(t *testing.T) {
		now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		reg := newRegistry(0, 2)
		reg.now = func() time.Time { now = now.Add(time.Second); return now }

		block := make(chan struct{})
		running := reg.start(context.Background(), []string{"player"}, func(ctx context.Context, _ uuid.UUID) []reconcile.Result {
			<-block
			return nil
		})
		first := startAndWait(reg)
		second := startAndWait(reg)
		third := startAndWait(reg)

		for _, tc := range []struct {
			desc string
			r    *run
			kept bool
		}{
			{desc: "running", r: running, kept: true},
			{desc: "first", r: first, kept: false},
			{desc: "second", r: second, kept: false},
			{desc: "third", r: third, kept: true},
		} {
			_, ok := reg.get(tc.r.id)
			require.Equal(t, tc.kept, ok, tc.desc)
		}
		close(block)
		reg.shutdown()
	})
}
