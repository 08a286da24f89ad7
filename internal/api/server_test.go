package api

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rewired-gh/pumpsentry/internal/core"
	"github.com/rewired-gh/pumpsentry/internal/models"
	"github.com/rewired-gh/pumpsentry/internal/storage"
)

type capturingNotifier struct {
	sent []models.AlertEvent
}

func (n *capturingNotifier) SendAlerts(alerts []models.AlertEvent) error {
	n.sent = append(n.sent, alerts...)
	return nil
}

func newTestServer(t *testing.T, token string) (*httptest.Server, *capturingNotifier) {
	t.Helper()
	store, err := storage.New(100, ":memory:")
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	notifier := &capturingNotifier{}
	srv := NewServer(core.NewEngine(core.Config{}), store, notifier, token)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, notifier
}

func doJSON(t *testing.T, method, url string, body any, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, decoded
}

func wireBet(nonce int64, multiplier float64) map[string]any {
	return map[string]any{
		"id":               fmt.Sprintf("bet-%d", nonce),
		"nonce":            nonce,
		"amount":           1.0,
		"payoutMultiplier": multiplier,
		"payout":           multiplier,
		"difficulty":       "expert",
		"clientSeed":       "seed-a",
		"serverSeedHashed": "hash-a",
	}
}

func ingestBets(t *testing.T, ts *httptest.Server, bets ...map[string]any) string {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, ts.URL+"/live/ingest/batch", map[string]any{"bets": bets}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ingest batch status = %d, body %v", resp.StatusCode, body)
	}
	id, _ := body["streamId"].(string)
	if id == "" {
		t.Fatalf("ingest response missing streamId: %v", body)
	}
	return id
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t, "")
	resp, body := doJSON(t, http.MethodGet, ts.URL+"/health", nil, nil)
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Errorf("health = %d %v, want 200 ok", resp.StatusCode, body)
	}
}

func TestIngest_SingleAndDuplicate(t *testing.T) {
	ts, _ := newTestServer(t, "")

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/live/ingest", wireBet(1000, 2.5), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ingest status = %d, body %v", resp.StatusCode, body)
	}
	if body["accepted"].(float64) != 1 || body["rejected"].(float64) != 0 {
		t.Errorf("first ingest = %v, want accepted 1", body)
	}
	streamID := body["streamId"].(string)

	// Same bet id again: acknowledged without re-applying.
	resp, body = doJSON(t, http.MethodPost, ts.URL+"/live/ingest", wireBet(1000, 2.5), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("duplicate ingest status = %d", resp.StatusCode)
	}
	if body["accepted"].(float64) != 0 || body["rejected"].(float64) != 1 {
		t.Errorf("duplicate ingest = %v, want rejected 1", body)
	}
	if body["streamId"].(string) != streamID {
		t.Errorf("duplicate ingest resolved stream %v, want %v", body["streamId"], streamID)
	}

	// Fresh bet id at a non-advancing nonce: the engine refuses it.
	stale := wireBet(1000, 3.0)
	stale["id"] = "bet-1000-retry"
	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/live/ingest", stale, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("stale nonce status = %d, want 409", resp.StatusCode)
	}
}

func TestIngest_TokenAuth(t *testing.T) {
	ts, _ := newTestServer(t, "secret")

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/live/ingest", wireBet(1, 2.0), nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("missing token status = %d, want 401", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/live/ingest", wireBet(1, 2.0),
		map[string]string{"X-Ingest-Token": "wrong"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong token status = %d, want 401", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/live/ingest", wireBet(1, 2.0),
		map[string]string{"X-Ingest-Token": "secret"})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("valid token status = %d, want 200", resp.StatusCode)
	}

	// Read endpoints stay open.
	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/live/streams", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("list streams status = %d, want 200 without token", resp.StatusCode)
	}
}

func TestIngestBatch_Validation(t *testing.T) {
	ts, _ := newTestServer(t, "")

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/live/ingest/batch", map[string]any{"bets": []any{}}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty batch status = %d, want 400", resp.StatusCode)
	}

	other := wireBet(2, 3.0)
	other["clientSeed"] = "seed-b"
	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/live/ingest/batch",
		map[string]any{"bets": []any{wireBet(1, 2.0), other}}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("mixed seed pair status = %d, want 400", resp.StatusCode)
	}

	bad := wireBet(1, 2.0)
	bad["difficulty"] = "nightmare"
	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/live/ingest/batch",
		map[string]any{"bets": []any{bad}}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad difficulty status = %d, want 400", resp.StatusCode)
	}
}

func TestStreams_ListGetDelete(t *testing.T) {
	ts, _ := newTestServer(t, "")
	streamID := ingestBets(t, ts, wireBet(100, 2.5), wireBet(200, 45.5))

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/live/streams", nil, nil)
	if resp.StatusCode != http.StatusOK || body["total"].(float64) != 1 {
		t.Fatalf("list streams = %d %v, want 1 stream", resp.StatusCode, body)
	}

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/live/streams/"+streamID, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get stream status = %d", resp.StatusCode)
	}
	if body["total_bets"].(float64) != 2 || body["highest_multiplier"].(float64) != 45.5 {
		t.Errorf("stream detail = %v, want 2 bets peaking at 45.5", body)
	}
	if body["last_sequence"].(float64) != 200 {
		t.Errorf("last_sequence = %v, want 200", body["last_sequence"])
	}

	resp, _ = doJSON(t, http.MethodPatch, ts.URL+"/live/streams/"+streamID,
		map[string]any{"notes": "main grind"}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("patch notes status = %d", resp.StatusCode)
	}

	resp, body = doJSON(t, http.MethodDelete, ts.URL+"/live/streams/"+streamID, nil, nil)
	if resp.StatusCode != http.StatusOK || body["bets_deleted"].(float64) != 2 {
		t.Errorf("delete stream = %d %v, want 2 bets deleted", resp.StatusCode, body)
	}
	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/live/streams/"+streamID, nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get deleted stream status = %d, want 404", resp.StatusCode)
	}
}

func TestBets_PaginationAndTail(t *testing.T) {
	ts, _ := newTestServer(t, "")
	bets := make([]map[string]any, 5)
	for i := range bets {
		bets[i] = wireBet(int64(100*(i+1)), 2.0)
	}
	streamID := ingestBets(t, ts, bets...)

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/live/streams/"+streamID+"/bets?limit=2&offset=2", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list bets status = %d", resp.StatusCode)
	}
	if body["total"].(float64) != 5 || len(body["bets"].([]any)) != 2 {
		t.Errorf("list bets = %v, want page of 2 from 5", body)
	}

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/live/streams/"+streamID+"/tail?limit=3", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("tail status = %d", resp.StatusCode)
	}
	if len(body["bets"].([]any)) != 3 || body["has_more"].(bool) != true {
		t.Fatalf("tail = %v, want 3 rows with more remaining", body)
	}
	lastID := body["last_id"].(float64)

	resp, body = doJSON(t, http.MethodGet,
		fmt.Sprintf("%s/live/streams/%s/tail?limit=10&since_id=%.0f", ts.URL, streamID, lastID), nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("tail resume status = %d", resp.StatusCode)
	}
	if len(body["bets"].([]any)) != 2 || body["has_more"].(bool) != false {
		t.Errorf("tail resume = %v, want the remaining 2 rows", body)
	}
}

func TestPins_Lifecycle(t *testing.T) {
	ts, _ := newTestServer(t, "")
	streamID := ingestBets(t, ts, wireBet(100, 2.5))

	resp, _ := doJSON(t, http.MethodGet, ts.URL+"/live/streams/"+streamID+"/pins/2.5", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unpinned bucket status = %d, want 404", resp.StatusCode)
	}

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/live/streams/"+streamID+"/pins",
		map[string]any{"multiplier": 2.5}, nil)
	if resp.StatusCode != http.StatusCreated || body["bucket"] != "2.50" {
		t.Fatalf("add pin = %d %v, want created bucket 2.50", resp.StatusCode, body)
	}

	// Two more same-bucket hits produce one observed gap of 200.
	ingestBets(t, ts, wireBet(1000, 2.5), wireBet(1200, 2.5))

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/live/streams/"+streamID+"/pins/2.5", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get pin status = %d", resp.StatusCode)
	}
	snap := body["snapshot"].(map[string]any)
	if snap["count"].(float64) != 1 || snap["last_gap"].(float64) != 200 {
		t.Errorf("snapshot = %v, want one gap of 200", snap)
	}

	resp, _ = doJSON(t, http.MethodDelete, ts.URL+"/live/streams/"+streamID+"/pins/2.5", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("remove pin status = %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/live/streams/"+streamID+"/pins/2.5", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("removed pin status = %d, want 404", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/live/streams/"+streamID+"/pins",
		map[string]any{"multiplier": -1}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("negative multiplier status = %d, want 400", resp.StatusCode)
	}
}

func TestRulesAndAlerts_Flow(t *testing.T) {
	ts, notifier := newTestServer(t, "")
	streamID := ingestBets(t, ts, wireBet(100, 2.5))

	resp, rule := doJSON(t, http.MethodPost, ts.URL+"/live/streams/"+streamID+"/rules",
		map[string]any{
			"kind":      "threshold",
			"threshold": map[string]any{"target_multiplier": 100},
		}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add rule = %d %v", resp.StatusCode, rule)
	}
	ruleID := rule["id"].(string)
	if ruleID == "" || rule["enabled"] != true {
		t.Fatalf("added rule = %v, want enabled with an id", rule)
	}

	// A qualifying bet fires the rule and the alert reaches the notifier.
	resp, body := doJSON(t, http.MethodPost, ts.URL+"/live/ingest", wireBet(200, 150), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ingest status = %d", resp.StatusCode)
	}
	if alerts, ok := body["alerts"].([]any); !ok || len(alerts) != 1 {
		t.Fatalf("ingest alerts = %v, want 1", body["alerts"])
	}
	if len(notifier.sent) != 1 {
		t.Errorf("notifier received %d alerts, want 1", len(notifier.sent))
	}

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/live/streams/"+streamID+"/alerts", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list alerts status = %d", resp.StatusCode)
	}
	stored := body["alerts"].([]any)
	if len(stored) != 1 {
		t.Fatalf("stored alerts = %v, want 1", stored)
	}
	alertID := stored[0].(map[string]any)["id"].(string)

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/live/alerts/"+alertID+"/ack", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("ack alert status = %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPatch, ts.URL+"/live/streams/"+streamID+"/rules/"+ruleID,
		map[string]any{"enabled": false}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("disable rule status = %d", resp.StatusCode)
	}
	resp, body = doJSON(t, http.MethodGet, ts.URL+"/live/streams/"+streamID+"/rules", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list rules status = %d", resp.StatusCode)
	}
	rules := body["rules"].([]any)
	if len(rules) != 1 || rules[0].(map[string]any)["enabled"] != false {
		t.Errorf("rules after disable = %v, want one disabled rule", rules)
	}

	resp, _ = doJSON(t, http.MethodDelete, ts.URL+"/live/streams/"+streamID+"/rules/"+ruleID, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("remove rule status = %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodDelete, ts.URL+"/live/streams/"+streamID+"/rules/"+ruleID, nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("remove missing rule status = %d, want 404", resp.StatusCode)
	}
}

func TestRules_UpdateKindDropsOldPayload(t *testing.T) {
	ts, _ := newTestServer(t, "")
	streamID := ingestBets(t, ts, wireBet(100, 2.5))

	resp, rule := doJSON(t, http.MethodPost, ts.URL+"/live/streams/"+streamID+"/rules",
		map[string]any{
			"kind":               "gap",
			"tracked_multiplier": 2.5,
			"gap":                map[string]any{"use_quantile": true},
		}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add rule = %d %v", resp.StatusCode, rule)
	}
	ruleID := rule["id"].(string)

	resp, updated := doJSON(t, http.MethodPatch, ts.URL+"/live/streams/"+streamID+"/rules/"+ruleID,
		map[string]any{
			"kind":      "threshold",
			"threshold": map[string]any{"target_multiplier": 100},
		}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update rule = %d %v", resp.StatusCode, updated)
	}
	if updated["kind"] != "threshold" || updated["threshold"] == nil {
		t.Fatalf("updated rule = %v, want threshold kind with payload", updated)
	}
	if _, ok := updated["gap"]; ok {
		t.Errorf("updated rule kept the old gap payload: %v", updated)
	}

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/live/streams/"+streamID+"/rules", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list rules status = %d", resp.StatusCode)
	}
	live := body["rules"].([]any)[0].(map[string]any)
	if _, ok := live["gap"]; ok {
		t.Errorf("live rule kept the old gap payload: %v", live)
	}
}

func TestBookmarks_Lifecycle(t *testing.T) {
	ts, _ := newTestServer(t, "")
	streamID := ingestBets(t, ts, wireBet(100, 2.5), wireBet(200, 45.5))

	resp, bookmark := doJSON(t, http.MethodPost, ts.URL+"/live/streams/"+streamID+"/bookmarks",
		map[string]any{"sequence": 200, "multiplier": 45.5, "note": "big one"}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add bookmark = %d %v", resp.StatusCode, bookmark)
	}
	bookmarkID := bookmark["id"].(float64)
	if bookmarkID == 0 || bookmark["note"] != "big one" {
		t.Fatalf("added bookmark = %v, want an id and the note", bookmark)
	}

	// Only bets that exist can be bookmarked.
	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/live/streams/"+streamID+"/bookmarks",
		map[string]any{"sequence": 300, "multiplier": 2.5}, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing bet status = %d, want 404", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/live/streams/"+streamID+"/bookmarks",
		map[string]any{"sequence": 200, "multiplier": 2.5}, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("mismatched multiplier status = %d, want 404", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/live/streams/"+streamID+"/bookmarks",
		map[string]any{"sequence": 200, "multiplier": 45.5}, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate bookmark status = %d, want 409", resp.StatusCode)
	}

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/live/streams/"+streamID+"/bookmarks", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list bookmarks status = %d", resp.StatusCode)
	}
	if len(body["bookmarks"].([]any)) != 1 {
		t.Fatalf("bookmarks = %v, want 1", body["bookmarks"])
	}

	resp, updated := doJSON(t, http.MethodPatch,
		fmt.Sprintf("%s/live/bookmarks/%.0f", ts.URL, bookmarkID),
		map[string]any{"note": "the 45.5"}, nil)
	if resp.StatusCode != http.StatusOK || updated["note"] != "the 45.5" {
		t.Errorf("update bookmark = %d %v, want the new note", resp.StatusCode, updated)
	}

	resp, body = doJSON(t, http.MethodDelete,
		fmt.Sprintf("%s/live/bookmarks/%.0f", ts.URL, bookmarkID), nil, nil)
	if resp.StatusCode != http.StatusOK || body["deleted"] != true {
		t.Errorf("delete bookmark = %d %v", resp.StatusCode, body)
	}
	resp, _ = doJSON(t, http.MethodDelete,
		fmt.Sprintf("%s/live/bookmarks/%.0f", ts.URL, bookmarkID), nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("delete missing bookmark status = %d, want 404", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/live/streams/missing/bookmarks", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("bookmarks on missing stream status = %d, want 404", resp.StatusCode)
	}
}

func TestExportCSV(t *testing.T) {
	ts, _ := newTestServer(t, "")
	streamID := ingestBets(t, ts, wireBet(100, 2.5), wireBet(200, 45.5), wireBet(300, 1.0))

	resp, err := http.Get(ts.URL + "/live/streams/" + streamID + "/export.csv")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("export status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Type"); got != "text/csv" {
		t.Errorf("Content-Type = %q, want text/csv", got)
	}
	disposition := resp.Header.Get("Content-Disposition")
	if !strings.Contains(disposition, "attachment") || !strings.Contains(disposition, "_3_bets.csv") {
		t.Errorf("Content-Disposition = %q, want an attachment named for 3 bets", disposition)
	}

	records, err := csv.NewReader(resp.Body).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("csv rows = %d, want header plus 3 bets", len(records))
	}
	if records[0][0] != "sequence" || records[0][1] != "bet_id" {
		t.Errorf("csv header = %v", records[0])
	}
	for i, wantSeq := range []string{"100", "200", "300"} {
		if records[i+1][0] != wantSeq {
			t.Errorf("row %d sequence = %q, want %q", i+1, records[i+1][0], wantSeq)
		}
	}
	if records[2][7] != "45.5" {
		t.Errorf("row 2 multiplier = %q, want 45.5", records[2][7])
	}

	resp, err = http.Get(ts.URL + "/live/streams/missing/export.csv")
	if err != nil {
		t.Fatalf("export missing: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("export missing stream status = %d, want 404", resp.StatusCode)
	}
}

func TestMetrics(t *testing.T) {
	ts, _ := newTestServer(t, "")
	streamID := ingestBets(t, ts, wireBet(100, 2.5))

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/live/streams/"+streamID+"/pins",
		map[string]any{"multiplier": 2.5}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add pin status = %d", resp.StatusCode)
	}
	ingestBets(t, ts, wireBet(1000, 2.5), wireBet(1200, 120.0))

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/live/streams/"+streamID+"/metrics", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d", resp.StatusCode)
	}
	if body["total_bets"].(float64) != 3 || body["highest_multiplier"].(float64) != 120.0 {
		t.Errorf("metrics = %v, want 3 bets peaking at 120", body)
	}
	accs := body["accumulators"].(map[string]any)
	if _, ok := accs["2.50"]; !ok {
		t.Errorf("metrics accumulators = %v, want bucket 2.50", accs)
	}
	if len(body["top_peaks"].([]any)) != 3 {
		t.Errorf("top_peaks = %v, want all 3 bets", body["top_peaks"])
	}
}

func TestGaps_BatchAnalysis(t *testing.T) {
	ts, _ := newTestServer(t, "")
	streamID := ingestBets(t, ts, wireBet(1000, 2.5), wireBet(1100, 3.0), wireBet(1200, 2.5))

	resp, body := doJSON(t, http.MethodGet,
		ts.URL+"/live/streams/"+streamID+"/gaps?multiplier=2.5", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("gaps status = %d", resp.StatusCode)
	}
	entries := body["gaps"].([]any)
	if len(entries) != 2 {
		t.Fatalf("gaps = %v, want the 2 bets in bucket 2.50", entries)
	}
	second := entries[1].(map[string]any)
	if second["known"] != true || second["gap"].(float64) != 200 {
		t.Errorf("second gap entry = %v, want known gap 200", second)
	}

	resp, body = doJSON(t, http.MethodGet,
		ts.URL+"/live/streams/"+streamID+"/gaps?mode=threshold", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("threshold gaps status = %d", resp.StatusCode)
	}
	entries = body["gaps"].([]any)
	if len(entries) != 3 {
		t.Fatalf("threshold gaps = %v, want 3 entries", entries)
	}
	// The 2.5 at 1200 matches the 3.0 at 1100.
	last := entries[2].(map[string]any)
	if last["known"] != true || last["gap"].(float64) != 100 {
		t.Errorf("threshold gap = %v, want known gap 100", last)
	}

	resp, _ = doJSON(t, http.MethodGet,
		ts.URL+"/live/streams/"+streamID+"/gaps?mode=weekly", nil, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad mode status = %d, want 400", resp.StatusCode)
	}
}
