package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/serenitybot/serenity/internal/companion"
	"github.com/serenitybot/serenity/internal/identity"
	"github.com/serenitybot/serenity/internal/schedule"
	"github.com/serenitybot/serenity/internal/store"
)

// Monday
var testNow = time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)

type stubClient struct{}

func (stubClient) Reply(ctx context.Context, p companion.Prompt) (string, error) {
	return "I hear you. (" + string(p.Style) + ")", nil
}
func (stubClient) ReflectMood(ctx context.Context, line string) (string, error) {
	return "Thanks for sharing.", nil
}
func (stubClient) Affirmation(ctx context.Context, hint string) (string, error) {
	return "You are doing enough.", nil
}
func (stubClient) ClassifyCrisis(ctx context.Context, text string) (companion.Crisis, error) {
	if strings.Contains(text, "hopeless") {
		return companion.Crisis{Risk: companion.RiskHigh, Reason: "hopelessness"}, nil
	}
	return companion.Crisis{Risk: companion.RiskNone}, nil
}
func (stubClient) SummarizeAudio(ctx context.Context, data []byte, mimeType string) (string, error) {
	return "User sounds tired.", nil
}
func (stubClient) Close() {}

type harness struct {
	t     *testing.T
	store *store.Store
	srv   *Server
	h     http.Handler
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "serenity.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	st.SetClock(func() time.Time { return testNow })
	return newHarnessWithStore(t, st, st, opts)
}

func newHarnessWithStore(t *testing.T, st *store.Store, api Store, opts Options) *harness {
	t.Helper()
	idp := identity.NewLocalProvider(st)
	idp.SetCost(bcrypt.MinCost)
	srv, err := New(api, idp, companion.NewService(stubClient{}, st, nil), opts)
	require.NoError(t, err)
	t.Cleanup(srv.Close)
	return &harness{t: t, store: st, srv: srv, h: srv.Handler()}
}

func (h *harness) do(method, path, token string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.h.ServeHTTP(rec, req)
	return rec
}

func (h *harness) anonymous() string {
	h.t.Helper()
	rec := h.do(http.MethodPost, "/api/auth/anonymous", "", nil)
	require.Equal(h.t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp authResponse
	require.NoError(h.t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(h.t, resp.Token)
	return resp.Token
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	h := newHarness(t, Options{})
	rec := h.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAuth_RequiresSession(t *testing.T) {
	h := newHarness(t, Options{})
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/api/moods", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/api/moods", "bogus", nil).Code)

	token := h.anonymous()
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/moods", token, nil).Code)

	assert.Equal(t, http.StatusNoContent, h.do(http.MethodPost, "/api/auth/logout", token, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/api/moods", token, nil).Code)
}

func TestAuth_SignUpAndLogin(t *testing.T) {
	h := newHarness(t, Options{AuthBurst: 20})
	creds := credentials{Email: "Sam@Example.com", Password: "s3cret!"}

	rec := h.do(http.MethodPost, "/api/auth/signup", "", creds)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	signed := decodeBody[authResponse](t, rec)
	assert.Equal(t, "sam@example.com", signed.User.Email)

	assert.Equal(t, http.StatusConflict, h.do(http.MethodPost, "/api/auth/signup", "", creds).Code)

	rec = h.do(http.MethodPost, "/api/auth/login", "", credentials{Email: "sam@example.com", Password: "s3cret!"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, signed.User.ID, decodeBody[authResponse](t, rec).User.ID)

	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodPost, "/api/auth/login", "", credentials{Email: "sam@example.com", Password: "nope"}).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/api/auth/login", "", credentials{}).Code)
}

// providerFailure rejects every call with the same upstream error.
type providerFailure struct{ err error }

func (p providerFailure) SignUp(context.Context, string, string) (identity.User, error) {
	return identity.User{}, p.err
}

func (p providerFailure) Login(context.Context, string, string) (identity.User, error) {
	return identity.User{}, p.err
}

func (p providerFailure) Anonymous(context.Context) (identity.User, error) {
	return identity.User{}, p.err
}

func TestAuth_ProviderErrorsPassThrough(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		code   int
		msg    string
	}{
		{"rejected", 400, `{"error":{"message":"EMAIL_NOT_FOUND"}}`, http.StatusUnauthorized, "EMAIL_NOT_FOUND"},
		{"unavailable", 503, `{"error":{"message":"BACKEND_ERROR"}}`, http.StatusBadGateway, "BACKEND_ERROR"},
		{"raw body", 500, "upstream exploded", http.StatusBadGateway, "upstream exploded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "serenity.db"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = st.Close() })
			idp := providerFailure{err: &identity.ProviderError{Status: tt.status, Body: tt.body}}
			srv, err := New(st, idp, companion.NewService(stubClient{}, st, nil), Options{AuthBurst: 20})
			require.NoError(t, err)
			t.Cleanup(srv.Close)
			h := &harness{t: t, store: st, srv: srv, h: srv.Handler()}

			for _, path := range []string{"/api/auth/login", "/api/auth/signup", "/api/auth/anonymous"} {
				rec := h.do(http.MethodPost, path, "", credentials{Email: "sam@example.com", Password: "s3cret!"})
				assert.Equal(t, tt.code, rec.Code, path)
				assert.Equal(t, tt.msg, decodeBody[map[string]string](t, rec)["error"], path)
			}
		})
	}
}

func TestAuth_RateLimited(t *testing.T) {
	h := newHarness(t, Options{AuthRatePerMinute: 1, AuthBurst: 2})
	h.anonymous()
	h.anonymous()
	rec := h.do(http.MethodPost, "/api/auth/anonymous", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestChat(t *testing.T) {
	h := newHarness(t, Options{})
	token := h.anonymous()

	rec := h.do(http.MethodPost, "/api/chat", token, map[string]any{"text": "exams tomorrow", "style": "coach"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeBody[companion.Result](t, rec)
	assert.Equal(t, "I hear you. (coach)", res.Reply)
	assert.Equal(t, companion.RiskNone, res.Crisis.Risk)
	assert.Empty(t, res.Notice)

	rec = h.do(http.MethodPost, "/api/chat", token, map[string]any{"text": "I feel hopeless"})
	res = decodeBody[companion.Result](t, rec)
	assert.Equal(t, companion.HelplineMessage, res.Notice)

	rec = h.do(http.MethodPost, "/api/chat", token, map[string]any{
		"audio": []map[string]any{{"data": []byte("RIFF...."), "mime_type": "audio/wav"}},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"User sounds tired."}, decodeBody[companion.Result](t, rec).AudioSummaries)

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/api/chat", token, map[string]any{"text": "  "}).Code)
}

func TestMoodsReportsAndInsights(t *testing.T) {
	h := newHarness(t, Options{})
	token := h.anonymous()

	rec := h.do(http.MethodPost, "/api/moods", token, moodRequest{Mood: "😊 Happy", Note: "aced the quiz"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/api/moods", token, moodRequest{}).Code)

	rec = h.do(http.MethodPost, "/api/gratitude", token, map[string]any{"picks": []string{"family", "Music"}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/api/gratitude", token, map[string]any{"picks": []string{"Homework"}}).Code)

	rec = h.do(http.MethodGet, "/api/moods?days=1", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]map[string]any](t, rec), 2)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/api/moods?days=x", token, nil).Code)

	rec = h.do(http.MethodGet, "/api/reports/today", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	report := decodeBody[map[string]any](t, rec)
	assert.EqualValues(t, 2, report["count_entries"])
	assert.EqualValues(t, 1, report["good_deeds"])

	rec = h.do(http.MethodGet, "/api/reports/2026-01-01", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, decodeBody[map[string]any](t, rec)["count_entries"])
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/api/reports/yesterday", token, nil).Code)

	rec = h.do(http.MethodGet, "/api/insights", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	insights := decodeBody[map[string]any](t, rec)
	assert.EqualValues(t, 2, insights["entries"])
	assert.EqualValues(t, 1, insights["streak"])
}

func TestAffirmationAndBreathing(t *testing.T) {
	h := newHarness(t, Options{})
	token := h.anonymous()

	rec := h.do(http.MethodPost, "/api/affirmation", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	a := decodeBody[companion.Affirmation](t, rec)
	assert.Equal(t, "You are doing enough.", a.Text)
	assert.NotEmpty(t, a.Caption)

	rec = h.do(http.MethodGet, "/api/breathing?seconds=20&cycles=3", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	plan := decodeBody[map[string]any](t, rec)
	assert.EqualValues(t, 8, plan["phase_seconds"])
	assert.EqualValues(t, 3, plan["cycles"])
}

func TestLetters(t *testing.T) {
	h := newHarness(t, Options{})
	token := h.anonymous()
	other := h.anonymous()

	rec := h.do(http.MethodPost, "/api/letters", token, map[string]string{"content": "Be proud of yourself."})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "2026-10-26", decodeBody[store.Letter](t, rec).DeliverOn)

	rec = h.do(http.MethodPost, "/api/letters", token, map[string]string{"content": "Today!", "deliver_on": "2026-10-19"})
	require.Equal(t, http.StatusCreated, rec.Code)
	today := decodeBody[store.Letter](t, rec)

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/api/letters", token, map[string]string{"content": ""}).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/api/letters", token, map[string]string{"content": "x", "deliver_on": "2020-01-01"}).Code)

	rec = h.do(http.MethodGet, "/api/letters", token, nil)
	due := decodeBody[[]store.Letter](t, rec)
	require.Len(t, due, 1)
	assert.Equal(t, today.ID, due[0].ID)

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodPost, "/api/letters/"+today.ID+"/read", other, nil).Code)
	assert.Equal(t, http.StatusNoContent, h.do(http.MethodPost, "/api/letters/"+today.ID+"/read", token, nil).Code)
	assert.Empty(t, decodeBody[[]store.Letter](t, h.do(http.MethodGet, "/api/letters", token, nil)))
}

func TestMemories(t *testing.T) {
	h := newHarness(t, Options{})
	token := h.anonymous()

	rec := h.do(http.MethodPost, "/api/memories", token, map[string]any{"key": "pet", "value": "a cat named Miso", "tags": []string{"home"}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, store.DefaultImportance, decodeBody[store.Memory](t, rec).Importance)

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/api/memories", token, map[string]any{"key": "pet"}).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/api/memories", token, map[string]any{"key": "a", "value": "b", "importance": 9}).Code)

	mems := decodeBody[[]store.Memory](t, h.do(http.MethodGet, "/api/memories", token, nil))
	require.Len(t, mems, 1)
	assert.Equal(t, "pet: a cat named Miso", mems[0].String())
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/api/memories?limit=0", token, nil).Code)
}

func addItem(t *testing.T, h *harness, token string, req scheduleRequest) schedule.Item {
	t.Helper()
	rec := h.do(http.MethodPost, "/api/schedule", token, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[schedule.Item](t, rec)
}

func TestSchedule_ClashesAndCache(t *testing.T) {
	h := newHarness(t, Options{})
	token := h.anonymous()

	rec := h.do(http.MethodGet, "/api/schedule/clashes", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	report := decodeBody[clashReport](t, rec)
	assert.Empty(t, report.Clashes)
	assert.Equal(t, schedule.AllClearMessage, report.Message)

	math := addItem(t, h, token, scheduleRequest{Title: "Math", Days: []string{"mon"}, StartTime: "09:00", EndTime: "10:00", TravelMins: 15})
	assert.Equal(t, schedule.DefaultPriority, math.Priority)
	addItem(t, h, token, scheduleRequest{Title: "Art", Days: []string{"Monday"}, StartTime: "09:30", EndTime: "11:00"})

	rec = h.do(http.MethodGet, "/api/schedule/clashes", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	report = decodeBody[clashReport](t, rec)
	require.Len(t, report.Clashes, 2)
	assert.Equal(t, clash{Day: schedule.Mon, Kind: schedule.KindOverlap, Titles: [2]string{"Math", "Art"}, Message: "🕓 Mon: 'Math' and 'Art' overlap. Adjust timing."}, report.Clashes[0])
	assert.Equal(t, schedule.KindTravelGap, report.Clashes[1].Kind)

	rec = h.do(http.MethodDelete, "/api/schedule/"+math.ID, token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodDelete, "/api/schedule/"+math.ID, token, nil).Code)

	items := decodeBody[[]schedule.Item](t, h.do(http.MethodGet, "/api/schedule", token, nil))
	require.Len(t, items, 1, "cache must be invalidated on delete")
	assert.Equal(t, "Art", items[0].Title)

	rec = h.do(http.MethodPost, "/api/schedule", token, scheduleRequest{Title: "Bad", Days: []string{"Mon"}, StartTime: "10:00", EndTime: "09:00"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = h.do(http.MethodPost, "/api/schedule", token, scheduleRequest{Title: "Bad", Days: []string{"Funday"}, StartTime: "09:00", EndTime: "10:00"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSchedule_AgendaAndICS(t *testing.T) {
	h := newHarness(t, Options{})
	token := h.anonymous()
	addItem(t, h, token, scheduleRequest{Title: "Swim", Days: []string{"Tue", "Thu"}, StartTime: "17:00", EndTime: "18:00", Location: "Pool"})

	rec := h.do(http.MethodGet, "/api/schedule/agenda?days=7", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	occ := decodeBody[[]schedule.Occurrence](t, rec)
	require.Len(t, occ, 2)
	assert.Equal(t, time.Date(2026, 10, 20, 17, 0, 0, 0, time.UTC), occ[0].Start.UTC())
	assert.Equal(t, schedule.Thu, occ[1].Day)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/api/schedule/agenda?days=90", token, nil).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/api/schedule/agenda?from=soon", token, nil).Code)

	rec = h.do(http.MethodGet, "/api/schedule.ics", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/calendar")
	body := rec.Body.String()
	assert.Contains(t, body, "BEGIN:VCALENDAR")
	assert.Contains(t, body, "SUMMARY:Swim")
	assert.Contains(t, body, "BYDAY=TU,TH")
}

type malformedStore struct {
	*store.Store
}

func (malformedStore) ListSchedule(ctx context.Context, userID string) ([]schedule.Item, error) {
	return []schedule.Item{
		{Title: "Legacy", Days: []schedule.Weekday{schedule.Mon}, StartTime: "9am", EndTime: "10:00"},
	}, nil
}

func TestSchedule_ClashesMalformedTime(t *testing.T) {
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "serenity.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	h := newHarnessWithStore(t, st, malformedStore{st}, Options{})
	token := h.anonymous()

	rec := h.do(http.MethodGet, "/api/schedule/clashes", token, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	item := body["item"].(map[string]any)
	assert.Equal(t, "Legacy", item["title"])
	assert.Equal(t, "start_time", item["field"])
	assert.Equal(t, "9am", item["value"])
}

// gatedStore pauses the next ListSchedule after its rows are read, until release closes.
type gatedStore struct {
	*store.Store
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) ListSchedule(ctx context.Context, userID string) ([]schedule.Item, error) {
	items, err := g.Store.ListSchedule(ctx, userID)
	if g.armed.CompareAndSwap(true, false) {
		close(g.entered)
		<-g.release
	}
	return items, err
}

func TestSchedule_CacheFillRacingWrite(t *testing.T) {
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "serenity.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	gs := &gatedStore{Store: st, entered: make(chan struct{}), release: make(chan struct{})}
	h := newHarnessWithStore(t, st, gs, Options{})
	token := h.anonymous()
	addItem(t, h, token, scheduleRequest{Title: "Math", Days: []string{"Mon"}, StartTime: "09:00", EndTime: "10:00"})

	gs.armed.Store(true)
	slow := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		req := httptest.NewRequest(http.MethodGet, "/api/schedule", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.h.ServeHTTP(rec, req)
		slow <- rec
	}()

	select {
	case <-gs.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("reader never reached the store")
	}
	addItem(t, h, token, scheduleRequest{Title: "Art", Days: []string{"Tue"}, StartTime: "09:00", EndTime: "10:00"})
	close(gs.release)

	rec := <-slow
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]schedule.Item](t, rec), 1)

	items := decodeBody[[]schedule.Item](t, h.do(http.MethodGet, "/api/schedule", token, nil))
	assert.Len(t, items, 2, "a list read before the write must not be cached")
}

func TestScheduleCache_DropsOutdatedFill(t *testing.T) {
	c, err := newScheduleCache(4)
	require.NoError(t, err)

	_, gen, ok := c.get("u1")
	require.False(t, ok)
	c.invalidate("u1")
	assert.False(t, c.fill("u1", gen, []schedule.Item{{Title: "old"}}))
	_, _, ok = c.get("u1")
	assert.False(t, ok)

	_, gen, _ = c.get("u1")
	assert.True(t, c.fill("u1", gen, []schedule.Item{{Title: "new"}}))
	items, _, ok := c.get("u1")
	require.True(t, ok)
	assert.Equal(t, "new", items[0].Title)

	_, gen, ok = c.get("u2")
	require.False(t, ok)
	c.invalidate("u3")
	assert.True(t, c.fill("u2", gen, nil), "writes by another user must not block a fill")
}

func TestFallbackAndCORS(t *testing.T) {
	h := newHarness(t, Options{AllowedOrigins: []string{"https://app.example"}})
	h.srv.Mount(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("webui"))
	}))
	h.h = h.srv.Handler()

	rec := h.do(http.MethodGet, "/", "", nil)
	assert.Equal(t, "webui", rec.Body.String())

	req := httptest.NewRequest(http.MethodOptions, "/api/moods", nil)
	req.Header.Set("Origin", "https://app.example")
	rec = httptest.NewRecorder()
	h.h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestUserFromRequest_QueryToken(t *testing.T) {
	h := newHarness(t, Options{})
	token := h.anonymous()

	req := httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil)
	userID, ok := h.srv.UserFromRequest(req)
	assert.True(t, ok)
	assert.NotEmpty(t, userID)

	_, ok = h.srv.UserFromRequest(httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.False(t, ok)
}

func TestWeekStart(t *testing.T) {
	sunday := time.Date(2026, 10, 25, 22, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC), weekStart(sunday))
	assert.Equal(t, time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC), weekStart(testNow))
}
