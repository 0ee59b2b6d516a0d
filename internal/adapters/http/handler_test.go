package httpadapter_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	httpadapter "github.com/PabloGalante/clara-companion/internal/adapters/http"
	"github.com/PabloGalante/clara-companion/internal/adapters/llm"
	"github.com/PabloGalante/clara-companion/internal/adapters/relay"
	"github.com/PabloGalante/clara-companion/internal/adapters/storage/memory"
	"github.com/PabloGalante/clara-companion/internal/app/alert"
	"github.com/PabloGalante/clara-companion/internal/app/assistant"
	"github.com/PabloGalante/clara-companion/internal/app/messaging"
	"github.com/PabloGalante/clara-companion/internal/app/mode"
	"github.com/PabloGalante/clara-companion/internal/app/summary"
	"github.com/PabloGalante/clara-companion/internal/observability"
)

// fakeRelay records what the server forwards and answers /sms with the
// configured status.
type fakeRelay struct {
	mu        sync.Mutex
	smsStatus int
	smsBody   string
	sms       int
	modes     []bool
}

func (f *fakeRelay) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.URL.Path {
	case "/sms":
		f.sms++
		status := f.smsStatus
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(f.smsBody))
	case "/mode":
		var body struct {
			Agent bool `json:"agent"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.modes = append(f.modes, body.Agent)
	case "/summarize":
		_, _ = w.Write([]byte("Patient asked about dinner."))
	default:
		http.NotFound(w, r)
	}
}

type testEnv struct {
	handler http.Handler
	relay   *fakeRelay
	mode    *mode.Service
}

func newTestServer(t *testing.T) *testEnv {
	t.Helper()

	fr := &fakeRelay{smsBody: `{"sid":"SM1"}`}
	relaySrv := httptest.NewServer(fr)
	t.Cleanup(relaySrv.Close)

	relayClient := relay.NewClient(relaySrv.URL, "", time.Second)
	metrics := observability.NewMetrics()

	messageStore := memory.NewMessageStore()
	summaryStore := memory.NewSummaryStore()

	modeSvc := mode.NewService(mode.Deps{
		Store:      memory.NewModeStore(),
		Messages:   messageStore,
		Summaries:  summaryStore,
		Forwarder:  relayClient,
		Summarizer: relayClient,
		Metrics:    metrics,
		Timeout:    time.Second,
	})
	t.Cleanup(modeSvc.Wait)

	h := httpadapter.NewServer(httpadapter.Services{
		Messages:  messaging.NewService(messageStore, relayClient, metrics),
		Mode:      modeSvc,
		Alerts:    alert.NewService(memory.NewAlertStore(time.Now().UTC()), metrics),
		Summaries: summary.NewService(relayClient, summaryStore, metrics),
		Assistant: assistant.NewService(llm.NewMockLLM(), llm.AssistantSystemPrompt, metrics),
	}, httpadapter.Options{Metrics: metrics})

	return &testEnv{handler: h, relay: fr, mode: modeSvc}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON body %q: %v", w.Body.String(), err)
	}
	return out
}

func TestHealthz(t *testing.T) {
	env := newTestServer(t)
	w := env.do(t, http.MethodGet, "/healthz", "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected a request id header")
	}
}

func TestSetModeRejectsNonBoolean(t *testing.T) {
	env := newTestServer(t)

	w := env.do(t, http.MethodPost, "/mode", `{"agent":"yes"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if got := decode(t, w)["error"]; got != `Invalid request body. "agent" field must be a boolean.` {
		t.Fatalf("unexpected error %v", got)
	}

	w = env.do(t, http.MethodGet, "/mode", "")
	mode := decode(t, w)["mode"].(map[string]any)
	if mode["agent"] != false {
		t.Fatalf("mode changed after rejected request: %v", mode)
	}
}

func TestSetModeRoundTripAndForward(t *testing.T) {
	env := newTestServer(t)

	for _, path := range []string{"/mode", "/set_mode"} {
		w := env.do(t, http.MethodPost, path, `{"agent":true}`)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, w.Code)
		}
		body := decode(t, w)
		if body["success"] != true || body["mode"].(map[string]any)["agent"] != true {
			t.Fatalf("%s: unexpected body %v", path, body)
		}
	}

	w := env.do(t, http.MethodGet, "/set_mode", "")
	if decode(t, w)["mode"].(map[string]any)["agent"] != true {
		t.Fatalf("expected agent mode to be readable")
	}

	env.mode.Wait()
	env.relay.mu.Lock()
	defer env.relay.mu.Unlock()
	if len(env.relay.modes) != 2 {
		t.Fatalf("expected each set to be forwarded, got %v", env.relay.modes)
	}
}

func TestReceiveMessageValidation(t *testing.T) {
	env := newTestServer(t)

	for _, body := range []string{`{"text":""}`, `{"text":42}`, `{}`, `{"text":"hi","role":"patient"}`} {
		w := env.do(t, http.MethodPost, "/message", body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", body, w.Code)
		}
	}

	w := env.do(t, http.MethodGet, "/message", "")
	if msgs := decode(t, w)["messages"].([]any); len(msgs) != 0 {
		t.Fatalf("rejected messages were stored: %v", msgs)
	}
}

func TestReceiveMessageRoundTrip(t *testing.T) {
	env := newTestServer(t)

	w := env.do(t, http.MethodPost, "/receive_message", `{"text":"hi","role":"contact"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["message"] != "Message received and added to chat" || body["messageId"] == "" {
		t.Fatalf("unexpected body %v", body)
	}

	w = env.do(t, http.MethodGet, "/message", "")
	msgs := decode(t, w)["messages"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	m := msgs[0].(map[string]any)
	if m["content"] != "hi" || m["role"] != "contact" || m["id"] != body["messageId"] {
		t.Fatalf("unexpected stored message %v", m)
	}
}

func TestSendMessageMergesRelayFields(t *testing.T) {
	env := newTestServer(t)

	w := env.do(t, http.MethodPost, "/send_message", `{"recipient":"6138000000","message":"on my way"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["success"] != true || body["sid"] != "SM1" || body["messageId"] == "" {
		t.Fatalf("unexpected body %v", body)
	}

	msgs := decode(t, env.do(t, http.MethodGet, "/message", ""))["messages"].([]any)
	if len(msgs) != 1 || msgs[0].(map[string]any)["role"] != "user" {
		t.Fatalf("expected sent message stored as user, got %v", msgs)
	}
}

func TestSendMessageRelayFailurePassesStatus(t *testing.T) {
	env := newTestServer(t)
	env.relay.smsStatus = http.StatusBadGateway
	env.relay.smsBody = `{"error":"carrier rejected"}`

	w := env.do(t, http.MethodPost, "/send_message", `{"recipient":"1","message":"hello"}`)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
	body := decode(t, w)
	if body["success"] != false || body["error"] != "carrier rejected" {
		t.Fatalf("unexpected body %v", body)
	}

	msgs := decode(t, env.do(t, http.MethodGet, "/message", ""))["messages"].([]any)
	if len(msgs) != 0 {
		t.Fatalf("failed send must not be stored, got %v", msgs)
	}
}

func TestSendMessageRelayUnreachableIsGeneric(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	dead.Close()

	store := memory.NewMessageStore()
	h := httpadapter.NewServer(httpadapter.Services{
		Messages: messaging.NewService(store, relay.NewClient(dead.URL, "", time.Second), nil),
	}, httpadapter.Options{})

	req := httptest.NewRequest(http.MethodPost, "/send_message", strings.NewReader(`{"recipient":"1","message":"hello"}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	body := decode(t, w)
	if body["success"] != false || body["error"] != "An unexpected error occurred" {
		t.Fatalf("unexpected body %v", body)
	}
	if msgs, _ := store.ListMessages(req.Context()); len(msgs) != 0 {
		t.Fatalf("unsent message must not be stored, got %d", len(msgs))
	}
}

func TestSendMessageRequiresFields(t *testing.T) {
	env := newTestServer(t)

	w := env.do(t, http.MethodPost, "/send_message", `{"message":"hello"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if got := decode(t, w)["error"]; got != "Recipient and message are required" {
		t.Fatalf("unexpected error %v", got)
	}
	if env.relay.sms != 0 {
		t.Fatalf("relay must not be called")
	}
}

func TestDirectMessageIsNotStored(t *testing.T) {
	env := newTestServer(t)

	w := env.do(t, http.MethodPost, "/imessage", `{"recipient":"6138000000","message":"call me"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["success"] != true || body["sid"] != "SM1" {
		t.Fatalf("unexpected body %v", body)
	}
	if env.relay.sms != 1 {
		t.Fatalf("expected one relay call, got %d", env.relay.sms)
	}

	msgs := decode(t, env.do(t, http.MethodGet, "/message", ""))["messages"].([]any)
	if len(msgs) != 0 {
		t.Fatalf("direct messages must not be logged, got %v", msgs)
	}
}

func TestSummarize(t *testing.T) {
	env := newTestServer(t)

	w := env.do(t, http.MethodPost, "/summarize", `{"messages":[]}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}

	w = env.do(t, http.MethodPost, "/summarize", `{"messages":[{"text":"dinner?","role":"contact"}]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", w.Code, w.Body.String())
	}
	if got := decode(t, w)["summary"]; got != "Patient asked about dinner." {
		t.Fatalf("unexpected summary %v", got)
	}
}

func TestHandoffSummaryIsListed(t *testing.T) {
	env := newTestServer(t)

	env.do(t, http.MethodPost, "/message", `{"text":"what's for dinner?"}`)
	env.do(t, http.MethodPost, "/mode", `{"agent":true}`)
	env.do(t, http.MethodPost, "/mode", `{"agent":false}`)
	env.mode.Wait()

	w := env.do(t, http.MethodGet, "/summaries?limit=5", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	sums := decode(t, w)["summaries"].([]any)
	if len(sums) != 1 || sums[0].(map[string]any)["text"] != "Patient asked about dinner." {
		t.Fatalf("unexpected summaries %v", sums)
	}

	if w := env.do(t, http.MethodGet, "/summaries?limit=abc", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", w.Code)
	}
}

func TestAlertRaiseAndStatus(t *testing.T) {
	env := newTestServer(t)

	before := decode(t, env.do(t, http.MethodGet, "/receive_alert", ""))
	if before["message"] != "Alert endpoint is working" || before["currentTime"] == "" {
		t.Fatalf("unexpected status %v", before)
	}

	time.Sleep(5 * time.Millisecond)
	raised := decode(t, env.do(t, http.MethodPost, "/receive_alert", ""))
	if raised["success"] != true || raised["message"] != "Alert received" {
		t.Fatalf("unexpected raise body %v", raised)
	}

	after := decode(t, env.do(t, http.MethodGet, "/receive_alert", ""))
	prev, _ := time.Parse(time.RFC3339Nano, before["lastAlert"].(string))
	next, _ := time.Parse(time.RFC3339Nano, after["lastAlert"].(string))
	if !next.After(prev) {
		t.Fatalf("lastAlert did not advance: %v -> %v", prev, next)
	}
	if after["lastAlert"] != raised["timestamp"] {
		t.Fatalf("status should report the raised timestamp: %v vs %v", after["lastAlert"], raised["timestamp"])
	}
}

func TestChat(t *testing.T) {
	env := newTestServer(t)

	w := env.do(t, http.MethodPost, "/gptchat", `{"messages":[]}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}

	w = env.do(t, http.MethodPost, "/gptchat", `{"messages":[{"role":"user","content":"hello"}]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", w.Code, w.Body.String())
	}
	if got, _ := decode(t, w)["content"].(string); !strings.Contains(got, "hello") {
		t.Fatalf("unexpected content %q", got)
	}
}

func TestMethodNotAllowedAndMetrics(t *testing.T) {
	env := newTestServer(t)

	if w := env.do(t, http.MethodDelete, "/mode", ""); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}

	env.do(t, http.MethodPost, "/message", `{"text":"hi"}`)
	w := env.do(t, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `clara_messages_appended_total{role="contact"} 1`) {
		t.Fatalf("expected message counter in metrics output")
	}
}
