package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/PabloGalante/clara-companion/internal/app/alert"
	"github.com/PabloGalante/clara-companion/internal/app/assistant"
	"github.com/PabloGalante/clara-companion/internal/app/messaging"
	"github.com/PabloGalante/clara-companion/internal/app/mode"
	"github.com/PabloGalante/clara-companion/internal/app/summary"
	"github.com/PabloGalante/clara-companion/internal/domain"
	"github.com/PabloGalante/clara-companion/internal/observability"
)

// isoMillis matches the timestamps browsers produce with toISOString.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

const unexpectedError = "An unexpected error occurred"

type Services struct {
	Messages  *messaging.Service
	Mode      *mode.Service
	Alerts    *alert.Service
	Summaries *summary.Service
	Assistant *assistant.Service
}

type Options struct {
	Metrics        *observability.Metrics
	RateLimitRPS   float64
	RateLimitBurst int
}

type Server struct {
	svc     Services
	metrics *observability.Metrics
}

func NewServer(svc Services, opts Options) http.Handler {
	s := &Server{svc: svc, metrics: opts.Metrics}

	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		methodNotAllowed(w)
	})

	r.HandleFunc("/healthz", handleHealthz).Methods(http.MethodGet)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics.Handler()).Methods(http.MethodGet)
	}

	// /set_mode and /receive_message are the older names of the same routes.
	for _, path := range []string{"/mode", "/set_mode"} {
		r.HandleFunc(path, s.handleSetMode).Methods(http.MethodPost)
		r.HandleFunc(path, s.handleGetMode).Methods(http.MethodGet)
	}
	for _, path := range []string{"/message", "/receive_message"} {
		r.HandleFunc(path, s.handleReceiveMessage).Methods(http.MethodPost)
		r.HandleFunc(path, s.handleListMessages).Methods(http.MethodGet)
	}

	r.HandleFunc("/send_message", s.handleSendMessage).Methods(http.MethodPost)
	r.HandleFunc("/imessage", s.handleDirectMessage).Methods(http.MethodPost)
	r.HandleFunc("/summarize", s.handleSummarize).Methods(http.MethodPost)
	r.HandleFunc("/summaries", s.handleListSummaries).Methods(http.MethodGet)
	r.HandleFunc("/receive_alert", s.handleRaiseAlert).Methods(http.MethodPost)
	r.HandleFunc("/receive_alert", s.handleAlertStatus).Methods(http.MethodGet)
	r.HandleFunc("/gptchat", s.handleChat).Methods(http.MethodPost)

	r.Use(withRequestLogging(opts.Metrics))

	return chainMiddlewares(r,
		withRateLimit(opts.RateLimitRPS, opts.RateLimitBurst),
		withRecovery,
		withRequestID,
		withCORS,
	)
}

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

// Fields are decoded as any so a wrong JSON type is reported as a
// validation error instead of a decode failure.
type setModeRequest struct {
	Agent any `json:"agent"`
}

type modeResponse struct {
	Success bool        `json:"success,omitempty"`
	Mode    domain.Mode `json:"mode"`
}

type receiveMessageRequest struct {
	Text any    `json:"text"`
	Role string `json:"role"`
}

type receiveMessageResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	MessageID string `json:"messageId"`
}

type listMessagesResponse struct {
	Messages []*domain.Message `json:"messages"`
}

type sendMessageRequest struct {
	Recipient string `json:"recipient"`
	Message   string `json:"message"`
	Role      string `json:"role"`
}

type summarizeRequest struct {
	Messages []domain.SummaryLine `json:"messages"`
}

type summarizeResponse struct {
	Success bool   `json:"success"`
	Summary string `json:"summary"`
}

type listSummariesResponse struct {
	Summaries []*domain.Summary `json:"summaries"`
}

type raiseAlertResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

type alertStatusResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	LastAlert   string `json:"lastAlert"`
	CurrentTime string `json:"currentTime"`
}

type chatRequest struct {
	Messages []domain.ChatMessage `json:"messages"`
}

type chatResponse struct {
	Content string `json:"content"`
}

// ─────────────────────────────────────────────
// Concrete handlers
// ─────────────────────────────────────────────

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	const invalid = `Invalid request body. "agent" field must be a boolean.`

	var req setModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, invalid)
		return
	}
	agent, ok := req.Agent.(bool)
	if !ok {
		badRequest(w, invalid)
		return
	}

	m, err := s.svc.Mode.Set(r.Context(), agent)
	if err != nil {
		writeError(w, r, err, "Failed to set mode", false)
		return
	}

	writeJSON(w, http.StatusOK, modeResponse{Success: true, Mode: m})
}

func (s *Server) handleGetMode(w http.ResponseWriter, r *http.Request) {
	m, err := s.svc.Mode.Get(r.Context())
	if err != nil {
		writeError(w, r, err, "Failed to get mode", false)
		return
	}
	writeJSON(w, http.StatusOK, modeResponse{Mode: m})
}

func (s *Server) handleReceiveMessage(w http.ResponseWriter, r *http.Request) {
	var req receiveMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	text, ok := req.Text.(string)
	if !ok {
		badRequest(w, "Message text is required and must be a string")
		return
	}

	msg, err := s.svc.Messages.Append(r.Context(), messaging.AppendInput{Text: text, Role: req.Role})
	if err != nil {
		writeError(w, r, err, "Failed to process message", false)
		return
	}

	writeJSON(w, http.StatusOK, receiveMessageResponse{
		Success:   true,
		Message:   "Message received and added to chat",
		MessageID: string(msg.ID),
	})
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.svc.Messages.List(r.Context())
	if err != nil {
		writeError(w, r, err, "Failed to list messages", false)
		return
	}
	if msgs == nil {
		msgs = []*domain.Message{}
	}
	writeJSON(w, http.StatusOK, listMessagesResponse{Messages: msgs})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "invalid JSON body"})
		return
	}

	out, err := s.svc.Messages.Send(r.Context(), messaging.SendInput{
		Recipient: req.Recipient,
		Message:   req.Message,
		Role:      req.Role,
	})
	if err != nil {
		writeError(w, r, err, unexpectedError, true)
		return
	}

	// Relay fields are merged last and win on key collisions.
	resp := map[string]any{
		"success":   true,
		"messageId": string(out.Message.ID),
	}
	for k, v := range out.Relay {
		resp[k] = v
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleDirectMessage texts through the relay without touching the log.
func (s *Server) handleDirectMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "invalid JSON body"})
		return
	}

	relayResp, err := s.svc.Messages.Relay(r.Context(), req.Recipient, req.Message)
	if err != nil {
		writeError(w, r, err, unexpectedError, true)
		return
	}

	resp := map[string]any{"success": true}
	for k, v := range relayResp {
		resp[k] = v
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	var req summarizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "Valid messages array is required"})
		return
	}

	text, err := s.svc.Summaries.Summarize(r.Context(), req.Messages)
	if err != nil {
		writeError(w, r, err, unexpectedError, true)
		return
	}
	writeJSON(w, http.StatusOK, summarizeResponse{Success: true, Summary: text})
}

func (s *Server) handleListSummaries(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	sums, err := s.svc.Summaries.List(r.Context(), limit)
	if err != nil {
		writeError(w, r, err, "Failed to list summaries", false)
		return
	}
	if sums == nil {
		sums = []*domain.Summary{}
	}
	writeJSON(w, http.StatusOK, listSummariesResponse{Summaries: sums})
}

func (s *Server) handleRaiseAlert(w http.ResponseWriter, r *http.Request) {
	at, err := s.svc.Alerts.Raise(r.Context())
	if err != nil {
		writeError(w, r, err, "Failed to record alert", true)
		return
	}
	writeJSON(w, http.StatusOK, raiseAlertResponse{
		Success:   true,
		Message:   "Alert received",
		Timestamp: formatTime(at),
	})
}

func (s *Server) handleAlertStatus(w http.ResponseWriter, r *http.Request) {
	last, err := s.svc.Alerts.Status(r.Context())
	if err != nil {
		writeError(w, r, err, "Failed to read alert status", true)
		return
	}
	writeJSON(w, http.StatusOK, alertStatusResponse{
		Success:     true,
		Message:     "Alert endpoint is working",
		LastAlert:   formatTime(last),
		CurrentTime: formatTime(s.svc.Alerts.Now()),
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "Messages are required and must be an array")
		return
	}

	content, err := s.svc.Assistant.Chat(r.Context(), req.Messages)
	if err != nil {
		writeError(w, r, err, unexpectedError, false)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Content: content})
}

// ─────────────────────────────────────────────
// HTTP Helpers
// ─────────────────────────────────────────────

func formatTime(t time.Time) string {
	return t.UTC().Format(isoMillis)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error": msg,
	})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{
		"error": "method not allowed",
	})
}

// writeError maps err to a status and body. Errors that are not
// domain errors never leak their text; fallback is sent instead.
// withSuccess adds "success": false for the routes whose bodies carry it.
func writeError(w http.ResponseWriter, r *http.Request, err error, fallback string, withSuccess bool) {
	status := http.StatusInternalServerError
	msg := fallback

	var de *domain.Error
	if errors.As(err, &de) && de.Kind != domain.KindUnexpected {
		status = de.HTTPStatus()
		msg = de.Message
	}

	log := observability.LoggerFromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "status", status, "error", err)
	} else {
		log.Warn("request rejected", "status", status, "error", err)
	}

	body := map[string]any{"error": msg}
	if withSuccess {
		body["success"] = false
	}
	writeJSON(w, status, body)
}
