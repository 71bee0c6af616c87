// Package server exposes the synthesizer, the speak facade and saved voice
// engines over HTTP.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/example/go-voiceclone/internal/audio"
	"github.com/example/go-voiceclone/internal/engine"
	"github.com/example/go-voiceclone/internal/facade"
	"github.com/example/go-voiceclone/internal/text"
	"github.com/example/go-voiceclone/internal/tts"
)

// ParseLogLevel converts a case-insensitive level string to slog.Level.
// An empty string returns slog.LevelInfo. Unknown strings return an error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (want debug|info|warn|error)", s)
	}
}

// Synthesizer renders a whole request. *tts.Service satisfies it.
type Synthesizer interface {
	SynthesizeAudio(ctx context.Context, req tts.Request) (*tts.Result, error)
}

// Streamer sends one chunk per sentence and closes out on return.
type Streamer interface {
	SynthesizeStream(ctx context.Context, req tts.Request, out chan<- tts.PCMChunk) error
}

// VoiceLister returns the list of available voices.
type VoiceLister interface {
	ListVoices() []tts.Voice
}

// Speaker queues text for playback. *facade.Facade satisfies it.
type Speaker interface {
	SpeakRequest(req tts.Request, updates chan<- facade.Update) (string, error)
	State() facade.State
	Busy() bool
}

// Engines reads saved voice engines. *engine.Store satisfies it.
type Engines interface {
	List() ([]string, error)
	Read(name string) (engine.Record, error)
	Load(name string) (engine.VoiceConfig, error)
	Current() (engine.VoiceConfig, bool)
}

type options struct {
	maxTextBytes   int
	workers        int
	requestTimeout time.Duration
	logger         *slog.Logger
	streamer       Streamer
	speaker        Speaker
	engines        Engines
	metrics        *Metrics
	anyOrigin      bool
	referenceDir   string
}

func defaultOptions() options {
	return options{
		maxTextBytes:   4096,
		workers:        1,
		requestTimeout: 60 * time.Second,
		logger:         slog.Default(),
	}
}

// Option configures the HTTP handler.
type Option func(*options)

// WithMaxTextBytes sets the maximum allowed text length in bytes.
func WithMaxTextBytes(n int) Option {
	return func(o *options) { o.maxTextBytes = n }
}

// WithWorkers sets the maximum number of concurrent synthesis calls. Zero
// disables the limit.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithRequestTimeout sets the per-request synthesis deadline.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.requestTimeout = d }
}

// WithLogger sets the slog.Logger used for request logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithStreamer enables POST /v1/tts/stream.
func WithStreamer(s Streamer) Option {
	return func(o *options) { o.streamer = s }
}

// WithSpeaker enables POST /v1/speak and the /v1/speak/ws update stream.
func WithSpeaker(s Speaker) Option {
	return func(o *options) { o.speaker = s }
}

// WithEngines enables the /v1/engines routes.
func WithEngines(e Engines) Option {
	return func(o *options) { o.engines = e }
}

// WithMetrics instruments handlers and serves /metrics.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithReferenceDir lets requests name reference files inside dir. Without
// it only manifest voice ids are accepted.
func WithReferenceDir(dir string) Option {
	return func(o *options) { o.referenceDir = dir }
}

// WithAnyOrigin lets browsers on other origins open the websocket.
func WithAnyOrigin(allow bool) Option {
	return func(o *options) { o.anyOrigin = allow }
}

type handler struct {
	synth    Synthesizer
	voices   VoiceLister
	opts     options
	sem      chan struct{}
	log      *slog.Logger
	upgrader websocket.Upgrader
}

// NewHandler returns the router. Routes whose dependency was not supplied
// answer 501.
func NewHandler(synth Synthesizer, voices VoiceLister, optFns ...Option) http.Handler {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.logger == nil {
		opts.logger = slog.Default()
	}

	h := &handler{
		synth:  synth,
		voices: voices,
		opts:   opts,
		log:    opts.logger,
	}
	if opts.workers > 0 {
		h.sem = make(chan struct{}, opts.workers)
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}

	r := chi.NewRouter()
	r.Use(h.requestID)
	if opts.metrics != nil {
		r.Use(h.instrument)
		r.Get("/metrics", opts.metrics.Handler().ServeHTTP)
	}

	r.Get("/health", h.handleHealth)
	r.Get("/voices", h.handleVoices)
	r.Post("/v1/tts", h.handleTTS)
	r.Post("/v1/tts/stream", h.handleTTSStream)
	r.Post("/v1/speak", h.handleSpeak)
	r.Get("/v1/speak/ws", h.handleSpeakWS)
	r.Get("/v1/engines", h.handleEngines)
	r.Get("/v1/engines/current", h.handleCurrentEngine)
	r.Get("/v1/engines/{name}", h.handleEngine)
	r.Post("/v1/engines/{name}/load", h.handleLoadEngine)

	return r
}

type ctxKey struct{}

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

func (h *handler) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

// RequestID returns the id assigned to the request carried by ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hj.Hijack()
}

// Unwrap lets http.ResponseController and the websocket upgrader reach
// the underlying writer.
func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

func (h *handler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		h.opts.metrics.Requests.WithLabelValues(route, fmt.Sprint(rec.status)).Inc()
	})
}

func (h *handler) checkOrigin(r *http.Request) bool {
	if h.opts.anyOrigin {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	origin = strings.TrimPrefix(strings.TrimPrefix(origin, "http://"), "https://")
	return strings.EqualFold(origin, r.Host)
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{
		"status":  "ok",
		"version": buildVersion(),
	}
	if h.opts.speaker != nil {
		body["speech"] = h.opts.speaker.State().String()
		body["busy"] = h.opts.speaker.Busy()
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *handler) handleVoices(w http.ResponseWriter, _ *http.Request) {
	var voices []tts.Voice
	if h.voices != nil {
		voices = h.voices.ListVoices()
	}
	if voices == nil {
		voices = []tts.Voice{}
	}
	writeJSON(w, http.StatusOK, voices)
}

// ttsRequest is the JSON body of the synthesis and speak routes.
type ttsRequest struct {
	Text        string  `json:"text"`
	Voice       string  `json:"voice,omitempty"`
	Reference   string  `json:"reference,omitempty"`
	Style       string  `json:"style,omitempty"`
	Language    string  `json:"language,omitempty"`
	LengthScale float64 `json:"length_scale,omitempty"`
	NoiseScale  float64 `json:"noise_scale,omitempty"`
	NoiseScaleW float64 `json:"noise_scale_w,omitempty"`
}

func (r ttsRequest) toRequest() tts.Request {
	return tts.Request{
		Text:        r.Text,
		Voice:       r.Voice,
		Reference:   r.Reference,
		Style:       r.Style,
		Language:    r.Language,
		LengthScale: r.LengthScale,
		NoiseScale:  r.NoiseScale,
		NoiseScaleW: r.NoiseScaleW,
	}
}

// decodeRequest writes the error response itself and reports whether the
// handler should continue.
func (h *handler) decodeRequest(w http.ResponseWriter, r *http.Request) (ttsRequest, bool) {
	var req ttsRequest

	if r.Body == nil || r.Body == http.NoBody {
		writeError(w, http.StatusBadRequest, "request body is required")
		return req, false
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return req, false
	}

	if status, err := h.checkRequest(&req); err != nil {
		writeError(w, status, err.Error())
		return req, false
	}

	return req, true
}

// checkRequest validates text and scales and replaces Reference with the
// resolved file inside the reference directory.
func (h *handler) checkRequest(req *ttsRequest) (int, error) {
	if strings.TrimSpace(req.Text) == "" {
		return http.StatusBadRequest, errors.New("text field is required")
	}

	if len(req.Text) > h.opts.maxTextBytes {
		return http.StatusRequestEntityTooLarge,
			fmt.Errorf("text exceeds maximum size of %d bytes", h.opts.maxTextBytes)
	}

	if err := req.toRequest().Validate(); err != nil {
		return http.StatusBadRequest, err
	}

	if req.Reference != "" {
		path, err := h.resolveReference(req.Reference)
		if err != nil {
			return http.StatusBadRequest, err
		}
		req.Reference = path
	}

	return 0, nil
}

var errReferenceDisabled = errors.New("reference paths are not accepted; use a voice id")

// resolveReference maps ref, absolute or relative to the reference
// directory, to a regular file that stays inside that directory after
// symlinks are followed.
func (h *handler) resolveReference(ref string) (string, error) {
	if h.opts.referenceDir == "" {
		return "", errReferenceDisabled
	}

	root, err := filepath.Abs(h.opts.referenceDir)
	if err == nil {
		root, err = filepath.EvalSymlinks(root)
	}
	if err != nil {
		return "", fmt.Errorf("reference directory: %w", err)
	}

	p := filepath.Clean(ref)
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}

	resolved, err := filepath.EvalSymlinks(p)
	if err != nil {
		return "", fmt.Errorf("reference %q not found", ref)
	}

	rel, err := filepath.Rel(root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("reference %q is outside the reference directory", ref)
	}

	fi, err := os.Stat(resolved)
	if err != nil || !fi.Mode().IsRegular() {
		return "", fmt.Errorf("reference %q is not a regular file", ref)
	}

	return resolved, nil
}

// acquire takes a worker slot, honouring cancellation while waiting.
func (h *handler) acquire(w http.ResponseWriter, r *http.Request) (func(), bool) {
	if h.sem == nil {
		return func() {}, true
	}

	select {
	case h.sem <- struct{}{}:
	case <-r.Context().Done():
		writeError(w, http.StatusServiceUnavailable, "request cancelled while waiting for worker")
		return nil, false
	}

	if h.opts.metrics != nil {
		h.opts.metrics.InFlight.Inc()
	}

	return func() {
		if h.opts.metrics != nil {
			h.opts.metrics.InFlight.Dec()
		}
		<-h.sem
	}, true
}

func (h *handler) handleTTS(w http.ResponseWriter, r *http.Request) {
	if h.synth == nil {
		writeError(w, http.StatusNotImplemented, "synthesis is not configured")
		return
	}

	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	release, ok := h.acquire(w, r)
	if !ok {
		return
	}
	defer release()

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.requestTimeout)
	defer cancel()

	logAttrs := []any{
		slog.String("request_id", RequestID(r.Context())),
		slog.String("voice", req.Voice),
		slog.Int("text_len", len(req.Text)),
	}

	start := time.Now()
	res, err := h.synth.SynthesizeAudio(ctx, req.toRequest())
	elapsed := time.Since(start)
	logAttrs = append(logAttrs, slog.Int64("duration_ms", elapsed.Milliseconds()))

	if err != nil {
		h.writeSynthesisError(w, r, err, logAttrs)
		return
	}

	wav, err := audio.EncodeWAV(res.Samples, res.SampleRate)
	if err != nil {
		h.log.ErrorContext(r.Context(), "wav encode failed", append(logAttrs, slog.String("error", err.Error()))...)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	audioDur := time.Duration(float64(len(res.Samples)) / float64(res.SampleRate) * float64(time.Second))
	if h.opts.metrics != nil {
		h.opts.metrics.ObserveSynthesis(elapsed, audioDur)
	}

	h.log.InfoContext(r.Context(), "synthesis complete",
		append(logAttrs,
			slog.Int("sentences", len(res.Sentences)),
			slog.Int("speaker_id", res.SpeakerID),
			slog.Int("wav_bytes", len(wav)),
		)...,
	)

	w.Header().Set("Content-Type", "audio/wav")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(wav)
}

func (h *handler) writeSynthesisError(w http.ResponseWriter, r *http.Request, err error, attrs []any) {
	attrs = append(attrs, slog.String("error", err.Error()))

	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		h.log.WarnContext(r.Context(), "synthesis timed out", attrs...)
		writeError(w, http.StatusGatewayTimeout, "synthesis timed out")
	case errors.Is(err, tts.ErrInvalidRequest):
		h.log.WarnContext(r.Context(), "synthesis request rejected", attrs...)
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, tts.ErrNoAudio) || errors.Is(err, text.ErrEmptyText):
		h.log.WarnContext(r.Context(), "synthesis produced no audio", attrs...)
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.log.ErrorContext(r.Context(), "synthesis failed", attrs...)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// handleTTSStream writes a WAV header with an open-ended length followed by
// PCM16 as each sentence finishes.
func (h *handler) handleTTSStream(w http.ResponseWriter, r *http.Request) {
	if h.opts.streamer == nil {
		writeError(w, http.StatusNotImplemented, "streaming is not configured")
		return
	}

	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	release, ok := h.acquire(w, r)
	if !ok {
		return
	}
	defer release()

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.requestTimeout)
	defer cancel()

	chunks := make(chan tts.PCMChunk)
	errc := make(chan error, 1)
	go func() { errc <- h.opts.streamer.SynthesizeStream(ctx, req.toRequest(), chunks) }()

	flusher, _ := w.(http.Flusher)
	stream := audio.NewWAVStream(w)

	for c := range chunks {
		if !stream.Started() {
			w.Header().Set("Content-Type", "audio/wav")
			w.WriteHeader(http.StatusOK)
		}
		if err := stream.Write(c.Samples, c.SampleRate); err != nil {
			cancel()
			continue
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	err := <-errc
	if err == nil {
		return
	}

	if !stream.Started() {
		h.writeSynthesisError(w, r, err, []any{slog.String("request_id", RequestID(r.Context()))})
		return
	}

	h.log.WarnContext(r.Context(), "stream ended early",
		slog.String("request_id", RequestID(r.Context())),
		slog.String("error", err.Error()),
	)
}

func (h *handler) handleSpeak(w http.ResponseWriter, r *http.Request) {
	if h.opts.speaker == nil {
		writeError(w, http.StatusNotImplemented, "speech playback is not configured")
		return
	}

	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	id, err := h.opts.speaker.SpeakRequest(req.toRequest(), nil)
	h.countSpeak(err)
	if err != nil {
		writeSpeakError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"request_id": id,
		"state":      h.opts.speaker.State().String(),
	})
}

func (h *handler) countSpeak(err error) {
	if h.opts.metrics == nil {
		return
	}

	result := "accepted"
	switch {
	case errors.Is(err, facade.ErrBusy):
		result = "busy"
	case err != nil:
		result = "error"
	}
	h.opts.metrics.SpeakRequests.WithLabelValues(result).Inc()
}

func writeSpeakError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, facade.ErrBusy):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, facade.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, text.ErrEmptyText):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *handler) handleEngines(w http.ResponseWriter, _ *http.Request) {
	if h.opts.engines == nil {
		writeError(w, http.StatusNotImplemented, "engine store is not configured")
		return
	}

	names, err := h.opts.engines.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if names == nil {
		names = []string{}
	}

	writeJSON(w, http.StatusOK, names)
}

func (h *handler) handleEngine(w http.ResponseWriter, r *http.Request) {
	if h.opts.engines == nil {
		writeError(w, http.StatusNotImplemented, "engine store is not configured")
		return
	}

	rec, err := h.opts.engines.Read(chi.URLParam(r, "name"))
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

func (h *handler) handleCurrentEngine(w http.ResponseWriter, _ *http.Request) {
	if h.opts.engines == nil {
		writeError(w, http.StatusNotImplemented, "engine store is not configured")
		return
	}

	cfg, ok := h.opts.engines.Current()
	if !ok {
		writeError(w, http.StatusNotFound, engine.ErrNoVoice.Error())
		return
	}

	writeJSON(w, http.StatusOK, cfg)
}

func (h *handler) handleLoadEngine(w http.ResponseWriter, r *http.Request) {
	if h.opts.engines == nil {
		writeError(w, http.StatusNotImplemented, "engine store is not configured")
		return
	}

	name := chi.URLParam(r, "name")
	cfg, err := h.opts.engines.Load(name)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	h.log.InfoContext(r.Context(), "engine loaded",
		slog.String("request_id", RequestID(r.Context())),
		slog.String("engine", name),
		slog.String("voice", cfg.VoiceName),
	)

	writeJSON(w, http.StatusOK, cfg)
}

func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, engine.ErrInvalidName):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
