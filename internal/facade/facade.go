// Package facade is the single speak entry point: it queues requests onto
// one worker goroutine, plays synthesized sentences in order while
// reporting typing updates, and degrades to an offline voice when the
// neural pipeline fails.
package facade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/example/go-voiceclone/internal/text"
	"github.com/example/go-voiceclone/internal/tts"
)

var (
	// ErrBusy is returned when the request queue is full.
	ErrBusy = errors.New("facade: busy")
	// ErrClosed is returned by Speak after Close.
	ErrClosed = errors.New("facade: closed")

	errOffline = errors.New("facade: speech pipeline offline")
)

// State is the dispatch mode.
type State int32

const (
	StateOnline State = iota
	StateOffline
)

func (s State) String() string {
	switch s {
	case StateOnline:
		return "online"
	case StateOffline:
		return "offline"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Synthesizer streams one chunk per sentence and closes out on return.
// *tts.Service satisfies it.
type Synthesizer interface {
	SynthesizeStream(ctx context.Context, req tts.Request, out chan<- tts.PCMChunk) error
}

// Player blocks until samples have been played.
type Player interface {
	Play(ctx context.Context, samples []float32, sampleRate int) error
}

// Update is one typing-animation step: the text spoken so far. Exactly one
// update per request has Final set, and the channel is closed after it.
type Update struct {
	RequestID string `json:"request_id"`
	Text      string `json:"text"`
	Final     bool   `json:"final"`
	Offline   bool   `json:"offline,omitempty"`
	Error     string `json:"error,omitempty"`
}

type Options struct {
	// Synth is the neural pipeline. Without one the facade starts offline.
	Synth   Synthesizer
	Player  Player
	Offline OfflineVoice
	// NoFallback finishes failed requests with the error instead of handing
	// the remaining text to the offline voice.
	NoFallback bool
	// QueueSize bounds pending requests; Speak returns ErrBusy beyond it.
	QueueSize int
	Volume    float64
	Rate      int
	// Defaults fills reference and style for Speak calls.
	Defaults func() tts.Request
	Logger   *slog.Logger
}

type job struct {
	id      string
	req     tts.Request
	text    string
	updates chan<- Update
}

// Facade serializes synthesis and playback on one worker.
type Facade struct {
	player   Player
	offline  OfflineVoice
	fallback bool
	defaults func() tts.Request
	logger   *slog.Logger

	mu     sync.RWMutex
	synth  Synthesizer
	closed bool

	state    atomic.Int32
	inFlight atomic.Int32
	volume   atomic.Uint64
	rate     atomic.Int32

	jobs   chan job
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New starts the worker. Call Close to stop it.
func New(opts Options) *Facade {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	queue := opts.QueueSize
	if queue <= 0 {
		queue = 1
	}

	player := opts.Player
	if player == nil {
		player = DiscardPlayer{}
	}

	offline := opts.Offline
	if offline == nil {
		offline = NewCannedVoice(0, logger)
	}

	ctx, cancel := context.WithCancel(context.Background())
	f := &Facade{
		player:   player,
		offline:  offline,
		fallback: !opts.NoFallback,
		defaults: opts.Defaults,
		logger:   logger,
		synth:    opts.Synth,
		jobs:     make(chan job, queue),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	if opts.Synth == nil {
		f.state.Store(int32(StateOffline))
	}

	volume := opts.Volume
	if volume == 0 {
		volume = 1
	}
	f.SetVolume(volume)
	f.SetRate(opts.Rate)

	go f.run()

	return f
}

func (f *Facade) State() State { return State(f.state.Load()) }

// Busy reports whether a request is queued or playing.
func (f *Facade) Busy() bool { return f.inFlight.Load() > 0 }

// SetVolume clamps v to [0, 1].
func (f *Facade) SetVolume(v float64) {
	f.volume.Store(math.Float64bits(min(max(v, 0), 1)))
}

func (f *Facade) Volume() float64 { return math.Float64frombits(f.volume.Load()) }

// SetRate sets the offline speaking rate in words per minute. Zero or
// negative selects DefaultRate.
func (f *Facade) SetRate(wpm int) {
	if wpm <= 0 {
		wpm = DefaultRate
	}
	f.rate.Store(int32(wpm))
}

func (f *Facade) Rate() int { return int(f.rate.Load()) }

// Reconfigure installs a neural pipeline and returns to Online. A nil synth
// forces Offline.
func (f *Facade) Reconfigure(synth Synthesizer) {
	f.mu.Lock()
	f.synth = synth
	f.mu.Unlock()

	if synth == nil {
		f.state.Store(int32(StateOffline))
		return
	}

	if State(f.state.Swap(int32(StateOnline))) == StateOffline {
		f.logger.Info("speech pipeline back online")
	}
}

// Speak queues text with the configured defaults.
func (f *Facade) Speak(input string, updates chan<- Update) (string, error) {
	var req tts.Request
	if f.defaults != nil {
		req = f.defaults()
	}
	req.Text = input

	return f.SpeakRequest(req, updates)
}

// SpeakRequest queues req and returns its id. updates may be nil; when set
// it receives the typing updates and is closed after the final one.
func (f *Facade) SpeakRequest(req tts.Request, updates chan<- Update) (string, error) {
	normalized, err := text.Normalize(req.Text)
	if err != nil {
		return "", err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return "", ErrClosed
	}

	j := job{id: uuid.NewString(), req: req, text: normalized, updates: updates}

	f.inFlight.Add(1)
	select {
	case f.jobs <- j:
		return j.id, nil
	default:
		f.inFlight.Add(-1)
		return "", ErrBusy
	}
}

// Close stops the worker after the current request. Queued requests get a
// final update carrying ErrClosed.
func (f *Facade) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		<-f.done
		return
	}
	f.closed = true
	f.mu.Unlock()

	f.cancel()
	<-f.done
}

func (f *Facade) run() {
	defer close(f.done)

	for {
		select {
		case j := <-f.jobs:
			f.process(j)
			f.inFlight.Add(-1)
		case <-f.ctx.Done():
			f.drain()
			return
		}
	}
}

func (f *Facade) drain() {
	for {
		select {
		case j := <-f.jobs:
			r := newReporter(f.ctx, j)
			r.finish(j.text, false, ErrClosed)
			f.inFlight.Add(-1)
		default:
			return
		}
	}
}

func (f *Facade) currentSynth() Synthesizer {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.synth
}

func (f *Facade) process(j job) {
	r := newReporter(f.ctx, j)
	logger := f.logger.With(slog.String("request_id", j.id))

	defer func() {
		if p := recover(); p != nil {
			logger.Error("speak request panicked", slog.Any("panic", p))
			r.finish(r.spoken(), false, fmt.Errorf("facade: panic: %v", p))
		}
	}()

	synth := f.currentSynth()
	if f.State() == StateOffline || synth == nil {
		if !f.fallback {
			r.finish("", false, errOffline)
			return
		}
		f.speakOffline(r, j.text, j.text, logger)
		return
	}

	err := f.speakNeural(r, synth, j, logger)
	switch {
	case err == nil:
		r.finish(j.text, false, nil)
	case errors.Is(err, context.Canceled):
		r.finish(j.text, false, err)
	case errors.Is(err, tts.ErrNoAudio):
		logger.Warn("neural synthesis produced no audio, using offline voice")
		f.fallBack(r, j.text, err, logger)
	default:
		f.goOffline(err)
		f.fallBack(r, j.text, err, logger)
	}
}

// goOffline logs the first failure that takes the pipeline offline.
func (f *Facade) goOffline(err error) {
	if f.state.CompareAndSwap(int32(StateOnline), int32(StateOffline)) {
		f.logger.Error("speech pipeline failed, switching to offline voice", slog.String("error", err.Error()))
	}
}

func (f *Facade) speakNeural(r *reporter, synth Synthesizer, j job, logger *slog.Logger) error {
	chunks := make(chan tts.PCMChunk)
	errc := make(chan error, 1)

	go func() {
		var err error
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("facade: synthesis panic: %v", p)
			}
			errc <- err
		}()
		err = synth.SynthesizeStream(f.ctx, j.req, chunks)
	}()

	for {
		select {
		case c, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			f.play(c, logger)
			r.advance(c.Sentence)
		case err := <-errc:
			return err
		}
	}
}

func (f *Facade) play(c tts.PCMChunk, logger *slog.Logger) {
	samples := scale(c.Samples, f.Volume())

	if err := f.safePlay(samples, c.SampleRate); err != nil {
		logger.Warn("playback failed", slog.Int("chunk", c.Index), slog.String("error", err.Error()))
	}
}

func (f *Facade) safePlay(samples []float32, rate int) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("facade: playback panic: %v", p)
		}
	}()

	return f.player.Play(f.ctx, samples, rate)
}

func (f *Facade) fallBack(r *reporter, full string, cause error, logger *slog.Logger) {
	if !f.fallback {
		r.finish(r.spoken(), false, cause)
		return
	}

	f.speakOffline(r, full, r.remaining(), logger)
}

func (f *Facade) speakOffline(r *reporter, full, remaining string, logger *slog.Logger) {
	if strings.TrimSpace(remaining) == "" {
		r.finish(full, true, nil)
		return
	}

	shown, err := f.offline.Say(f.ctx, remaining, Prosody{Volume: f.Volume(), Rate: f.Rate()})
	if err != nil {
		logger.Warn("offline voice failed", slog.String("error", err.Error()))
		shown = Truncate(remaining, DefaultTruncateChars)
	}

	r.finish(joinSpoken(r.spoken(), shown), true, nil)
}

func scale(samples []float32, volume float64) []float32 {
	if volume >= 1 {
		return samples
	}

	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = s * float32(volume)
	}

	return out
}

func joinSpoken(spoken, rest string) string {
	if spoken == "" {
		return rest
	}

	return spoken + " " + rest
}
