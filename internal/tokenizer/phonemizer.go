package tokenizer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/example/go-voiceclone/internal/symbols"
	"github.com/example/go-voiceclone/internal/text"
)

// ErrPhonemizerUnavailable is returned when the phonemizer binary is missing.
var ErrPhonemizerUnavailable = errors.New("tokenizer: phonemizer unavailable")

// Phonemizer converts text in one language to an IPA string.
type Phonemizer interface {
	Phonemize(ctx context.Context, text, language string) (string, error)
}

type language struct {
	mark  string
	voice string
}

var languages = map[string]language{
	"en":    {mark: "EN", voice: "en-us"},
	"en-us": {mark: "EN", voice: "en-us"},
	"en-gb": {mark: "EN", voice: "en-gb"},
	"zh":    {mark: "ZH", voice: "cmn"},
	"ja":    {mark: "JA", voice: "ja"},
	"ko":    {mark: "KO", voice: "ko"},
	"fr":    {mark: "FR", voice: "fr-fr"},
	"de":    {mark: "DE", voice: "de"},
	"es":    {mark: "ES", voice: "es"},
}

func lookupLanguage(code string) language {
	if l, ok := languages[strings.ToLower(code)]; ok {
		return l
	}

	return languages["en"]
}

// EspeakPhonemizer shells out to espeak-ng for IPA output.
type EspeakPhonemizer struct {
	Binary  string
	Timeout time.Duration

	once     sync.Once
	resolved string
	err      error
}

// NewEspeakPhonemizer returns a phonemizer for binary ("espeak-ng" when empty).
func NewEspeakPhonemizer(binary string) *EspeakPhonemizer {
	if binary == "" {
		binary = "espeak-ng"
	}

	return &EspeakPhonemizer{Binary: binary, Timeout: 5 * time.Second}
}

// Available resolves the binary on PATH once.
func (e *EspeakPhonemizer) Available() error {
	e.once.Do(func() {
		e.resolved, e.err = exec.LookPath(e.Binary)
		if e.err != nil {
			e.err = fmt.Errorf("%w: %s: %v", ErrPhonemizerUnavailable, e.Binary, e.err)
		}
	})

	return e.err
}

// Phonemize runs espeak-ng with stress marks enabled.
func (e *EspeakPhonemizer) Phonemize(ctx context.Context, input, lang string) (string, error) {
	if err := e.Available(); err != nil {
		return "", err
	}

	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, e.resolved, "-q", "--ipa", "-v", lookupLanguage(lang).voice, "--stdin")
	cmd.Stdin = strings.NewReader(input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("espeak-ng failed: %w, stderr: %s", err, strings.TrimSpace(stderr.String()))
	}

	return text.CollapseWhitespace(stdout.String()), nil
}

var (
	camelBoundary = regexp.MustCompile(`([a-z])([A-Z])`)
	markedSpan    = regexp.MustCompile(`\[([A-Z]{2})\](.*?)\[([A-Z]{2})\]`)
)

// PhonemizerStrategy brackets text with a language marker, cleans each
// marked span, phonemizes it and maps the IPA characters onto the table.
type PhonemizerStrategy struct {
	Phonemizer Phonemizer
	Symbols    *symbols.Table
	Cleaners   []string
}

func (s *PhonemizerStrategy) Name() string { return "phonemizer" }

func (s *PhonemizerStrategy) Attempt(input, lang string) (Sequence, error) {
	marked := MarkLanguage(input, lookupLanguage(lang).mark)

	var ids []int

	for _, m := range markedSpan.FindAllStringSubmatch(marked, -1) {
		if m[1] != m[3] {
			continue
		}

		span, err := text.Clean(m[2], s.Cleaners)
		if err != nil {
			return Sequence{}, err
		}

		if span == "" {
			continue
		}

		ipa, err := s.Phonemizer.Phonemize(context.Background(), span, markLanguage(m[1]))
		if err != nil {
			return Sequence{}, err
		}

		if len(ids) > 0 && s.Symbols.Has(" ") {
			ids = append(ids, mustID(s.Symbols, " "))
		}

		for _, r := range ipa {
			if id, ok := s.Symbols.ID(string(r)); ok {
				ids = append(ids, id)
			}
		}
	}

	return Sequence{IDs: ids}, nil
}

// MarkLanguage splits camelCase boundaries and wraps text in [MARK] tags
// unless they are already present.
func MarkLanguage(input, mark string) string {
	core := camelBoundary.ReplaceAllString(input, "$1 $2")
	tag := "[" + mark + "]"

	if !strings.HasPrefix(core, tag) {
		core = tag + core
	}

	if !strings.HasSuffix(core, tag) {
		core += tag
	}

	return core
}

func markLanguage(mark string) string {
	for code, l := range languages {
		if l.mark == mark && len(code) == 2 {
			return code
		}
	}

	return "en"
}

func mustID(t *symbols.Table, s string) int {
	id, _ := t.ID(s)
	return id
}
