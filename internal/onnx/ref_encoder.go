package onnx

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/example/go-voiceclone/internal/config"
	"github.com/example/go-voiceclone/internal/runtime/tensor"
)

const (
	defaultRefInput  = "spec"
	defaultRefOutput = "g"
)

// graphRunner executes one loaded graph.
type graphRunner interface {
	Run(ctx context.Context, inputs map[string]*Tensor) (map[string]*Tensor, error)
	Close()
}

type RefEncoderOptions struct {
	GraphPath string
	Runtime   config.RuntimeConfig
	// SpecChannels is the input height when the sidecar leaves it symbolic.
	SpecChannels int
	InputName    string
	OutputName   string
}

// RefEncoder runs an exported reference encoder graph mapping a spectrogram
// [1, T, bins] to an embedding [1, gin].
type RefEncoder struct {
	mu     sync.Mutex
	runner graphRunner
	name   string
	input  string
	output string
	bins   int
}

func NewRefEncoder(opts RefEncoderOptions) (*RefEncoder, error) {
	session, err := LoadSession(opts.GraphPath)
	if err != nil {
		return nil, err
	}

	info, err := DetectRuntime(opts.Runtime)
	if err != nil {
		return nil, err
	}

	runner, err := openGraph(session, info.LibraryPath)
	if err != nil {
		return nil, err
	}

	enc, err := newRefEncoder(session, runner, opts)
	if err != nil {
		runner.Close()
		return nil, err
	}

	return enc, nil
}

func newRefEncoder(s Session, r graphRunner, opts RefEncoderOptions) (*RefEncoder, error) {
	enc := &RefEncoder{runner: r, name: s.Name, input: opts.InputName, output: opts.OutputName, bins: opts.SpecChannels}

	if enc.input == "" {
		enc.input = defaultRefInput
		if len(s.Inputs) > 0 {
			enc.input = s.Inputs[0].Name
		}
	}
	if enc.output == "" {
		enc.output = defaultRefOutput
		if len(s.Outputs) > 0 {
			enc.output = s.Outputs[0].Name
		}
	}

	for _, in := range s.Inputs {
		if in.Name != enc.input {
			continue
		}
		fixed := in.StaticDim(-1)
		if fixed > 0 && enc.bins > 0 && fixed != enc.bins {
			return nil, fmt.Errorf("onnx ref encoder %q expects %d bins, configured %d", s.Name, fixed, enc.bins)
		}
		if fixed > 0 {
			enc.bins = fixed
		}
	}

	if enc.bins <= 0 {
		return nil, fmt.Errorf("onnx ref encoder %q: unknown spectrogram height", s.Name)
	}

	return enc, nil
}

func (e *RefEncoder) SpecChannels() int { return e.bins }

// EmbedSpectrogram runs the graph on spec [T, bins].
func (e *RefEncoder) EmbedSpectrogram(spec *tensor.Tensor) ([]float32, error) {
	if spec == nil || spec.Rank() != 2 || int(spec.Dim(1)) != e.bins {
		return nil, fmt.Errorf("onnx ref encoder expects [T, %d] spectrogram", e.bins)
	}

	in, err := Float32Tensor(spec.RawData(), []int64{1, spec.Dim(0), spec.Dim(1)})
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.runner == nil {
		return nil, errors.New("onnx ref encoder is closed")
	}

	outputs, err := e.runner.Run(context.Background(), map[string]*Tensor{e.input: in})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.name, err)
	}

	out, ok := outputs[e.output]
	if !ok && len(outputs) == 1 {
		for _, v := range outputs {
			out, ok = v, true
		}
	}
	if !ok {
		return nil, fmt.Errorf("%s: missing %q in output", e.name, e.output)
	}

	return out.Float32s()
}

// Close releases the runtime session. Safe to call multiple times.
func (e *RefEncoder) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.runner != nil {
		e.runner.Close()
		e.runner = nil
	}
}
