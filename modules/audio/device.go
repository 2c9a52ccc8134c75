package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// Device is where played samples go and captured samples come from.
type Device interface {
	Write(samples []float64) error
	// Read returns up to n samples, and io.EOF once nothing is left.
	Read(n int) ([]float64, error)
	Close() error
}

// Devices opens devices for players and captures.
type Devices interface {
	Output(opts Options) (Device, error)
	Input(opts Options) (Device, error)
}

// WAVFiles is the default Devices: playing writes a WAV file, capturing
// reads one.
type WAVFiles struct{}

func (WAVFiles) Output(opts Options) (Device, error) {
	if opts.OutputFile == "" {
		return nil, errors.New("outputFile is required")
	}
	if err := opts.Format().validate(); err != nil {
		return nil, err
	}
	return &wavWriter{path: opts.OutputFile, format: opts.Format()}, nil
}

func (WAVFiles) Input(opts Options) (Device, error) {
	if opts.InputFile == "" {
		return nil, errors.New("inputFile is required")
	}
	data, err := os.ReadFile(opts.InputFile)
	if err != nil {
		return nil, err
	}
	samples, _, err := DecodeWAV(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opts.InputFile, err)
	}
	return NewBuffer(samples), nil
}

// wavWriter buffers samples and writes the file on Close, once the data
// length for the header is known.
type wavWriter struct {
	mu      sync.Mutex
	path    string
	format  Format
	samples []float64
	closed  bool
}

func (w *wavWriter) Write(samples []float64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return os.ErrClosed
	}
	w.samples = append(w.samples, samples...)
	return nil
}

func (w *wavWriter) Read(int) ([]float64, error) {
	return nil, errors.New("output device cannot be read")
}

func (w *wavWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	data, err := EncodeWAV(w.samples, w.format)
	if err != nil {
		return err
	}
	return os.WriteFile(w.path, data, 0o644)
}

// Buffer is an in-memory Device. Reads consume what was written.
type Buffer struct {
	mu      sync.Mutex
	samples []float64
	closed  bool
}

func NewBuffer(samples []float64) *Buffer {
	return &Buffer{samples: samples}
}

func (b *Buffer) Write(samples []float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return os.ErrClosed
	}
	b.samples = append(b.samples, samples...)
	return nil
}

func (b *Buffer) Read(n int) ([]float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.samples) == 0 {
		return nil, io.EOF
	}
	n = min(n, len(b.samples))
	out := b.samples[:n:n]
	b.samples = b.samples[n:]
	return out, nil
}

// Samples returns a copy of what is buffered.
func (b *Buffer) Samples() []float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]float64(nil), b.samples...)
}

func (b *Buffer) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}
