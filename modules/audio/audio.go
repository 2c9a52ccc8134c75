// Package audio plays and captures PCM sample streams.
package audio

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/synadia-io/accessorhost/internal/emitter"
	"github.com/synadia-io/accessorhost/models"
	"github.com/synadia-io/accessorhost/modules"
)

const moduleName = "audio"

var ErrStopped = errors.New("audio device is stopped")

type Options struct {
	SampleRate    int    `json:"sampleRate"`
	Channels      int    `json:"channels"`
	BitsPerSample int    `json:"bitsPerSample"`
	OutputFile    string `json:"outputFile"`
	InputFile     string `json:"inputFile"`
	// CaptureTime is the length of each captured chunk in ms.
	CaptureTime int `json:"captureTime"`
}

func DefaultOptions() Options {
	return Options{
		SampleRate:    8000,
		Channels:      1,
		BitsPerSample: 16,
		CaptureTime:   100,
	}
}

func (o Options) Format() Format {
	return Format{SampleRate: o.SampleRate, Channels: o.Channels, BitsPerSample: o.BitsPerSample}
}

// chunkSize is the number of interleaved samples in one capture chunk.
func (o Options) chunkSize() int {
	return max(1, o.SampleRate*o.Channels*o.CaptureTime/1000)
}

// Player writes queued samples to its device from its own goroutine.
type Player struct {
	env   modules.Env
	em    *emitter.Emitter
	dev   Device
	queue chan []float64
	done  chan struct{}

	mu      sync.Mutex
	stopped bool
	resID   uint64
}

func NewPlayer(env modules.Env, devices Devices, opts Options) (*Player, error) {
	env = env.WithDefaults()
	if devices == nil {
		devices = WAVFiles{}
	}
	dev, err := devices.Output(opts)
	if err != nil {
		return nil, err
	}
	p := &Player{
		env:   env,
		em:    env.NewEmitter(moduleName),
		dev:   dev,
		queue: make(chan []float64, 64),
		done:  make(chan struct{}),
	}
	p.resID = env.Resources.Track(p)
	go p.run()
	return p, nil
}

func (p *Player) Emitter() *emitter.Emitter {
	return p.em
}

func (p *Player) run() {
	defer close(p.done)
	for samples := range p.queue {
		if err := p.dev.Write(samples); err != nil {
			p.em.NotifyError(err)
		}
	}
}

// Play queues samples in -1..1. It blocks while the queue is full.
func (p *Player) Play(samples []float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return ErrStopped
	}
	p.queue <- samples
	return nil
}

// Stop writes what is queued and closes the device. It is safe to call
// more than once.
func (p *Player) Stop() error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.queue)
	p.mu.Unlock()

	<-p.done
	p.env.Resources.Release(p.resID)
	err := p.dev.Close()
	if err != nil {
		p.em.NotifyError(err)
	}
	return err
}

func (p *Player) Close() error {
	return p.Stop()
}

// Capture reads one chunk from its device every captureTime ms and emits
// it as data. It emits close when the device runs dry or is stopped.
type Capture struct {
	env     modules.Env
	em      *emitter.Emitter
	devices Devices
	opts    Options

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	resID  uint64
}

func NewCapture(env modules.Env, devices Devices, opts Options) (*Capture, error) {
	env = env.WithDefaults()
	if devices == nil {
		devices = WAVFiles{}
	}
	if err := opts.Format().validate(); err != nil {
		return nil, err
	}
	if opts.CaptureTime <= 0 {
		opts.CaptureTime = DefaultOptions().CaptureTime
	}
	return &Capture{
		env:     env,
		em:      env.NewEmitter(moduleName),
		devices: devices,
		opts:    opts,
	}, nil
}

func (c *Capture) Emitter() *emitter.Emitter {
	return c.em
}

// Start opens the device and begins reading. Starting a running capture
// does nothing.
func (c *Capture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return nil
	}
	dev, err := c.devices.Input(c.opts)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	c.resID = c.env.Resources.Track(c)
	go c.run(ctx, dev, c.done)
	return nil
}

func (c *Capture) run(ctx context.Context, dev Device, done chan struct{}) {
	defer close(done)
	defer func() {
		if err := dev.Close(); err != nil {
			c.env.Logger.Debug("closing capture device", slog.Any("err", err))
		}
		c.em.Notify(models.EventClose)
	}()

	ticker := time.NewTicker(time.Duration(c.opts.CaptureTime) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		samples, err := dev.Read(c.opts.chunkSize())
		if len(samples) > 0 {
			c.em.Notify(models.EventData, samples)
		}
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			c.em.NotifyError(err)
			return
		}
	}
}

// Stop ends the capture and waits for the reader to finish.
func (c *Capture) Stop() error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel = nil
	c.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	c.env.Resources.Release(c.resID)
	return nil
}

func (c *Capture) Close() error {
	return c.Stop()
}
