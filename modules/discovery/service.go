// Package discovery finds devices on the local /24 network.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/synadia-io/accessorhost/internal/emitter"
	"github.com/synadia-io/accessorhost/internal/ttlmap"
	"github.com/synadia-io/accessorhost/models"
	"github.com/synadia-io/accessorhost/modules"
	"golang.org/x/sync/errgroup"
)

const moduleName = "discovery"

var (
	ErrNoAddress     = errors.New("no non-loopback IPv4 address found")
	ErrInvalidSubnet = errors.New("invalid subnet")
	ErrClosed        = errors.New("discovery service is closed")
)

type Options struct {
	// Concurrency bounds the number of pings in flight.
	Concurrency int `json:"concurrency"`
	// CacheTime is how long, in ms, a found device keeps being reported.
	CacheTime int `json:"cacheTime"`
}

func DefaultOptions() Options {
	return Options{
		Concurrency: 32,
		CacheTime:   60000,
	}
}

type Service struct {
	env    modules.Env
	em     *emitter.Emitter
	prober Prober
	opts   Options
	cache  *ttlmap.TTLMap[Device]

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	resID  uint64
}

func NewService(env modules.Env, prober Prober, opts Options) *Service {
	env = env.WithDefaults()
	if prober == nil {
		prober = ExecProber{}
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultOptions().Concurrency
	}
	if opts.CacheTime <= 0 {
		opts.CacheTime = DefaultOptions().CacheTime
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		env:    env,
		em:     env.NewEmitter(moduleName),
		prober: prober,
		opts:   opts,
		cache:  ttlmap.New[Device](time.Duration(opts.CacheTime) * time.Millisecond),
		ctx:    ctx,
		cancel: cancel,
	}
	s.resID = env.Resources.Track(s)
	return s
}

func (s *Service) Emitter() *emitter.Emitter {
	return s.em
}

// DiscoverDevices sweeps subnet in the background and emits discovered
// with the devices found, or error.
func (s *Service) DiscoverDevices(subnet string) error {
	prefix, err := s.prefixFor(subnet)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return ErrClosed
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		devices, err := s.sweep(s.ctx, prefix)
		if err != nil {
			if s.ctx.Err() == nil {
				s.em.NotifyError(err)
			}
			return
		}
		s.em.Notify(models.EventDiscovered, devices)
	}()
	return nil
}

// Discover sweeps subnet and returns what it found.
func (s *Service) Discover(ctx context.Context, subnet string) ([]Device, error) {
	prefix, err := s.prefixFor(subnet)
	if err != nil {
		return nil, err
	}
	return s.sweep(ctx, prefix)
}

func (s *Service) sweep(ctx context.Context, prefix netip.Prefix) ([]Device, error) {
	start := time.Now()
	var (
		mu    sync.Mutex
		alive []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for addr := prefix.Addr().Next(); prefix.Contains(addr); addr = addr.Next() {
		if addr.As4()[3] == 255 {
			break
		}
		ip := addr.String()
		g.Go(func() error {
			ok, err := s.prober.Ping(gctx, ip)
			if err != nil {
				return err
			}
			if ok {
				mu.Lock()
				alive = append(alive, ip)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	table, err := s.prober.ARPTable(ctx)
	if err != nil {
		return nil, err
	}
	local, _ := s.prober.LocalAddresses()

	found := make(map[string]Device)
	for _, ip := range alive {
		found[ip] = Device{IP: ip}
	}
	for _, d := range append(slices.Clone(table), local...) {
		if !inPrefix(prefix, d.IP) {
			continue
		}
		if prev, ok := found[d.IP]; ok && prev.Name != "" && d.Name == "" {
			d.Name = prev.Name
		}
		found[d.IP] = d
	}
	for _, d := range found {
		s.cache.Put(d.IP, d)
	}

	var devices []Device
	for _, d := range s.cache.Values() {
		if inPrefix(prefix, d.IP) {
			devices = append(devices, d)
		}
	}
	slices.SortFunc(devices, func(a, b Device) int {
		return netip.MustParseAddr(a.IP).Compare(netip.MustParseAddr(b.IP))
	})

	s.env.Logger.Debug("discovery sweep finished",
		slog.String("subnet", prefix.String()),
		slog.Int("alive", len(alive)),
		slog.Int("devices", len(devices)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return devices, nil
}

func inPrefix(prefix netip.Prefix, ip string) bool {
	addr, err := netip.ParseAddr(ip)
	return err == nil && prefix.Contains(addr)
}

// prefixFor accepts "a.b.c", "a.b.c.d" or "a.b.c.d/24". An empty subnet
// means the network of the host address.
func (s *Service) prefixFor(subnet string) (netip.Prefix, error) {
	subnet = strings.TrimSpace(subnet)
	if subnet == "" {
		host, err := s.HostAddress()
		if err != nil {
			return netip.Prefix{}, err
		}
		subnet = host
	}
	subnet, _, _ = strings.Cut(subnet, "/")
	if strings.Count(subnet, ".") == 2 {
		subnet += ".0"
	}
	addr, err := netip.ParseAddr(subnet)
	if err != nil || !addr.Is4() {
		return netip.Prefix{}, fmt.Errorf("%w: %q", ErrInvalidSubnet, subnet)
	}
	return addr.Prefix(24)
}

// HostAddress returns the first non-loopback IPv4 address of this host.
func (s *Service) HostAddress() (string, error) {
	local, err := s.prober.LocalAddresses()
	if err != nil {
		return "", err
	}
	if len(local) == 0 {
		return "", ErrNoAddress
	}
	return local[0].IP, nil
}

// MacAddress looks ip up among local interfaces, the cache and the arp
// table, in that order. An unknown ip gives an empty string.
func (s *Service) MacAddress(ctx context.Context, ip string) (string, error) {
	local, err := s.prober.LocalAddresses()
	if err == nil {
		for _, d := range local {
			if d.IP == ip {
				return d.MAC, nil
			}
		}
	}
	if d, ok := s.cache.Get(ip); ok && d.MAC != "" {
		return d.MAC, nil
	}
	table, err := s.prober.ARPTable(ctx)
	if err != nil {
		return "", err
	}
	for _, d := range table {
		if d.IP == ip {
			return d.MAC, nil
		}
	}
	return "", nil
}

// Close stops running sweeps. It does not emit anything.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return nil
	}
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.env.Resources.Release(s.resID)
	return s.cache.Close()
}
