package discovery

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Device is one host found on the local network.
type Device struct {
	IP   string `json:"ip"`
	MAC  string `json:"mac"`
	Name string `json:"name"`
}

// Prober does the network work behind discovery.
type Prober interface {
	// Ping reports whether ip answered. An error means the probe itself
	// could not run.
	Ping(ctx context.Context, ip string) (bool, error)
	ARPTable(ctx context.Context) ([]Device, error)
	LocalAddresses() ([]Device, error)
}

// ExecProber shells out to the system ping and arp tools.
type ExecProber struct {
	PingTimeout time.Duration
}

var _ Prober = ExecProber{}

func (p ExecProber) Ping(ctx context.Context, ip string) (bool, error) {
	cmd := exec.CommandContext(ctx, "ping", pingArgs(runtime.GOOS, ip, p.timeout())...)
	err := cmd.Run()
	if err == nil {
		return true, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) || ctx.Err() != nil {
		return false, nil
	}
	return false, fmt.Errorf("ping %s: %w", ip, err)
}

func (p ExecProber) timeout() time.Duration {
	if p.PingTimeout <= 0 {
		return time.Second
	}
	return p.PingTimeout
}

func pingArgs(goos, ip string, timeout time.Duration) []string {
	switch goos {
	case "windows":
		return []string{"-n", "1", "-w", strconv.FormatInt(timeout.Milliseconds(), 10), ip}
	case "darwin":
		return []string{"-c", "1", "-W", strconv.FormatInt(timeout.Milliseconds(), 10), ip}
	default:
		secs := max(1, int(timeout.Round(time.Second)/time.Second))
		return []string{"-c", "1", "-W", strconv.Itoa(secs), ip}
	}
}

func (p ExecProber) ARPTable(ctx context.Context) ([]Device, error) {
	out, err := exec.CommandContext(ctx, "arp", "-a").Output()
	if err != nil {
		return nil, fmt.Errorf("arp -a: %w", err)
	}
	return parseARP(out), nil
}

var (
	// name (1.2.3.4) at aa:bb:cc:dd:ee:ff ...
	unixARP = regexp.MustCompile(`^(\S+) \((\d+\.\d+\.\d+\.\d+)\) at ([0-9a-fA-F:]+)`)
	// 1.2.3.4   aa-bb-cc-dd-ee-ff   dynamic
	windowsARP = regexp.MustCompile(`^\s*(\d+\.\d+\.\d+\.\d+)\s+([0-9a-fA-F]{2}(?:-[0-9a-fA-F]{2}){5})\s`)
)

// parseARP reads both the BSD/Linux and the Windows arp -a layouts.
// Incomplete entries are skipped.
func parseARP(out []byte) []Device {
	var devices []Device
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		if m := unixARP.FindStringSubmatch(line); m != nil {
			name := m[1]
			if name == "?" {
				name = ""
			}
			devices = append(devices, Device{IP: m[2], MAC: normalizeMAC(m[3]), Name: name})
			continue
		}
		if m := windowsARP.FindStringSubmatch(line); m != nil {
			devices = append(devices, Device{IP: m[1], MAC: normalizeMAC(m[2])})
		}
	}
	return devices
}

// normalizeMAC pads each octet to two digits, lower case, colon separated.
func normalizeMAC(s string) string {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ':' || r == '-' })
	for i, p := range parts {
		if len(p) == 1 {
			p = "0" + p
		}
		parts[i] = strings.ToLower(p)
	}
	return strings.Join(parts, ":")
}

func (ExecProber) LocalAddresses() ([]Device, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var out []Device
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok || ipnet.IP.To4() == nil {
				continue
			}
			out = append(out, Device{
				IP:   ipnet.IP.String(),
				MAC:  iface.HardwareAddr.String(),
				Name: iface.Name,
			})
		}
	}
	return out, nil
}
