// Package session produces an authenticated interactive shell to one
// device, auto-detects its OS family, and exposes raw and parsed command
// output. It depends only on internal/parser; it has no knowledge of the
// FSM or the store.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/netcrawl/netcrawl/internal/parser"
	"github.com/netcrawl/netcrawl/pkg/util"
)

// OSFamily is the device operating system netcrawl knows how to talk to.
type OSFamily string

const (
	OSUnknown OSFamily = "unknown"
	OSIOS     OSFamily = "ios"
	OSIOSXE   OSFamily = "iosxe"
	OSIOSXR   OSFamily = "iosxr"
	OSNXOS    OSFamily = "nxos"
	OSEOS     OSFamily = "eos"
	OSASA     OSFamily = "asa"
)

var errCommandTimeout = errors.New("command timed out")

// detectSubstrings is checked in order; first match wins. NX-OS is
// checked ahead of the bare "Cisco IOS Software" match so Nexus gear
// (whose `show version` also contains that phrase) is never
// misclassified as classic IOS.
var detectSubstrings = []struct {
	substr string
	os     OSFamily
}{
	{"NX-OS", OSNXOS},
	{"IOS XR", OSIOSXR},
	{"IOS-XR", OSIOSXR},
	{"Adaptive Security Appliance", OSASA},
	{"Arista", OSEOS},
	{"IOS-XE", OSIOSXE},
	{"Cisco IOS Software", OSIOS},
}

// pagingDisableCommand returns the OS-appropriate command to stop paged
// output, or "" if none is known yet (pre-detection).
func pagingDisableCommand(os OSFamily) string {
	switch os {
	case OSASA:
		return "terminal pager 0"
	case OSIOS, OSIOSXE, OSIOSXR, OSNXOS, OSEOS:
		return "terminal length 0"
	default:
		return "terminal length 0" // best-effort default before OS is known
	}
}

// DetectOS inspects `show version` output to classify the OS family.
// Exported so it can be unit tested directly against canned text.
func DetectOS(showVersionOutput string) OSFamily {
	for _, d := range detectSubstrings {
		if strings.Contains(showVersionOutput, d.substr) {
			return d.os
		}
	}
	return OSUnknown
}

// Config configures a Session before it connects.
type Config struct {
	Host            string
	Port            int
	Username        string
	Password        string
	CommandTimeout  time.Duration // default 30s
	ProbeReachable  bool          // optional TCP pre-check, see Reachable
}

// Session is an authenticated, interactive shell to one device.
type Session struct {
	cfg       Config
	transport Transport
	parser    *parser.Adapter

	opened  bool
	os      OSFamily
	lastErr error
}

// New builds a Session. The SSH connection is not opened until the first
// Run/DetectOSFamily call (spec.md §4.1: lazily opened, cached for the session's
// lifetime).
func New(cfg Config, p *parser.Adapter) *Session {
	if cfg.CommandTimeout == 0 {
		cfg.CommandTimeout = 30 * time.Second
	}
	return &Session{
		cfg:       cfg,
		transport: NewSSHTransport(cfg.Host, cfg.Username, cfg.Password, cfg.Port),
		parser:    p,
	}
}

// NewWithTransport builds a Session over a caller-supplied Transport,
// bypassing the real SSH dial. Used by this package's own tests and by
// internal/crawl's tests to drive a Worker against a scripted device
// without touching the network.
func NewWithTransport(cfg Config, p *parser.Adapter, t Transport) *Session {
	s := New(cfg, p)
	s.transport = t
	return s
}

func (s *Session) ensureOpen(ctx context.Context) error {
	if s.opened {
		return nil
	}
	if s.cfg.ProbeReachable && !Reachable(s.cfg.Host, 2*time.Second) {
		return util.NewDeviceError(s.cfg.Host, "probe", fmt.Errorf("%w: ssh port unreachable", errTimeout))
	}
	if err := s.transport.Open(ctx); err != nil {
		return util.NewDeviceError(s.cfg.Host, "connect", classifyDialError(err))
	}
	s.opened = true
	return nil
}

// DetectOSFamily opens the session if needed, disables paging with a
// best-effort default command, runs `show version`, and classifies the
// OS. It caches the result: calling it twice returns the same platform
// without re-running the command.
func (s *Session) DetectOSFamily(ctx context.Context) (OSFamily, string, error) {
	if s.os != "" {
		return s.os, "", nil
	}
	if err := s.ensureOpen(ctx); err != nil {
		return OSUnknown, "", err
	}

	// Best-effort paging disable before the OS is known; re-issued with
	// the OS-correct command once detected.
	_, _ = s.transport.Exec(ctx, pagingDisableCommand(OSUnknown), s.cfg.CommandTimeout)

	raw, err := s.transport.Exec(ctx, "show version", s.cfg.CommandTimeout)
	if err != nil {
		return OSUnknown, "", util.NewDeviceError(s.cfg.Host, "detect_os", err)
	}

	s.os = DetectOS(raw)
	if cmd := pagingDisableCommand(s.os); s.os == OSASA {
		_, _ = s.transport.Exec(ctx, cmd, s.cfg.CommandTimeout)
	}
	return s.os, raw, nil
}

// Run sends a single command and returns its raw text. The session is
// opened lazily on first call if DetectOSFamily hasn't already done so.
func (s *Session) Run(ctx context.Context, command string) (string, error) {
	if err := s.ensureOpen(ctx); err != nil {
		return "", err
	}
	out, err := s.transport.Exec(ctx, command, s.cfg.CommandTimeout)
	if err != nil {
		return "", util.NewDeviceError(s.cfg.Host, "run:"+command, err)
	}
	return out, nil
}

// RunAndParse runs command and hands the raw output to the parser
// adapter. An unknown platform still gets a best-effort attempt against
// the IOS templates (spec.md §7: "continue with best-effort cisco_ios
// device type"); a parse failure of any kind returns the raw text
// unharmed alongside a nil result and logged error — it never aborts the
// crawl step.
func (s *Session) RunAndParse(ctx context.Context, command string) (raw string, records any, err error) {
	raw, err = s.Run(ctx, command)
	if err != nil {
		return raw, nil, err
	}

	platform := string(s.os)
	if s.os == "" || s.os == OSUnknown {
		platform = string(OSIOS)
	}

	records, perr := s.parser.Parse(platform, command, raw)
	if perr != nil {
		util.WithDevice(s.cfg.Host).Warnf("parse failed for %q: %v", command, perr)
		return raw, nil, nil
	}
	return raw, records, nil
}

// Disconnect closes the underlying transport. Idempotent; swallows
// transport errors per spec.md §4.1.
func (s *Session) Disconnect() {
	if s.transport != nil {
		_ = s.transport.Close()
	}
	s.opened = false
}

var errTimeout = errors.New("unreachable")

func classifyDialError(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "unable to authenticate") || strings.Contains(msg, "auth") {
		return fmt.Errorf("%w: %v", util.ErrAuthFailed, err)
	}
	return fmt.Errorf("%w: %v", util.ErrTimeout, err)
}
