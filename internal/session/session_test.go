package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/netcrawl/netcrawl/internal/parser"
	"github.com/netcrawl/netcrawl/pkg/util"
)

const iosShowVersion = `Cisco IOS Software, C3900 Software, Version 15.1(4)M4
ROM: System Bootstrap`

const nxosShowVersion = `Cisco Nexus Operating System (NX-OS) Software
  BIOS: version 07.64`

const iosxrShowVersion = `Cisco IOS XR Software, Version 6.5.3`

const asaShowVersion = `Cisco Adaptive Security Appliance Software Version 9.8(4)`

func TestDetectOS(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want OSFamily
	}{
		{"ios", iosShowVersion, OSIOS},
		{"nxos not misclassified as ios", nxosShowVersion, OSNXOS},
		{"iosxr", iosxrShowVersion, OSIOSXR},
		{"asa", asaShowVersion, OSASA},
		{"unrecognized", "some random banner", OSUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectOS(tt.raw); got != tt.want {
				t.Errorf("DetectOS() = %v, want %v", got, tt.want)
			}
		})
	}
}

func newTestSession(ft *fakeTransport, p *parser.Adapter) *Session {
	cfg := Config{Host: "10.0.0.1", Username: "admin", Password: "secret"}
	if p == nil {
		p = parser.New(func(platform, command, raw string) (any, error) {
			return map[string]string{"platform": platform}, nil
		})
	}
	return NewWithTransport(cfg, p, ft)
}

func TestDetectOSFamilyRunsShowVersionOnce(t *testing.T) {
	ft := newFakeTransport(map[string]string{
		"show version": iosShowVersion,
	})
	s := newTestSession(ft, nil)

	os1, raw, err := s.DetectOSFamily(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if os1 != OSIOS {
		t.Errorf("os = %v, want %v", os1, OSIOS)
	}
	if raw != iosShowVersion {
		t.Errorf("unexpected raw output: %q", raw)
	}

	os2, _, err := s.DetectOSFamily(context.Background())
	if err != nil {
		t.Fatalf("unexpected error on cached call: %v", err)
	}
	if os2 != OSIOS {
		t.Errorf("cached os = %v, want %v", os2, OSIOS)
	}

	count := 0
	for _, c := range ft.calls {
		if c == "show version" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected show version to run exactly once, ran %d times", count)
	}
}

func TestEnsureOpenWrapsOpenFailure(t *testing.T) {
	ft := newFakeTransport(nil)
	ft.openErr = errFakeOpenFailed
	s := newTestSession(ft, nil)

	_, _, err := s.DetectOSFamily(context.Background())
	if err == nil {
		t.Fatal("expected error when transport fails to open")
	}
	var devErr *util.DeviceError
	if !errors.As(err, &devErr) {
		t.Fatalf("expected *util.DeviceError, got %T: %v", err, err)
	}
}

func TestRunAndParseFallsBackToIOSWhenUnknown(t *testing.T) {
	ft := newFakeTransport(map[string]string{
		"show cdp neighbors detail": "neighbor output",
	})
	var gotPlatform string
	p := parser.New(func(platform, command, raw string) (any, error) {
		gotPlatform = platform
		return []string{"n1"}, nil
	})
	s := newTestSession(ft, p)

	_, records, err := s.RunAndParse(context.Background(), "show cdp neighbors detail")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if records == nil {
		t.Error("expected non-nil records")
	}
	if gotPlatform != "cisco_ios" {
		t.Errorf("expected best-effort ios template, got %q", gotPlatform)
	}
}

func TestRunAndParseSwallowsParseFailure(t *testing.T) {
	ft := newFakeTransport(map[string]string{
		"show version": iosShowVersion,
	})
	p := parser.New(func(platform, command, raw string) (any, error) {
		return nil, errors.New("template blew up")
	})
	s := newTestSession(ft, p)

	if _, _, err := s.DetectOSFamily(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	raw, records, err := s.RunAndParse(context.Background(), "show version")
	if err != nil {
		t.Fatalf("parse failure must not propagate as an error: %v", err)
	}
	if records != nil {
		t.Errorf("expected nil records on parse failure, got %v", records)
	}
	if raw != iosShowVersion {
		t.Errorf("expected raw output preserved despite parse failure, got %q", raw)
	}
}

func TestRunWrapsCommandTimeout(t *testing.T) {
	ft := newFakeTransport(nil)
	ft.execErrs["show running-config"] = errCommandTimeout
	s := newTestSession(ft, nil)

	_, err := s.Run(context.Background(), "show running-config")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, errCommandTimeout) {
		t.Errorf("expected wrapped errCommandTimeout, got %v", err)
	}
}

func TestDisconnectClosesTransport(t *testing.T) {
	ft := newFakeTransport(map[string]string{"show version": iosShowVersion})
	s := newTestSession(ft, nil)
	s.Disconnect()
	if !ft.closed {
		t.Error("expected Disconnect to close the transport")
	}
}

func TestClassifyDialError(t *testing.T) {
	authErr := errors.New("ssh: handshake failed: unable to authenticate")
	if !errors.Is(classifyDialError(authErr), util.ErrAuthFailed) {
		t.Error("expected auth failure to classify as ErrAuthFailed")
	}

	netErr := errors.New("dial tcp: i/o timeout")
	if !errors.Is(classifyDialError(netErr), util.ErrTimeout) {
		t.Error("expected generic dial failure to classify as ErrTimeout")
	}
}

func TestReachableReflectsDialability(t *testing.T) {
	if Reachable("203.0.113.255", 50*time.Millisecond) {
		t.Skip("environment allows routing to TEST-NET-3; skipping negative assertion")
	}
}
