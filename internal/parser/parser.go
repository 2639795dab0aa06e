// Package parser adapts netcrawl's internal platform names to the
// external vendor text-template parser's expected names and shields the
// rest of the system from its failures. The external parser itself is
// out of scope (§1 of the spec) — it is consumed as a pure function.
package parser

import (
	"fmt"

	"github.com/netcrawl/netcrawl/pkg/util"
)

// Func is the external template parser's contract: translate a command's
// raw text for a given platform into structured records, or fail.
type Func func(platform, command, raw string) (any, error)

// platformMap translates netcrawl's OSFamily strings into the template
// library's platform names. iosxe shares IOS's templates. Anything absent
// from this table passes through unchanged (spec.md §4.6).
var platformMap = map[string]string{
	"ios":   "cisco_ios",
	"iosxe": "cisco_ios",
	"iosxr": "cisco_iosxr",
	"nxos":  "cisco_nxos",
	"eos":   "arista_eos",
	"asa":   "cisco_asa",
}

// TemplateName maps an internal platform string to the external parser's
// expected name, passing unrecognized strings through unchanged.
func TemplateName(platform string) string {
	if mapped, ok := platformMap[platform]; ok {
		return mapped
	}
	return platform
}

// Adapter dispatches parse calls through TemplateName and converts any
// error or panic raised by the external parser into a plain error, so a
// misbehaving vendor template never takes down a worker.
type Adapter struct {
	parse Func
}

// New wraps an external parser function.
func New(parse Func) *Adapter {
	return &Adapter{parse: parse}
}

// Parse runs the external parser for command against raw, recovering from
// panics. On any failure it logs and returns (nil, err); callers proceed
// with the raw text already in hand (spec.md §7: parse failure is never
// fatal to the FSM step).
func (a *Adapter) Parse(platform, command, raw string) (records any, err error) {
	if a.parse == nil {
		return nil, fmt.Errorf("parser: no external parser configured")
	}

	defer func() {
		if r := recover(); r != nil {
			util.WithFields(map[string]interface{}{
				"platform": platform,
				"command":  command,
			}).Errorf("parser: recovered from panic: %v", r)
			records, err = nil, fmt.Errorf("parser: panic: %v", r)
		}
	}()

	name := TemplateName(platform)
	records, err = a.parse(name, command, raw)
	if err != nil {
		util.WithFields(map[string]interface{}{
			"platform": name,
			"command":  command,
		}).Warnf("parser: parse failed: %v", err)
		return nil, err
	}
	return records, nil
}
