package crawl

import (
	"github.com/netcrawl/netcrawl/internal/store"
)

// neighborsFrom normalizes whatever shape the external parser returned
// for a CDP/LLDP neighbors command into store.Neighbor rows. The
// external template parser is a pure `any`-returning function (spec.md
// §4.6); ntc-templates-style output is a slice of string-keyed maps, so
// that is the shape accepted here. Anything else yields no neighbors
// rather than a panic — a malformed template output must never crash a
// worker (spec.md §7).
func neighborsFrom(records any) []store.Neighbor {
	rows, ok := records.([]map[string]string)
	if !ok {
		rows = coerceRows(records)
	}

	neighbors := make([]store.Neighbor, 0, len(rows))
	for _, row := range rows {
		address := firstNonEmpty(row["ip"], row["management_ip"], row["neighbor_ip"], row["mgmt_address"])
		if address == "" {
			continue
		}
		neighbors = append(neighbors, store.Neighbor{
			Address:   address,
			Hostname:  firstNonEmpty(row["hostname"], row["neighbor_name"], row["neighbor"]),
			Interface: firstNonEmpty(row["local_interface"], row["interface"], row["local_port"]),
		})
	}
	return neighbors
}

// coerceRows handles the []map[string]interface{} shape some parser
// implementations return instead of []map[string]string.
func coerceRows(records any) []map[string]string {
	rows, ok := records.([]map[string]interface{})
	if !ok {
		return nil
	}
	out := make([]map[string]string, 0, len(rows))
	for _, r := range rows {
		converted := make(map[string]string, len(r))
		for k, v := range r {
			if s, ok := v.(string); ok {
				converted[k] = s
			}
		}
		out = append(out, converted)
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// extractHostname pulls a hostname out of raw `show version` text when
// the parser didn't already supply one in structured form. Cisco-family
// banners show it as the prompt prefix before the first '#' or '>' on
// the final non-empty line; this is deliberately forgiving since it is
// only a fallback for when the parsed output carries no hostname.
func extractHostname(raw string) string {
	line := lastNonEmptyLine(raw)
	for i, r := range line {
		if r == '#' || r == '>' {
			return line[:i]
		}
	}
	return ""
}

func lastNonEmptyLine(raw string) string {
	start, end := -1, -1
	for i := len(raw) - 1; i >= 0; i-- {
		if raw[i] == '\n' {
			if end != -1 {
				break
			}
			continue
		}
		if end == -1 {
			end = i + 1
		}
		start = i
	}
	if start == -1 || end == -1 {
		return ""
	}
	return raw[start:end]
}
