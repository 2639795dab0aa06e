package main

// externalParse is a stand-in for the vendor text-template parser
// (e.g. ntc-templates/textfsm), which is explicitly out of scope for
// this crawler. It returns an empty record set for every command: a
// device still gets its raw `show version` text, OS detection, and
// state transitions, it just never yields structured CDP/LLDP rows,
// so the seed alone reaches DONE without discovering neighbors. Wire
// in a real templates-backed Func here to get topology discovery.
func externalParse(platform, command, raw string) (any, error) {
	return []map[string]string{}, nil
}
