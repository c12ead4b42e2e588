package provider

import "strings"

// normalizeOutbound rewrites a conductor-native tool name (which may
// contain dots, e.g. "convo.setState") into the character set some
// upstream LLM APIs require for function/tool names. Kept strictly at the
// adapter boundary per spec §4.5/§9 — the conductor and client protocol
// always see the original name.
func normalizeOutbound(name string) string {
	return strings.ReplaceAll(name, ".", "_")
}

// restoreInbound reverses normalizeOutbound on a tool-use block name
// received from the model.
func restoreInbound(name string) string {
	return strings.ReplaceAll(name, "_", ".")
}
