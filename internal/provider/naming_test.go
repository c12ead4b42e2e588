package provider

import "testing"

func TestNormalizeOutboundRewritesDots(t *testing.T) {
	if got := normalizeOutbound("convo.setState"); got != "convo_setState" {
		t.Errorf("normalizeOutbound = %q, want convo_setState", got)
	}
}

func TestRestoreInboundReversesNormalization(t *testing.T) {
	if got := restoreInbound("convo_setState"); got != "convo.setState" {
		t.Errorf("restoreInbound = %q, want convo.setState", got)
	}
}

func TestNamingRoundTrip(t *testing.T) {
	names := []string{"convo.setState", "tts.speak", "agent.spawn", "plain"}
	for _, name := range names {
		if got := restoreInbound(normalizeOutbound(name)); got != name {
			t.Errorf("round trip for %q produced %q", name, got)
		}
	}
}
