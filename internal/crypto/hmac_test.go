package crypto

import (
	"strings"
	"testing"
)

func TestContractHeadersAt(t *testing.T) {
	auth := &HMACAuth{Key: "ak", Secret: "sk"}

	h1 := auth.ContractHeadersAt("symbol=BTC_USDT", 1700000000000)
	if h1["ApiKey"] != "ak" {
		t.Errorf("ApiKey = %q, want ak", h1["ApiKey"])
	}
	if h1["Request-Time"] != "1700000000000" {
		t.Errorf("Request-Time = %q, want 1700000000000", h1["Request-Time"])
	}
	if len(h1["Signature"]) != 64 || strings.ToLower(h1["Signature"]) != h1["Signature"] {
		t.Errorf("Signature = %q, want 64 lowercase hex chars", h1["Signature"])
	}

	// Same inputs sign identically; any input change alters the signature.
	h2 := auth.ContractHeadersAt("symbol=BTC_USDT", 1700000000000)
	if h1["Signature"] != h2["Signature"] {
		t.Error("signature not deterministic for identical inputs")
	}
	h3 := auth.ContractHeadersAt("symbol=ETH_USDT", 1700000000000)
	if h1["Signature"] == h3["Signature"] {
		t.Error("signature unchanged for different params")
	}
	h4 := (&HMACAuth{Key: "ak", Secret: "other"}).ContractHeadersAt("symbol=BTC_USDT", 1700000000000)
	if h1["Signature"] == h4["Signature"] {
		t.Error("signature unchanged for different secret")
	}
}

func TestString_Redacts(t *testing.T) {
	auth := &HMACAuth{Key: "abcdef123456", Secret: "supersecretvalue"}
	s := auth.String()
	if strings.Contains(s, "supersecretvalue") || strings.Contains(s, "abcdef123456") {
		t.Errorf("String() leaks credentials: %s", s)
	}
	if !strings.Contains(s, "abcd****") {
		t.Errorf("String() = %s, want redacted key prefix", s)
	}
}
