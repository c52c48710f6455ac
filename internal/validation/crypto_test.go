package validation

import (
	"strings"
	"testing"
)

func TestIsValidWalletAddress(t *testing.T) {
	tests := []struct {
		name  string
		addr  string
		valid bool
	}{
		{name: "ethereum", addr: "0x742d35Cc6634C0532925a3b844Bc454e4438f44e", valid: true},
		{name: "tron", addr: "TXYZopYRdj2D9XRtbG411XZZ3kM5VkAeBf", valid: true},
		{name: "bitcoin bech32", addr: "bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq", valid: true},
		{name: "short ethereum", addr: "0x742d35Cc6634C0532925a3b844Bc454e44", valid: false},
		{name: "non hex ethereum", addr: "0x742d35Cc6634C0532925a3b844Bc454e4438f44z", valid: false},
		{name: "spaces", addr: "TXYZopYRdj2D9XRtbG411 XZZ3kM5VkAeBf", valid: false},
		{name: "too short", addr: "abc", valid: false},
		{name: "empty string", addr: "", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsValidWalletAddress(tt.addr)
			if got != tt.valid {
				t.Fatalf("IsValidWalletAddress(%q) = %v, want %v", tt.addr, got, tt.valid)
			}
		})
	}
}

func TestIsValidAddressForNetwork(t *testing.T) {
	const (
		eth  = "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"
		tron = "TXYZopYRdj2D9XRtbG411XZZ3kM5VkAeBf"
	)

	tests := []struct {
		name    string
		network string
		addr    string
		valid   bool
	}{
		{name: "erc20", network: "ERC20", addr: eth, valid: true},
		{name: "bep20 lower case network", network: "bep20", addr: eth, valid: true},
		{name: "tron address on erc20", network: "ERC20", addr: tron, valid: false},
		{name: "trc20", network: "TRC20", addr: tron, valid: true},
		{name: "ethereum address on trc20", network: "TRC20", addr: eth, valid: false},
		{name: "trc20 wrong prefix", network: "TRC20", addr: "A" + tron[1:], valid: false},
		{name: "bitcoin bech32", network: "Bitcoin", addr: "bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq", valid: true},
		{name: "bitcoin legacy", network: "BTC", addr: "1BoatSLRHtKNngkdXEeobR76b53LETtpyT", valid: true},
		{name: "bitcoin upper case bech32", network: "BTC", addr: "bc1QAR0SRRR7XFKVY5L643LYDNW9RE59GTZZWF5MDQ", valid: false},
		{name: "ethereum address on bitcoin", network: "BTC", addr: eth, valid: false},
		{name: "solana", network: "Solana", addr: "7EcDhSYGxXyscszYEp35KHN8vvw3svAuLKTzXwCFLtV", valid: true},
		{name: "unknown network falls back", network: "Litecoin", addr: "ltc1qg82tv7q4lf3q2c4wy3gg5m2zwx6e2dn3ct56q0", valid: true},
		{name: "unknown network rejects garbage", network: "Litecoin", addr: "abc", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsValidAddressForNetwork(tt.network, tt.addr)
			if got != tt.valid {
				t.Fatalf("IsValidAddressForNetwork(%q, %q) = %v, want %v", tt.network, tt.addr, got, tt.valid)
			}
		})
	}
}

func TestIsValidTxHash(t *testing.T) {
	hex64 := strings.Repeat("ab12", 16)

	tests := []struct {
		name  string
		hash  string
		valid bool
	}{
		{name: "ethereum", hash: "0x" + hex64, valid: true},
		{name: "bitcoin", hash: hex64, valid: true},
		{name: "solana", hash: "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW", valid: true},
		{name: "short", hash: "0xabc", valid: false},
		{name: "non base58", hash: strings.Repeat("0", 50), valid: false},
		{name: "empty string", hash: "", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsValidTxHash(tt.hash)
			if got != tt.valid {
				t.Fatalf("IsValidTxHash(%q) = %v, want %v", tt.hash, got, tt.valid)
			}
		})
	}
}

func TestIsValidCurrencyAndNetwork(t *testing.T) {
	for _, code := range []string{"USDT", "BTC", "ETH", "USDC"} {
		if !IsValidCurrency(code) {
			t.Fatalf("IsValidCurrency(%q) = false, want true", code)
		}
	}
	for _, code := range []string{"", "usdt", "U", "TOOLONGCODE1", "US-D"} {
		if IsValidCurrency(code) {
			t.Fatalf("IsValidCurrency(%q) = true, want false", code)
		}
	}

	for _, network := range []string{"TRC20", "ERC20", "BEP-20", "Bitcoin"} {
		if !IsValidNetwork(network) {
			t.Fatalf("IsValidNetwork(%q) = false, want true", network)
		}
	}
	for _, network := range []string{"", "x", "TRC 20"} {
		if IsValidNetwork(network) {
			t.Fatalf("IsValidNetwork(%q) = true, want false", network)
		}
	}
}
