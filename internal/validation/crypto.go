// Package validation содержит функции валидации входных данных.
package validation

import "strings"

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

func isHex(s string) bool {
	for _, ch := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", ch) {
			return false
		}
	}
	return true
}

func isAlnum(s string) bool {
	for _, ch := range s {
		if !(ch >= '0' && ch <= '9' || ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z') {
			return false
		}
	}
	return true
}

func isBase58(s string) bool {
	for _, ch := range s {
		if !strings.ContainsRune(base58Alphabet, ch) {
			return false
		}
	}
	return true
}

// IsValidCurrency проверяет код валюты: от 2 до 10 заглавных латинских букв или цифр (USDT, BTC, ETH).
func IsValidCurrency(code string) bool {
	if len(code) < 2 || len(code) > 10 || strings.ToUpper(code) != code {
		return false
	}
	return isAlnum(code)
}

// IsValidNetwork проверяет название сети (TRC20, ERC20, BEP20, Bitcoin).
func IsValidNetwork(network string) bool {
	if len(network) < 2 || len(network) > 20 {
		return false
	}
	return isAlnum(strings.ReplaceAll(network, "-", ""))
}

// IsValidWalletAddress проверяет адрес кошелька без привязки к конкретной сети.
func IsValidWalletAddress(addr string) bool {
	if hex, ok := strings.CutPrefix(addr, "0x"); ok {
		return len(hex) == 40 && isHex(hex)
	}
	if len(addr) < 25 || len(addr) > 90 {
		return false
	}
	return isAlnum(addr)
}

func isLowerAlnum(s string) bool {
	return isAlnum(s) && strings.ToLower(s) == s
}

// IsValidAddressForNetwork проверяет формат адреса для указанной сети.
// Для сетей без известного формата применяется IsValidWalletAddress.
func IsValidAddressForNetwork(network, addr string) bool {
	switch strings.ToUpper(strings.ReplaceAll(network, "-", "")) {
	case "ERC20", "BEP20", "ETH", "ETHEREUM", "BSC", "POLYGON", "MATIC", "ARBITRUM", "OPTIMISM", "BASE":
		hex, ok := strings.CutPrefix(addr, "0x")
		return ok && len(hex) == 40 && isHex(hex)
	case "TRC20", "TRON", "TRX":
		return len(addr) == 34 && strings.HasPrefix(addr, "T") && isBase58(addr)
	case "BITCOIN", "BTC":
		if rest, ok := strings.CutPrefix(addr, "bc1"); ok {
			return len(addr) >= 42 && len(addr) <= 62 && isLowerAlnum(rest)
		}
		return len(addr) >= 26 && len(addr) <= 35 &&
			(strings.HasPrefix(addr, "1") || strings.HasPrefix(addr, "3")) && isBase58(addr)
	case "SOL", "SOLANA":
		return len(addr) >= 32 && len(addr) <= 44 && isBase58(addr)
	default:
		return IsValidWalletAddress(addr)
	}
}

// IsValidTxHash проверяет хэш транзакции: 64 hex-символа (с префиксом 0x или без) либо base58-подпись.
func IsValidTxHash(hash string) bool {
	if hex, ok := strings.CutPrefix(hash, "0x"); ok {
		return len(hex) == 64 && isHex(hex)
	}
	if len(hash) == 64 && isHex(hash) {
		return true
	}
	return len(hash) >= 43 && len(hash) <= 88 && isBase58(hash)
}
