package config

import (
	"fmt"
	"strings"
)

// TokenInfo contains token metadata for price lookups and quoting
type TokenInfo struct {
	Symbol       string // Token symbol (SOL, USDC, JUP, etc.)
	Mint         string // Solana mint address (base58)
	Decimals     int    // Token decimals (9 for SOL, 6 for USDC)
	IsStablecoin bool   // Whether this is a stablecoin
}

// TokenRegistry maps token symbols to their on-chain information.
// Hardcoded registry of well-known tokens on Solana mainnet; anything
// else resolves by raw mint address.
var TokenRegistry = map[string]TokenInfo{
	"SOL": {
		Symbol:       "SOL",
		Mint:         "So11111111111111111111111111111111111111112", // wrapped SOL
		Decimals:     9,
		IsStablecoin: false,
	},
	"JUP": {
		Symbol:       "JUP",
		Mint:         "JUPyiwrYJFskUPiHa7hkeR8VUtAeFoSYbKedZNsDvCN",
		Decimals:     6,
		IsStablecoin: false,
	},
	"BONK": {
		Symbol:       "BONK",
		Mint:         "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263",
		Decimals:     5,
		IsStablecoin: false,
	},
	"WIF": {
		Symbol:       "WIF",
		Mint:         "EKpQGSJtjMFqKZ9KQanSqYXRcF8fBopzLHYxdM65zcjm",
		Decimals:     6,
		IsStablecoin: false,
	},
	"RAY": {
		Symbol:       "RAY",
		Mint:         "4k3Dyjzvzp8eMZWUXbBCjEvwSkkk59S5iCNLY3QrkX6R",
		Decimals:     6,
		IsStablecoin: false,
	},
	"USDC": {
		Symbol:       "USDC",
		Mint:         "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		Decimals:     6,
		IsStablecoin: true,
	},
	"USDT": {
		Symbol:       "USDT",
		Mint:         "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB",
		Decimals:     6,
		IsStablecoin: true,
	},
}

// ResolveToken resolves a user-supplied token reference to TokenInfo.
// Symbols are matched case-insensitively against the registry; inputs
// that look like a mint address pass through with unknown metadata.
func ResolveToken(ref string) (TokenInfo, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return TokenInfo{}, fmt.Errorf("empty token reference")
	}

	if info, ok := TokenRegistry[strings.ToUpper(ref)]; ok {
		return info, nil
	}

	// Base58 mint addresses are 32-44 chars and never contain the
	// characters 0, O, I, l.
	if looksLikeMint(ref) {
		return TokenInfo{Symbol: ref, Mint: ref, Decimals: 0}, nil
	}

	return TokenInfo{}, fmt.Errorf("unknown token: %s (not a registered symbol or mint address)", ref)
}

// ParsePair parses a trading pair string like "SOL-USDC" into input and
// output token info. Either side may be a registered symbol or a raw
// mint address.
//
// Example: ParsePair("SOL-USDC") returns:
//   - input:  TokenInfo{Symbol: "SOL", Mint: "So111...", Decimals: 9}
//   - output: TokenInfo{Symbol: "USDC", Mint: "EPjF...", Decimals: 6}
func ParsePair(pairName string) (input TokenInfo, output TokenInfo, err error) {
	parts := strings.Split(pairName, "-")
	if len(parts) != 2 {
		return TokenInfo{}, TokenInfo{}, fmt.Errorf("invalid pair format: %s (expected INPUT-OUTPUT like SOL-USDC)", pairName)
	}

	input, err = ResolveToken(parts[0])
	if err != nil {
		return TokenInfo{}, TokenInfo{}, fmt.Errorf("invalid input token: %w", err)
	}

	output, err = ResolveToken(parts[1])
	if err != nil {
		return TokenInfo{}, TokenInfo{}, fmt.Errorf("invalid output token: %w", err)
	}

	if input.Mint == output.Mint {
		return TokenInfo{}, TokenInfo{}, fmt.Errorf("input and output tokens must be different: %s", pairName)
	}

	return input, output, nil
}

// RegisteredMints returns the mint addresses of all registry tokens,
// used to warm the price cache at startup.
func RegisteredMints() []string {
	mints := make([]string, 0, len(TokenRegistry))
	for _, info := range TokenRegistry {
		mints = append(mints, info.Mint)
	}
	return mints
}

func looksLikeMint(s string) bool {
	if len(s) < 32 || len(s) > 44 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '1' && r <= '9':
		case r >= 'A' && r <= 'H':
		case r >= 'J' && r <= 'N':
		case r >= 'P' && r <= 'Z':
		case r >= 'a' && r <= 'k':
		case r >= 'm' && r <= 'z':
		default:
			return false
		}
	}
	return true
}
