package coordinator

import (
	"strconv"
	"strings"
)

// Cache keys are deterministic fingerprints of the logical request
// parameters: equal logical requests must produce equal keys, or
// deduplication silently stops working. Numeric parts are rendered in
// base 10 with no padding so formatting can never diverge between call
// sites.

// Key joins parts with ':' into a fingerprint.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

// PriceKey identifies a token price lookup by mint.
func PriceKey(mint string) string {
	return Key("price", mint)
}

// QuoteKey identifies a swap quote by its full parameter set.
func QuoteKey(inputMint, outputMint string, amount uint64, slippageBps uint16) string {
	return Key("quote", inputMint, outputMint,
		strconv.FormatUint(amount, 10),
		strconv.FormatUint(uint64(slippageBps), 10))
}

// BalanceKey identifies a wallet balance lookup.
func BalanceKey(wallet string) string {
	return Key("balance", wallet)
}

// PositionsKey identifies a wallet positions lookup.
func PositionsKey(wallet string) string {
	return Key("positions", wallet)
}

// RiskKey identifies a per-provider token security analysis.
func RiskKey(provider, mint string) string {
	return Key("risk", provider, mint)
}

// RebateKey identifies a user's rebate stats lookup.
func RebateKey(userID string) string {
	return Key("rebate", userID)
}
