package agent

// Token is one entry of the static token registry.
type Token struct {
	Symbol   string
	Mint     string
	Decimals int
}

// tokenRegistry maps supported symbols to canonical mints. Amounts on the
// wire are integer base units, so decimals ride along with the mint.
var tokenRegistry = map[string]Token{
	"SOL":  {Symbol: "SOL", Mint: "So11111111111111111111111111111111111111112", Decimals: 9},
	"USDC": {Symbol: "USDC", Mint: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", Decimals: 6},
	"USDT": {Symbol: "USDT", Mint: "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB", Decimals: 6},
	"BONK": {Symbol: "BONK", Mint: "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263", Decimals: 5},
	"JUP":  {Symbol: "JUP", Mint: "JUPyiwrYJFskUPiHa7hkeR8VUtAeFoSYbKedZNsDvCN", Decimals: 6},
}

// ResolveToken looks up a symbol in the registry.
func ResolveToken(symbol string) (Token, bool) {
	t, ok := tokenRegistry[symbol]
	return t, ok
}

// resolveMint looks up a token by its mint address.
func resolveMint(mint string) (Token, bool) {
	for _, t := range tokenRegistry {
		if t.Mint == mint {
			return t, true
		}
	}
	return Token{}, false
}
