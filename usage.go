package ragchat

// Usage reports token consumption and cost for a streamed answer.
// Servers typically attach it to the final chunk only.
type Usage struct {
	TotalTokens int     `json:"total_tokens"`
	CostUSD     float64 `json:"cost_usd"`
}
