package entity

// TokenBalance holds one fungible token position, already adjusted to display
// units at the fetcher boundary. (ContractAddress, Symbol) is the uniqueness
// key when rolling tokens up across wallets.
type TokenBalance struct {
	Symbol          string  `json:"symbol"`
	Name            string  `json:"name"`
	Balance         float64 `json:"balance"`
	Decimals        int32   `json:"decimals"`
	ContractAddress string  `json:"contractAddress"`
	TokenID         string  `json:"tokenId,omitempty"`
	ThumbnailURI    string  `json:"thumbnailUri,omitempty"`
	USDValue        float64 `json:"usdValue,omitempty"`
}
