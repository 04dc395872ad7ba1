package venueapi

// quoteResponse - GET /quote response body
type quoteResponse struct {
	AmountOut string   `json:"amount_out"`
	Path      []string `json:"path"`
}

// bridgeFeeResponse - GET /bridge-fee response body
type bridgeFeeResponse struct {
	Fee string `json:"fee"`
}

// tokenPriceResponse - GET /token-price response body. The price is quoted
// in the comparison currency (USD terms) as a decimal string.
type tokenPriceResponse struct {
	Price string `json:"price"`
}

// gasPriceResponse - GET /gas-price response body, wei as a decimal string.
type gasPriceResponse struct {
	GasPrice string `json:"gas_price"`
}
