// Package feed implements reference price providers speaking the
// Binance-compatible market data API: a polled REST ticker endpoint
// and a combined-stream WebSocket mini ticker.
package feed

// tickerResponse is the REST /ticker/price payload.
type tickerResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// subscribeRequest is the combined-stream subscription frame.
type subscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

// streamEnvelope wraps every combined-stream message.
type streamEnvelope struct {
	Stream string          `json:"stream"`
	Data   miniTickerEvent `json:"data"`
}

// miniTickerEvent is the <symbol>@miniTicker payload. Only the fields
// the feed reads are declared.
type miniTickerEvent struct {
	EventType  string `json:"e"`
	Symbol     string `json:"s"`
	ClosePrice string `json:"c"`
}
