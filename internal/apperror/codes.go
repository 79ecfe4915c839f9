package apperror

// Code represents a unique error code for the application
type Code string

// General error codes
const (
	// General validation
	CodeRequiredField   Code = "REQUIRED_FIELD"
	CodeInvalidInput    Code = "INVALID_INPUT"
	CodeInvalidState    Code = "INVALID_STATE"
	CodeNotFound        Code = "NOT_FOUND"
	CodeValidationError Code = "VALIDATION_ERROR"

	// Configuration
	CodeConfigurationError Code = "CONFIGURATION_ERROR"

	// External service errors
	CodeExternalServiceError Code = "EXTERNAL_SERVICE_ERROR"
	CodeServiceTimeout       Code = "SERVICE_TIMEOUT"
	CodeServiceUnavailable   Code = "SERVICE_UNAVAILABLE"
	CodeRateLimitExceeded    Code = "RATE_LIMIT_EXCEEDED"

	// System errors
	CodeInternalError Code = "INTERNAL_ERROR"
	CodeUnknownError  Code = "UNKNOWN_ERROR"
)

// Blockchain transport error codes
const (
	CodeEthereumConnectionFailed Code = "ETHEREUM_CONNECTION_FAILED"
	CodeEthereumSubscribeFailed  Code = "ETHEREUM_SUBSCRIBE_FAILED"
	CodeEthereumRPCError         Code = "ETHEREUM_RPC_ERROR"
	CodeBlockNotFound            Code = "BLOCK_NOT_FOUND"
	CodeGasEstimationFailed      Code = "GAS_ESTIMATION_FAILED"
	CodeContractCallFailed       Code = "CONTRACT_CALL_FAILED"

	// WebSocket errors
	CodeWebSocketConnectionError Code = "WEBSOCKET_CONNECTION_ERROR"
	CodeWebSocketReconnecting    Code = "WEBSOCKET_RECONNECTING"
	CodeWebSocketClosed          Code = "WEBSOCKET_CLOSED"
	CodeWebSocketSendError       Code = "WEBSOCKET_SEND_ERROR"
)

// Venue and quoting error codes
const (
	CodeVenueUnavailable      Code = "VENUE_UNAVAILABLE"
	CodePoolNotFound          Code = "POOL_NOT_FOUND"
	CodeInsufficientLiquidity Code = "INSUFFICIENT_LIQUIDITY"
	CodeQuoteStale            Code = "QUOTE_STALE"
	CodeInvalidQuote          Code = "INVALID_QUOTE"
	CodeQuoteValidationFailed Code = "QUOTE_VALIDATION_FAILED"
)

// Opportunity error codes
const (
	CodePriceImpactExceeded Code = "PRICE_IMPACT_EXCEEDED"
	CodeInvalidTradeSize    Code = "INVALID_TRADE_SIZE"
	CodeSameVenueLegs       Code = "SAME_VENUE_LEGS"
)

// Execution error codes
const (
	CodeExecutionReverted     Code = "EXECUTION_REVERTED"
	CodeSubmissionFailed      Code = "SUBMISSION_FAILED"
	CodeConfirmationTimeout   Code = "CONFIRMATION_TIMEOUT"
	CodeAbortedByRevalidation Code = "ABORTED_BY_REVALIDATION"
	CodeOpportunityExpired    Code = "OPPORTUNITY_EXPIRED"
	CodePairBusy              Code = "PAIR_BUSY"
)

// Reference price feed error codes
const (
	CodePriceFeedUnavailable Code = "PRICE_FEED_UNAVAILABLE"
	CodePriceFeedStale       Code = "PRICE_FEED_STALE"
)

// Circuit breaker error codes
const (
	CodeCircuitOpen     Code = "CIRCUIT_OPEN"
	CodeCircuitHalfOpen Code = "CIRCUIT_HALF_OPEN"
)
