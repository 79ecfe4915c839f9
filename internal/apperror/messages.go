package apperror

// messages maps error codes to human-readable messages
var messages = map[Code]string{
	// General validation
	CodeRequiredField:   "Required field is missing",
	CodeInvalidInput:    "Invalid input provided",
	CodeInvalidState:    "Invalid state for this operation",
	CodeNotFound:        "Resource not found",
	CodeValidationError: "Validation error",

	// Configuration
	CodeConfigurationError: "Configuration error",

	// External service errors
	CodeExternalServiceError: "External service error",
	CodeServiceTimeout:       "Service request timeout",
	CodeServiceUnavailable:   "Service temporarily unavailable",
	CodeRateLimitExceeded:    "Rate limit exceeded",

	// System errors
	CodeInternalError: "Internal error",
	CodeUnknownError:  "An unknown error occurred",

	// Blockchain transport errors
	CodeEthereumConnectionFailed: "Failed to connect to Ethereum node",
	CodeEthereumSubscribeFailed:  "Failed to subscribe to Ethereum events",
	CodeEthereumRPCError:         "Ethereum RPC call failed",
	CodeBlockNotFound:            "Block not found",
	CodeGasEstimationFailed:      "Gas estimation failed",
	CodeContractCallFailed:       "Smart contract call failed",

	// WebSocket errors
	CodeWebSocketConnectionError: "WebSocket connection error",
	CodeWebSocketReconnecting:    "WebSocket reconnecting",
	CodeWebSocketClosed:          "WebSocket connection closed",
	CodeWebSocketSendError:       "Failed to send WebSocket message",

	// Venue and quoting errors
	CodeVenueUnavailable:      "Venue unavailable",
	CodePoolNotFound:          "No pool for pair and fee tier",
	CodeInsufficientLiquidity: "Insufficient liquidity for trade size",
	CodeQuoteStale:            "Quote expired before use",
	CodeInvalidQuote:          "Invalid quote data",
	CodeQuoteValidationFailed: "Local quote validation failed",

	// Opportunity errors
	CodePriceImpactExceeded: "Price impact above configured ceiling",
	CodeInvalidTradeSize:    "Invalid trade size",
	CodeSameVenueLegs:       "Both legs reference the same venue",

	// Execution errors
	CodeExecutionReverted:     "Settlement transaction reverted on-chain",
	CodeSubmissionFailed:      "Transaction submission failed",
	CodeConfirmationTimeout:   "Transaction not confirmed within deadline",
	CodeAbortedByRevalidation: "Opportunity no longer viable at revalidation",
	CodeOpportunityExpired:    "Opportunity deadline passed",
	CodePairBusy:              "Another execution is in flight for this pair",

	// Reference price feed errors
	CodePriceFeedUnavailable: "Reference price feed unavailable",
	CodePriceFeedStale:       "Reference price is stale",

	// Circuit breaker errors
	CodeCircuitOpen:     "Circuit breaker is open",
	CodeCircuitHalfOpen: "Circuit breaker is half-open",
}
