package models

// TradeFailure is the reason a buy, sell or mass-sell was rejected. Empty means success.
type TradeFailure string

const (
	TradeInvalidListing    TradeFailure = "INVALID_LISTING"
	TradeWrongMode         TradeFailure = "WRONG_MODE"
	TradeNoCurrency        TradeFailure = "NO_CURRENCY"
	TradeInsufficientFunds TradeFailure = "INSUFFICIENT_FUNDS"
	TradeOutOfStock        TradeFailure = "OUT_OF_STOCK"
	TradeNothingToSell     TradeFailure = "NOTHING_TO_SELL"
	TradeInvalidCount      TradeFailure = "INVALID_COUNT"
	TradePriceOverflow     TradeFailure = "PRICE_OVERFLOW"
	TradeDeliveryFailed    TradeFailure = "DELIVERY_FAILED"
	TradeStoreMissing      TradeFailure = "STORE_MISSING"
	TradeStoreBusy         TradeFailure = "STORE_BUSY"
	TradeHolderMissing     TradeFailure = "HOLDER_MISSING"
)

// ClaimFailure is the reason a contract claim was rejected. Empty means success.
type ClaimFailure string

const (
	ClaimStoreMissing    ClaimFailure = "StoreMissing"
	ClaimContractMissing ClaimFailure = "ContractMissing"
	ClaimNoValidTargets  ClaimFailure = "NoValidTargets"
	ClaimInvalidTarget   ClaimFailure = "InvalidTarget"
	ClaimNotEnoughItems  ClaimFailure = "NotEnoughItems"
	ClaimMissingCrate    ClaimFailure = "MissingCrate"
	ClaimExecutionFailed ClaimFailure = "ExecutionFailed"
	ClaimStoreBusy       ClaimFailure = "StoreBusy"
)
