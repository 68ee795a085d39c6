package models

import "time"

// Event types
const (
	EventTypeTradeExecuted   = "TRADE_EXECUTED"
	EventTypeContractClaimed = "CONTRACT_CLAIMED"
	EventTypeCatalogPushed   = "CATALOG_PUSHED"
	EventTypeDynamicState    = "DYNAMIC_STATE"

	RequestTypeBuy             = "REQUEST_BUY"
	RequestTypeSell            = "REQUEST_SELL"
	RequestTypeMassSell        = "REQUEST_MASS_SELL"
	RequestTypeClaim           = "REQUEST_CLAIM"
	RequestTypeVisibleListings = "REQUEST_VISIBLE_LISTINGS"
	RequestTypeRefresh         = "REQUEST_REFRESH"
)

// BaseEvent contains common fields for all events and requests
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// TradeExecutedEvent published after a buy, sell or mass-sell step went through
type TradeExecutedEvent struct {
	BaseEvent
	StoreID   string       `json:"store_id"`
	ListingID string       `json:"listing_id"`
	Kind      string       `json:"kind"`
	Holder    uint64       `json:"holder"`
	Currency  string       `json:"currency"`
	Count     int          `json:"count"`
	Amount    int64        `json:"amount"`
	Refunded  int64        `json:"refunded,omitempty"`
	Failure   TradeFailure `json:"failure,omitempty"`
}

// ContractClaimedEvent published after a successful claim
type ContractClaimedEvent struct {
	BaseEvent
	StoreID    string   `json:"store_id"`
	ContractID string   `json:"contract_id"`
	Holder     uint64   `json:"holder"`
	Crate      uint64   `json:"crate,omitempty"`
	Rewards    []Reward `json:"rewards"`
}

// CatalogPushEvent carries a full catalog for a session
type CatalogPushEvent struct {
	BaseEvent
	Session  string    `json:"session"`
	StoreID  string    `json:"store_id"`
	Revision string    `json:"revision"`
	Listings []Listing `json:"listings"`
}

// DynamicStateEvent carries only what changed since the last push for a session
type DynamicStateEvent struct {
	BaseEvent
	Session   string                      `json:"session"`
	StoreID   string                      `json:"store_id"`
	Balances  map[string]int64            `json:"balances,omitempty"`
	Stock     map[string]int              `json:"stock,omitempty"`
	Owned     map[string]int              `json:"owned,omitempty"`
	Contracts map[string]ContractProgress `json:"contracts,omitempty"`
	Removed   []string                    `json:"removed_contracts,omitempty"`
}

// ContractProgress is the mutable part of a contract visible to the UI
type ContractProgress struct {
	Progress int `json:"progress"`
	Required int `json:"required"`
}

// TradeRecord is a ledger row
type TradeRecord struct {
	ID        int64  `db:"id" json:"id"`
	Reference string `db:"reference" json:"reference"`
	StoreID   string `db:"store_id" json:"store_id"`
	ListingID string `db:"listing_id" json:"listing_id"`
	Kind      string `db:"kind" json:"kind"`
	Holder    int64  `db:"holder" json:"holder"`
	Currency  string `db:"currency" json:"currency"`
	Count     int    `db:"count" json:"count"`
	Amount    int64  `db:"amount" json:"amount"`
	CreatedAt int64  `db:"created_at" json:"created_at"`
}

// ClaimRecord is a ledger row
type ClaimRecord struct {
	ID         int64  `db:"id" json:"id"`
	Reference  string `db:"reference" json:"reference"`
	StoreID    string `db:"store_id" json:"store_id"`
	ContractID string `db:"contract_id" json:"contract_id"`
	Holder     int64  `db:"holder" json:"holder"`
	Crate      int64  `db:"crate" json:"crate"`
	Rewards    string `db:"rewards" json:"rewards"`
	CreatedAt  int64  `db:"created_at" json:"created_at"`
}

// Trade kinds used in events and the ledger
const (
	TradeKindBuy      = "BUY"
	TradeKindSell     = "SELL"
	TradeKindMassSell = "MASS_SELL"
)
