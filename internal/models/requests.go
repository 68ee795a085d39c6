package models

// BuyRequest asks a store to sell a listing to a holder
type BuyRequest struct {
	BaseEvent
	StoreID        string `json:"store_id" binding:"-"`
	ListingID      string `json:"listing_id" binding:"required"`
	Holder         uint64 `json:"holder" binding:"required"`
	Count          int    `json:"count" binding:"required,min=1"`
	Session        string `json:"session,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// SellRequest asks a store to buy a listing's product from a holder
type SellRequest struct {
	BaseEvent
	StoreID        string `json:"store_id" binding:"-"`
	ListingID      string `json:"listing_id" binding:"required"`
	Holder         uint64 `json:"holder" binding:"required"`
	Count          int    `json:"count" binding:"required,min=1"`
	Session        string `json:"session,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// MassSellRequest sells everything sellable inside a crate and pays the holder
type MassSellRequest struct {
	BaseEvent
	StoreID        string `json:"store_id" binding:"-"`
	Holder         uint64 `json:"holder" binding:"required"`
	Crate          uint64 `json:"crate" binding:"required"`
	Session        string `json:"session,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// ClaimRequest hands in a contract using the holder's items and an optional crate
type ClaimRequest struct {
	BaseEvent
	StoreID        string `json:"store_id" binding:"-"`
	ContractID     string `json:"contract_id" binding:"-"`
	Holder         uint64 `json:"holder" binding:"required"`
	Crate          uint64 `json:"crate,omitempty"`
	Session        string `json:"session,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// VisibleListingsRequest asks for the listings of one mode
type VisibleListingsRequest struct {
	BaseEvent
	StoreID string      `json:"store_id"`
	Mode    ListingMode `json:"mode"`
}

// RefreshRequest asks for whatever changed since the session's last push
type RefreshRequest struct {
	BaseEvent
	StoreID string `json:"store_id" binding:"-"`
	Holder  uint64 `json:"holder" binding:"required"`
	Session string `json:"session" binding:"required"`
}

// TradeResponse is returned for buy, sell and mass-sell
type TradeResponse struct {
	StoreID   string           `json:"store_id"`
	ListingID string           `json:"listing_id,omitempty"`
	OK        bool             `json:"ok"`
	Failure   TradeFailure     `json:"failure,omitempty"`
	Currency  string           `json:"currency,omitempty"`
	Count     int              `json:"count"`
	Amount    int64            `json:"amount"`
	Refunded  int64            `json:"refunded,omitempty"`
	Earned    map[string]int64 `json:"earned,omitempty"`
}

// ClaimResponse is returned for contract claims
type ClaimResponse struct {
	StoreID    string       `json:"store_id"`
	ContractID string       `json:"contract_id"`
	OK         bool         `json:"ok"`
	Failure    ClaimFailure `json:"failure,omitempty"`
	Rewards    []Reward     `json:"rewards,omitempty"`
}

// RefreshResponse carries the pushes a refresh produced
type RefreshResponse struct {
	Catalog *CatalogPushEvent  `json:"catalog,omitempty"`
	State   *DynamicStateEvent `json:"state,omitempty"`
}
