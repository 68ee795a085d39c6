package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"go.uber.org/zap"

	"tradepost/internal/models"
	"tradepost/internal/prototype"
)

// Catalog is the static part of a store's listing set, stamped with a content revision.
type Catalog struct {
	StoreID  string
	Revision string
	Listings []models.Listing
}

type revisionEntry struct {
	ID      string             `json:"id"`
	Mode    models.ListingMode `json:"mode"`
	Product string             `json:"product"`
	Prices  map[string]int64   `json:"prices"`
	Match   models.MatchMode   `json:"match"`
	Units   int                `json:"units"`
	Stock   int                `json:"stock"`
}

// BuildListings turns preset listing definitions into live listings. Definitions with an
// unknown product, bad mode or no usable price are logged and skipped.
func BuildListings(protos *prototype.Registry, preset *prototype.StorePreset, logger *zap.Logger) []*models.Listing {
	if logger == nil {
		logger = zap.NewNop()
	}
	out := make([]*models.Listing, 0, len(preset.Listings))
	seen := make(map[string]struct{}, len(preset.Listings))
	for _, def := range preset.Listings {
		l, ok := listingFromDef(protos, def)
		if !ok {
			logger.Warn("Skipping invalid listing",
				zap.String("preset", preset.ID),
				zap.String("listing", def.ID),
				zap.String("product", def.Product))
			continue
		}
		if _, dup := seen[l.ID]; dup {
			logger.Warn("Skipping duplicate listing", zap.String("preset", preset.ID), zap.String("listing", l.ID))
			continue
		}
		seen[l.ID] = struct{}{}
		out = append(out, l)
	}
	return out
}

func listingFromDef(protos *prototype.Registry, def prototype.ListingDef) (*models.Listing, bool) {
	if def.ID == "" {
		return nil, false
	}
	if _, ok := protos.Entity(def.Product); !ok {
		return nil, false
	}
	l := &models.Listing{
		ID:        def.ID,
		Mode:      models.ListingMode(def.Mode),
		Product:   def.Product,
		Prices:    make(map[string]int64, len(def.Prices)),
		Remaining: models.UnlimitedStock,
		Match:     models.MatchMode(def.Match),
		Units:     def.Units,
	}
	if l.Mode != models.ModeBuy && l.Mode != models.ModeSell {
		return nil, false
	}
	if l.Match == "" {
		l.Match = models.MatchExact
	}
	if l.Match != models.MatchExact && l.Match != models.MatchDescendant {
		return nil, false
	}
	if l.Units <= 0 {
		l.Units = 1
	}
	if def.Stock != nil && *def.Stock >= 0 {
		l.Remaining = *def.Stock
	}
	for currency, price := range def.Prices {
		if price > 0 {
			l.Prices[currency] = price
		}
	}
	if len(l.Prices) == 0 {
		return nil, false
	}
	return l, true
}

// New snapshots listings into a catalog. The revision covers every static field and the
// stock the store was loaded with, so it changes only when the preset changes.
func New(storeID string, listings []*models.Listing) *Catalog {
	c := &Catalog{StoreID: storeID, Listings: make([]models.Listing, 0, len(listings))}
	entries := make([]revisionEntry, 0, len(listings))
	for _, l := range listings {
		c.Listings = append(c.Listings, l.Clone())
		entries = append(entries, revisionEntry{
			ID: l.ID, Mode: l.Mode, Product: l.Product, Prices: l.Prices,
			Match: l.Match, Units: l.Units, Stock: l.Remaining,
		})
	}
	raw, _ := json.Marshal(struct {
		Store    string          `json:"store"`
		Listings []revisionEntry `json:"listings"`
	}{storeID, entries})
	c.Revision = sha256Hex(raw)
	return c
}

// Listing returns the catalog copy of a listing.
func (c *Catalog) Listing(id string) (models.Listing, bool) {
	for _, l := range c.Listings {
		if l.ID == id {
			return l, true
		}
	}
	return models.Listing{}, false
}

// PushEvent wraps the catalog for delivery to a session.
func (c *Catalog) PushEvent(session string) *models.CatalogPushEvent {
	listings := make([]models.Listing, len(c.Listings))
	copy(listings, c.Listings)
	return &models.CatalogPushEvent{
		BaseEvent: models.BaseEvent{EventType: models.EventTypeCatalogPushed},
		Session:   session,
		StoreID:   c.StoreID,
		Revision:  c.Revision,
		Listings:  listings,
	}
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
