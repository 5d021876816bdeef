package marketplace

import (
	"net/url"
	"strconv"
	"time"

	"github.com/asdfghjkxd/NFTScraper/pkg/batch"
)

// OpenSeaBaseURL is the OpenSea v1 API root.
const OpenSeaBaseURL = "https://api.opensea.io/api/v1"

// OpenSeaAssetOrder is an asset sort field.
type OpenSeaAssetOrder string

const (
	OrderByTokenID   OpenSeaAssetOrder = "token_id"
	OrderBySaleDate  OpenSeaAssetOrder = "sale_date"
	OrderBySaleCount OpenSeaAssetOrder = "sale_count"
	OrderBySalePrice OpenSeaAssetOrder = "sale_price"
)

// OpenSeaEventType filters asset events.
type OpenSeaEventType string

const (
	EventCreated      OpenSeaEventType = "created"
	EventSuccessful   OpenSeaEventType = "successful"
	EventCancelled    OpenSeaEventType = "cancelled"
	EventBidEntered   OpenSeaEventType = "bid_entered"
	EventBidWithdrawn OpenSeaEventType = "bid_withdrawn"
	EventTransfer     OpenSeaEventType = "transfer"
	EventApprove      OpenSeaEventType = "approve"
)

// AuctionType filters events by auction kind.
type AuctionType string

const (
	AuctionEnglish  AuctionType = "english"
	AuctionDutch    AuctionType = "dutch"
	AuctionMinPrice AuctionType = "min-price"
)

const (
	openSeaMaxLimit           = 50
	openSeaMaxCollectionLimit = 300
	openSeaMaxOffset          = 10000
)

func openSeaBase(base, path string) string {
	if base == "" {
		base = OpenSeaBaseURL
	}
	return base + path
}

// OpenSeaAssets lists assets.
type OpenSeaAssets struct {
	// BaseURL overrides OpenSeaBaseURL.
	BaseURL string

	Owner                  string
	TokenIDs               []string
	AssetContractAddresses []string
	OrderBy                OpenSeaAssetOrder
	OrderDirection         Direction
	Collection             string

	Offset int
	Limit  int

	// GetAll ignores Offset and Limit and walks the first 10000 assets.
	GetAll bool
}

// Build implements Query.
func (q OpenSeaAssets) Build() (batch.Batch, batch.PageKey, error) {
	if err := oneOf("order_by", q.OrderBy, OrderByTokenID, OrderBySaleDate, OrderBySaleCount, OrderBySalePrice); err != nil {
		return nil, "", err
	}
	if err := q.OrderDirection.validate("order_direction"); err != nil {
		return nil, "", err
	}
	if !q.GetAll {
		if err := checkRange("limit", q.Limit, 1, openSeaMaxLimit); err != nil {
			return nil, "", err
		}
		if err := checkRange("offset", q.Offset, 0, openSeaMaxOffset); err != nil {
			return nil, "", err
		}
	}

	params := url.Values{}
	setString(params, "owner", q.Owner)
	for _, id := range q.TokenIDs {
		params.Add("token_ids", id)
	}
	for _, addr := range q.AssetContractAddresses {
		params.Add("asset_contract_addresses", addr)
	}
	setString(params, "order_by", string(q.OrderBy))
	setString(params, "order_direction", string(q.OrderDirection))
	setString(params, "collection", q.Collection)

	return offsetPages(openSeaBase(q.BaseURL, "/assets"), params, q.Offset, q.Limit, q.GetAll), "assets", nil
}

// OpenSeaEvents lists asset events.
type OpenSeaEvents struct {
	BaseURL string

	AssetContractAddress string
	CollectionSlug       string
	TokenID              string
	AccountAddress       string
	EventType            OpenSeaEventType
	OnlyOpenSea          bool
	AuctionType          AuctionType
	OccurredBefore       time.Time
	OccurredAfter        time.Time

	Offset int
	Limit  int
	GetAll bool
}

// Build implements Query.
func (q OpenSeaEvents) Build() (batch.Batch, batch.PageKey, error) {
	if err := oneOf("event_type", q.EventType,
		EventCreated, EventSuccessful, EventCancelled, EventBidEntered,
		EventBidWithdrawn, EventTransfer, EventApprove); err != nil {
		return nil, "", err
	}
	if err := oneOf("auction_type", q.AuctionType, AuctionEnglish, AuctionDutch, AuctionMinPrice); err != nil {
		return nil, "", err
	}
	if !q.OccurredBefore.IsZero() && !q.OccurredAfter.IsZero() && !q.OccurredAfter.Before(q.OccurredBefore) {
		return nil, "", &ValidationError{Field: "occurred_after", Value: q.OccurredAfter, Reason: "must be before occurred_before"}
	}
	if !q.GetAll {
		if err := checkRange("limit", q.Limit, 1, openSeaMaxLimit); err != nil {
			return nil, "", err
		}
		if err := checkRange("offset", q.Offset, 0, openSeaMaxOffset); err != nil {
			return nil, "", err
		}
	}

	params := url.Values{}
	setString(params, "asset_contract_address", q.AssetContractAddress)
	setString(params, "collection_slug", q.CollectionSlug)
	setString(params, "token_id", q.TokenID)
	setString(params, "account_address", q.AccountAddress)
	setString(params, "event_type", string(q.EventType))
	setBool(params, "only_opensea", q.OnlyOpenSea)
	setString(params, "auction_type", string(q.AuctionType))
	if !q.OccurredBefore.IsZero() {
		params.Set("occurred_before", strconv.FormatInt(q.OccurredBefore.Unix(), 10))
	}
	if !q.OccurredAfter.IsZero() {
		params.Set("occurred_after", strconv.FormatInt(q.OccurredAfter.Unix(), 10))
	}

	return offsetPages(openSeaBase(q.BaseURL, "/events"), params, q.Offset, q.Limit, q.GetAll), "asset_events", nil
}

// OpenSeaCollections lists collections, optionally those an owner holds.
type OpenSeaCollections struct {
	BaseURL string

	AssetOwner string

	Offset int
	Limit  int
	GetAll bool
}

// Build implements Query.
func (q OpenSeaCollections) Build() (batch.Batch, batch.PageKey, error) {
	if !q.GetAll {
		if err := checkRange("limit", q.Limit, 1, openSeaMaxCollectionLimit); err != nil {
			return nil, "", err
		}
		if err := checkRange("offset", q.Offset, 0, openSeaMaxOffset); err != nil {
			return nil, "", err
		}
	}

	params := url.Values{}
	setString(params, "asset_owner", q.AssetOwner)

	return offsetPages(openSeaBase(q.BaseURL, "/collections"), params, q.Offset, q.Limit, q.GetAll), "collections", nil
}

// OpenSeaBundles lists asset bundles.
type OpenSeaBundles struct {
	BaseURL string

	// OnSale is sent only when set.
	OnSale *bool

	Owner string

	// AssetContractAddress and AssetContractAddresses are mutually exclusive.
	AssetContractAddress   string
	AssetContractAddresses []string
	TokenIDs               []string

	Offset int
	Limit  int
	GetAll bool
}

// Build implements Query.
func (q OpenSeaBundles) Build() (batch.Batch, batch.PageKey, error) {
	if q.AssetContractAddress != "" && len(q.AssetContractAddresses) > 0 {
		return nil, "", &ValidationError{
			Field:  "asset_contract_addresses",
			Value:  q.AssetContractAddresses,
			Reason: "cannot be combined with asset_contract_address",
		}
	}
	if !q.GetAll {
		if err := checkRange("limit", q.Limit, 1, openSeaMaxLimit); err != nil {
			return nil, "", err
		}
		if err := checkRange("offset", q.Offset, 0, openSeaMaxOffset); err != nil {
			return nil, "", err
		}
	}

	params := url.Values{}
	if q.OnSale != nil {
		params.Set("on_sale", strconv.FormatBool(*q.OnSale))
	}
	setString(params, "owner", q.Owner)
	setString(params, "asset_contract_address", q.AssetContractAddress)
	for _, addr := range q.AssetContractAddresses {
		params.Add("asset_contract_addresses", addr)
	}
	for _, id := range q.TokenIDs {
		params.Add("token_ids", id)
	}

	return offsetPages(openSeaBase(q.BaseURL, "/bundles"), params, q.Offset, q.Limit, q.GetAll), "bundles", nil
}
