package marketplace

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/asdfghjkxd/NFTScraper/pkg/batch"
)

// RaribleBaseURL is the Rarible protocol API root for Ethereum.
const RaribleBaseURL = "https://api-staging.rarible.com/protocol/v0.1/ethereum"

// RaribleItemFilter selects which items endpoint is queried.
type RaribleItemFilter string

const (
	RaribleAllItems     RaribleItemFilter = "all"
	RaribleByOwner      RaribleItemFilter = "byOwner"
	RaribleByCreator    RaribleItemFilter = "byCreator"
	RaribleByCollection RaribleItemFilter = "byCollection"
)

const raribleMaxSize = 1000

// RaribleItems lists NFT items.
type RaribleItems struct {
	BaseURL string

	// Filter defaults to RaribleAllItems.
	Filter RaribleItemFilter

	// Subject is the owner, creator or collection address the filter
	// selects on. It must be empty for RaribleAllItems.
	Subject string

	Continuation string
	Size         int
	IncludeMeta  bool

	// Only valid with RaribleAllItems.
	ShowDeleted     bool
	LastUpdatedFrom int64
	LastUpdatedTo   int64
}

// Build implements Query.
func (q RaribleItems) Build() (batch.Batch, batch.PageKey, error) {
	filter := q.Filter
	if filter == "" {
		filter = RaribleAllItems
	}
	if err := oneOf("filter", filter, RaribleAllItems, RaribleByOwner, RaribleByCreator, RaribleByCollection); err != nil {
		return nil, "", err
	}
	if err := checkRange("size", q.Size, 0, raribleMaxSize); err != nil {
		return nil, "", err
	}

	params := url.Values{}
	switch filter {
	case RaribleAllItems:
		if q.Subject != "" {
			return nil, "", &ValidationError{Field: "subject", Value: q.Subject, Reason: "not accepted when listing all items"}
		}
		setBool(params, "showDeleted", q.ShowDeleted)
		if q.LastUpdatedFrom != 0 {
			params.Set("lastUpdatedFrom", strconv.FormatInt(q.LastUpdatedFrom, 10))
		}
		if q.LastUpdatedTo != 0 {
			params.Set("lastUpdatedTo", strconv.FormatInt(q.LastUpdatedTo, 10))
		}
	default:
		if q.Subject == "" {
			return nil, "", &ValidationError{Field: "subject", Value: q.Subject, Reason: "required for " + string(filter)}
		}
		if q.ShowDeleted || q.LastUpdatedFrom != 0 || q.LastUpdatedTo != 0 {
			return nil, "", &ValidationError{Field: "filter", Value: filter, Reason: "showDeleted and lastUpdated bounds need the all filter"}
		}
		params.Set(raribleSubjectParam(filter), q.Subject)
	}
	setString(params, "continuation", q.Continuation)
	setInt(params, "size", q.Size)
	setBool(params, "includeMeta", q.IncludeMeta)

	return batch.Batch{encodeURL(raribleBase(q.BaseURL)+"/nft/items/"+string(filter), params)}, "items", nil
}

func raribleBase(base string) string {
	if base == "" {
		return RaribleBaseURL
	}
	return base
}

// raribleItemParams sets the contract/tokenId pair that names one item.
// Both or neither must be given.
func raribleItemParams(params url.Values, contract, tokenID string) error {
	if (contract == "") != (tokenID == "") {
		return &ValidationError{Field: "tokenId", Value: tokenID, Reason: "contract and tokenId must be given together"}
	}
	setString(params, "contract", contract)
	setString(params, "tokenId", tokenID)
	return nil
}

// RaribleOwnerships lists ownerships, of one item when Contract and TokenID
// are set and of every item otherwise.
type RaribleOwnerships struct {
	BaseURL string

	Contract string
	TokenID  string

	Continuation string
	Size         int
}

// Build implements Query.
func (q RaribleOwnerships) Build() (batch.Batch, batch.PageKey, error) {
	if err := checkRange("size", q.Size, 0, raribleMaxSize); err != nil {
		return nil, "", err
	}

	params := url.Values{}
	if err := raribleItemParams(params, q.Contract, q.TokenID); err != nil {
		return nil, "", err
	}
	setString(params, "continuation", q.Continuation)
	setInt(params, "size", q.Size)

	path := "/nft/ownerships/all"
	if q.Contract != "" {
		path = "/nft/ownerships/byItem"
	}
	return batch.Batch{encodeURL(raribleBase(q.BaseURL)+path, params)}, "ownerships", nil
}

// RaribleOwnership fetches ownerships by id.
type RaribleOwnership struct {
	BaseURL string
	IDs     []string
}

// Build implements Query.
func (q RaribleOwnership) Build() (batch.Batch, batch.PageKey, error) {
	return singlePages("ownershipId", raribleBase(q.BaseURL), "/nft/ownerships/", q.IDs)
}

// RaribleCollections lists NFT collections, optionally of one owner.
type RaribleCollections struct {
	BaseURL string

	Owner        string
	Continuation string
	Size         int
}

// Build implements Query.
func (q RaribleCollections) Build() (batch.Batch, batch.PageKey, error) {
	if err := checkRange("size", q.Size, 0, raribleMaxSize); err != nil {
		return nil, "", err
	}

	params := url.Values{}
	setString(params, "owner", q.Owner)
	setString(params, "continuation", q.Continuation)
	setInt(params, "size", q.Size)

	path := "/nft/collections/all"
	if q.Owner != "" {
		path = "/nft/collections/byOwner"
	}
	return batch.Batch{encodeURL(raribleBase(q.BaseURL)+path, params)}, "collections", nil
}

// RaribleCollection fetches collections by id.
type RaribleCollection struct {
	BaseURL string
	IDs     []string
}

// Build implements Query.
func (q RaribleCollection) Build() (batch.Batch, batch.PageKey, error) {
	return singlePages("collection", raribleBase(q.BaseURL), "/nft/collections/", q.IDs)
}

// RaribleActivityType is an order activity kind.
type RaribleActivityType string

const (
	ActivityTransferFrom RaribleActivityType = "TRANSFER_FROM"
	ActivityTransferTo   RaribleActivityType = "TRANSFER_TO"
	ActivityMint         RaribleActivityType = "MINT"
	ActivityBurn         RaribleActivityType = "BURN"
	ActivityMakeBid      RaribleActivityType = "MAKE_BID"
	ActivityGetBid       RaribleActivityType = "GET_BID"
	ActivityList         RaribleActivityType = "LIST"
	ActivityBuy          RaribleActivityType = "BUY"
	ActivitySell         RaribleActivityType = "SELL"
)

var raribleActivityTypes = []RaribleActivityType{
	ActivityTransferFrom, ActivityTransferTo, ActivityMint, ActivityBurn,
	ActivityMakeBid, ActivityGetBid, ActivityList, ActivityBuy, ActivitySell,
}

// RaribleActivityFilter selects which activities endpoint is queried.
type RaribleActivityFilter string

const (
	RaribleAllActivities          RaribleActivityFilter = "all"
	RaribleActivitiesByUser       RaribleActivityFilter = "byUser"
	RaribleActivitiesByItem       RaribleActivityFilter = "byItem"
	RaribleActivitiesByCollection RaribleActivityFilter = "byCollection"
)

// RaribleActivities lists order activities of the given types.
type RaribleActivities struct {
	BaseURL string

	// Types is required.
	Types []RaribleActivityType

	// Filter defaults to RaribleAllActivities. byUser needs User, byItem
	// needs Contract and TokenID, byCollection needs Collection.
	Filter     RaribleActivityFilter
	User       string
	Contract   string
	TokenID    string
	Collection string

	Continuation string
	Size         int
}

// Build implements Query.
func (q RaribleActivities) Build() (batch.Batch, batch.PageKey, error) {
	filter := q.Filter
	if filter == "" {
		filter = RaribleAllActivities
	}
	if err := oneOf("filter", filter, RaribleAllActivities, RaribleActivitiesByUser, RaribleActivitiesByItem, RaribleActivitiesByCollection); err != nil {
		return nil, "", err
	}
	if len(q.Types) == 0 {
		return nil, "", &ValidationError{Field: "type", Value: q.Types, Reason: "at least one activity type is required"}
	}
	types := make([]string, len(q.Types))
	for i, t := range q.Types {
		if t == "" {
			return nil, "", &ValidationError{Field: "type", Value: t, Reason: "must not be empty"}
		}
		if err := oneOf("type", t, raribleActivityTypes...); err != nil {
			return nil, "", err
		}
		types[i] = string(t)
	}
	if err := checkRange("size", q.Size, 0, raribleMaxSize); err != nil {
		return nil, "", err
	}

	params := url.Values{}
	params.Set("type", strings.Join(types, ","))
	switch filter {
	case RaribleActivitiesByUser:
		if q.User == "" {
			return nil, "", &ValidationError{Field: "user", Value: q.User, Reason: "required for byUser"}
		}
		params.Set("user", q.User)
	case RaribleActivitiesByItem:
		if q.Contract == "" {
			return nil, "", &ValidationError{Field: "contract", Value: q.Contract, Reason: "required for byItem"}
		}
		if err := raribleItemParams(params, q.Contract, q.TokenID); err != nil {
			return nil, "", err
		}
	case RaribleActivitiesByCollection:
		if q.Collection == "" {
			return nil, "", &ValidationError{Field: "collection", Value: q.Collection, Reason: "required for byCollection"}
		}
		params.Set("collection", q.Collection)
	}
	setString(params, "continuation", q.Continuation)
	setInt(params, "size", q.Size)

	return batch.Batch{encodeURL(raribleBase(q.BaseURL)+"/nft-order/activities/"+string(filter), params)}, "items", nil
}

func raribleSubjectParam(f RaribleItemFilter) string {
	switch f {
	case RaribleByOwner:
		return "owner"
	case RaribleByCreator:
		return "creator"
	default:
		return "collection"
	}
}
