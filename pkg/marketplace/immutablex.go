package marketplace

import (
	"net/url"
	"strings"

	"github.com/asdfghjkxd/NFTScraper/pkg/batch"
)

// ImmutableXBaseURL is the ImmutableX v1 API root.
const ImmutableXBaseURL = "https://api.x.immutable.com/v1"

// ImmutableXOrder is an asset sort field.
type ImmutableXOrder string

const (
	ImmutableXOrderUpdatedAt ImmutableXOrder = "updated_at"
	ImmutableXOrderName      ImmutableXOrder = "name"
)

const immutableXMaxPageSize = 200

// ImmutableXAssets lists assets. The API paginates by cursor, so one query
// is one page; pass the cursor from the previous page to continue.
type ImmutableXAssets struct {
	BaseURL string

	PageSize    int
	Cursor      string
	OrderBy     ImmutableXOrder
	Direction   Direction
	User        string
	Status      string
	Name        string
	Metadata    string
	Collection  string
	SellOrders  bool
	BuyOrders   bool
	IncludeFees bool

	UpdatedMinTimestamp string
	UpdatedMaxTimestamp string
}

// Build implements Query.
func (q ImmutableXAssets) Build() (batch.Batch, batch.PageKey, error) {
	if err := checkRange("page_size", q.PageSize, 0, immutableXMaxPageSize); err != nil {
		return nil, "", err
	}
	if err := oneOf("order_by", q.OrderBy, ImmutableXOrderUpdatedAt, ImmutableXOrderName); err != nil {
		return nil, "", err
	}
	if err := q.Direction.validate("direction"); err != nil {
		return nil, "", err
	}

	params := url.Values{}
	setInt(params, "page_size", q.PageSize)
	setString(params, "cursor", q.Cursor)
	setString(params, "order_by", string(q.OrderBy))
	setString(params, "direction", string(q.Direction))
	setString(params, "user", q.User)
	setString(params, "status", q.Status)
	setString(params, "name", q.Name)
	setString(params, "metadata", q.Metadata)
	setString(params, "collection", q.Collection)
	setBool(params, "sell_orders", q.SellOrders)
	setBool(params, "buy_orders", q.BuyOrders)
	setBool(params, "include_fees", q.IncludeFees)
	setString(params, "updated_min_timestamp", q.UpdatedMinTimestamp)
	setString(params, "updated_max_timestamp", q.UpdatedMaxTimestamp)

	return batch.Batch{encodeURL(immutableXBase(q.BaseURL)+"/assets", params)}, "result", nil
}

func immutableXBase(base string) string {
	if base == "" {
		return ImmutableXBaseURL
	}
	return base
}

// ImmutableXAsset fetches one asset by contract address and token id.
type ImmutableXAsset struct {
	BaseURL string

	TokenAddress string
	TokenID      string
	IncludeFees  bool
}

// Build implements Query.
func (q ImmutableXAsset) Build() (batch.Batch, batch.PageKey, error) {
	addr, err := pathSegment("token_address", q.TokenAddress)
	if err != nil {
		return nil, "", err
	}
	id, err := pathSegment("token_id", q.TokenID)
	if err != nil {
		return nil, "", err
	}

	params := url.Values{}
	setBool(params, "include_fees", q.IncludeFees)
	return batch.Batch{encodeURL(immutableXBase(q.BaseURL)+"/assets/"+addr+"/"+id, params)}, "", nil
}

// ImmutableXCollections lists collections.
type ImmutableXCollections struct {
	BaseURL string

	PageSize  int
	Cursor    string
	OrderBy   ImmutableXOrder
	Direction Direction

	// Blacklist hides these collection addresses.
	Blacklist []string
}

// Build implements Query.
func (q ImmutableXCollections) Build() (batch.Batch, batch.PageKey, error) {
	if err := checkRange("page_size", q.PageSize, 0, immutableXMaxPageSize); err != nil {
		return nil, "", err
	}
	if err := oneOf("order_by", q.OrderBy, ImmutableXOrderUpdatedAt, ImmutableXOrderName); err != nil {
		return nil, "", err
	}
	if err := q.Direction.validate("direction"); err != nil {
		return nil, "", err
	}

	params := url.Values{}
	setInt(params, "page_size", q.PageSize)
	setString(params, "cursor", q.Cursor)
	setString(params, "order_by", string(q.OrderBy))
	setString(params, "direction", string(q.Direction))
	setString(params, "blacklist", strings.Join(q.Blacklist, ","))

	return batch.Batch{encodeURL(immutableXBase(q.BaseURL)+"/collections", params)}, "result", nil
}

// ImmutableXCollection fetches collections by contract address.
type ImmutableXCollection struct {
	BaseURL   string
	Addresses []string
}

// Build implements Query.
func (q ImmutableXCollection) Build() (batch.Batch, batch.PageKey, error) {
	return singlePages("address", immutableXBase(q.BaseURL), "/collections/", q.Addresses)
}

// ImmutableXCollectionFilters lists the metadata filters of one collection.
// The response is a single record.
type ImmutableXCollectionFilters struct {
	BaseURL string

	Address       string
	PageSize      int
	NextPageToken string
}

// Build implements Query.
func (q ImmutableXCollectionFilters) Build() (batch.Batch, batch.PageKey, error) {
	addr, err := pathSegment("address", q.Address)
	if err != nil {
		return nil, "", err
	}
	if err := checkRange("page_size", q.PageSize, 0, immutableXMaxPageSize); err != nil {
		return nil, "", err
	}

	params := url.Values{}
	setInt(params, "page_size", q.PageSize)
	setString(params, "next_page_token", q.NextPageToken)

	return batch.Batch{encodeURL(immutableXBase(q.BaseURL)+"/collections/"+addr+"/filters", params)}, "", nil
}

// ImmutableXTokens lists the tokens ImmutableX supports.
type ImmutableXTokens struct {
	BaseURL string

	Address string
	Symbols []string
}

// Build implements Query.
func (q ImmutableXTokens) Build() (batch.Batch, batch.PageKey, error) {
	params := url.Values{}
	setString(params, "address", q.Address)
	setString(params, "symbols", strings.Join(q.Symbols, ","))

	return batch.Batch{encodeURL(immutableXBase(q.BaseURL)+"/tokens", params)}, "result", nil
}

// ImmutableXToken fetches token details by contract address.
type ImmutableXToken struct {
	BaseURL   string
	Addresses []string
}

// Build implements Query.
func (q ImmutableXToken) Build() (batch.Batch, batch.PageKey, error) {
	return singlePages("address", immutableXBase(q.BaseURL), "/tokens/", q.Addresses)
}
