package marketplace

import (
	"net/url"

	"github.com/asdfghjkxd/NFTScraper/pkg/batch"
)

// MintableBaseURL is the Mintable API root.
const MintableBaseURL = "https://api.mintable.app"

// MintableCategory filters NFTs by category.
type MintableCategory string

const (
	MintableAll          MintableCategory = "_all"
	MintableArt          MintableCategory = "art"
	MintableCollectibles MintableCategory = "collectibles"
	MintableVideos       MintableCategory = "videos"
	MintableMusic        MintableCategory = "music"
	MintableDomains      MintableCategory = "domains"
	MintableTemplates    MintableCategory = "templates"
)

// Mintable networks.
const (
	MintableMainnet = 1
	MintableRinkeby = 4
)

func mintableBase(base string) string {
	if base == "" {
		return MintableBaseURL
	}
	return base
}

// MintableNFTs lists NFTs.
type MintableNFTs struct {
	BaseURL string

	Category    MintableCategory
	Address     string
	Auction     bool
	OrderByDate bool
	Size        int

	// LastKey skips that many items.
	LastKey int

	// Network is MintableMainnet or MintableRinkeby; zero omits it.
	Network int
}

// Build implements Query.
func (q MintableNFTs) Build() (batch.Batch, batch.PageKey, error) {
	if err := oneOf("category", q.Category,
		MintableAll, MintableArt, MintableCollectibles, MintableVideos,
		MintableMusic, MintableDomains, MintableTemplates); err != nil {
		return nil, "", err
	}
	if err := oneOf("network", q.Network, MintableMainnet, MintableRinkeby); err != nil {
		return nil, "", err
	}
	if q.Size < 0 {
		return nil, "", &ValidationError{Field: "size", Value: q.Size, Reason: "must not be negative"}
	}
	if q.LastKey < 0 {
		return nil, "", &ValidationError{Field: "lastKey", Value: q.LastKey, Reason: "must not be negative"}
	}

	params := url.Values{}
	setString(params, "category", string(q.Category))
	setString(params, "address", q.Address)
	setBool(params, "auction", q.Auction)
	setBool(params, "order_by_date", q.OrderByDate)
	setInt(params, "size", q.Size)
	setInt(params, "lastKey", q.LastKey)
	setInt(params, "network", q.Network)

	return batch.Batch{encodeURL(mintableBase(q.BaseURL)+"/assets", params)}, "result", nil
}

// MintableNFT fetches single NFTs by id. Each response is one record.
type MintableNFT struct {
	BaseURL string
	IDs     []string
}

// Build implements Query.
func (q MintableNFT) Build() (batch.Batch, batch.PageKey, error) {
	if len(q.IDs) == 0 {
		return nil, "", &ValidationError{Field: "id", Value: q.IDs, Reason: "at least one id is required"}
	}

	base := mintableBase(q.BaseURL)
	b := make(batch.Batch, 0, len(q.IDs))
	for _, id := range q.IDs {
		if id == "" {
			return nil, "", &ValidationError{Field: "id", Value: id, Reason: "must not be empty"}
		}
		b = append(b, base+"/assets/"+url.PathEscape(id))
	}
	return b, "", nil
}

// MintableGasless lists the gasless NFTs minted by one address. The
// response is a single record.
type MintableGasless struct {
	BaseURL string
	Address string
}

// Build implements Query.
func (q MintableGasless) Build() (batch.Batch, batch.PageKey, error) {
	if q.Address == "" {
		return nil, "", &ValidationError{Field: "address", Value: q.Address, Reason: "must not be empty"}
	}
	params := url.Values{}
	params.Set("address", q.Address)
	return batch.Batch{encodeURL(mintableBase(q.BaseURL)+"/gasless-by-address", params)}, "", nil
}

// MintableAuctionList selects an auction listing.
type MintableAuctionList string

const (
	MintableHotAuctions    MintableAuctionList = "hot-auctions"
	MintableEndingAuctions MintableAuctionList = "auctions-ending-soon"
)

// MintableAuctions fetches the hot or ending-soon auction listing.
type MintableAuctions struct {
	BaseURL string
	List    MintableAuctionList
}

// Build implements Query.
func (q MintableAuctions) Build() (batch.Batch, batch.PageKey, error) {
	if q.List == "" {
		return nil, "", &ValidationError{Field: "list", Value: q.List, Reason: "must be set"}
	}
	if err := oneOf("list", q.List, MintableHotAuctions, MintableEndingAuctions); err != nil {
		return nil, "", err
	}
	return batch.Batch{mintableBase(q.BaseURL) + "/" + string(q.List)}, "result", nil
}
