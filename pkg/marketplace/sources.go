package marketplace

import (
	"fmt"
	"sort"
	"strings"
)

// Params is the flat, marketplace-agnostic form of a query as it arrives
// from a command line or config file. Each source reads the fields it
// understands and ignores the rest.
type Params struct {
	BaseURL string

	Owner      string
	Collection string
	Contracts  []string
	TokenIDs   []string
	IDs        []string

	OrderBy   string
	Direction string
	EventType string
	Category  string
	Status    string
	Name      string
	Metadata  string

	Symbols       []string
	Blacklist     []string
	ActivityTypes []string

	// OnSale is tri-state: nil leaves the filter off.
	OnSale      *bool
	SellOrders  bool
	BuyOrders   bool
	IncludeFees bool
	IncludeMeta bool

	UpdatedMin string
	UpdatedMax string

	Cursor string
	Offset int
	Limit  int
	GetAll bool

	Network int
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

type sourceFunc func(Params) Query

var sources = map[string]sourceFunc{
	"opensea-assets": func(p Params) Query {
		return OpenSeaAssets{
			BaseURL:                p.BaseURL,
			Owner:                  p.Owner,
			TokenIDs:               p.TokenIDs,
			AssetContractAddresses: p.Contracts,
			OrderBy:                OpenSeaAssetOrder(p.OrderBy),
			OrderDirection:         Direction(p.Direction),
			Collection:             p.Collection,
			Offset:                 p.Offset,
			Limit:                  p.Limit,
			GetAll:                 p.GetAll,
		}
	},
	"opensea-events": func(p Params) Query {
		q := OpenSeaEvents{
			BaseURL:        p.BaseURL,
			CollectionSlug: p.Collection,
			AccountAddress: p.Owner,
			EventType:      OpenSeaEventType(p.EventType),
			Offset:         p.Offset,
			Limit:          p.Limit,
			GetAll:         p.GetAll,
		}
		if len(p.Contracts) > 0 {
			q.AssetContractAddress = p.Contracts[0]
		}
		if len(p.TokenIDs) > 0 {
			q.TokenID = p.TokenIDs[0]
		}
		return q
	},
	"opensea-bundles": func(p Params) Query {
		return OpenSeaBundles{
			BaseURL:                p.BaseURL,
			OnSale:                 p.OnSale,
			Owner:                  p.Owner,
			AssetContractAddresses: p.Contracts,
			TokenIDs:               p.TokenIDs,
			Offset:                 p.Offset,
			Limit:                  p.Limit,
			GetAll:                 p.GetAll,
		}
	},
	"opensea-collections": func(p Params) Query {
		return OpenSeaCollections{
			BaseURL:    p.BaseURL,
			AssetOwner: p.Owner,
			Offset:     p.Offset,
			Limit:      p.Limit,
			GetAll:     p.GetAll,
		}
	},
	"immutablex-assets": func(p Params) Query {
		return ImmutableXAssets{
			BaseURL:    p.BaseURL,
			PageSize:   p.Limit,
			Cursor:     p.Cursor,
			OrderBy:    ImmutableXOrder(p.OrderBy),
			Direction:  Direction(p.Direction),
			User:       p.Owner,
			Status:     p.Status,
			Name:       p.Name,
			Metadata:   p.Metadata,
			Collection: p.Collection,

			SellOrders:  p.SellOrders,
			BuyOrders:   p.BuyOrders,
			IncludeFees: p.IncludeFees,

			UpdatedMinTimestamp: p.UpdatedMin,
			UpdatedMaxTimestamp: p.UpdatedMax,
		}
	},
	"immutablex-asset": func(p Params) Query {
		return ImmutableXAsset{
			BaseURL:      p.BaseURL,
			TokenAddress: first(p.Contracts),
			TokenID:      first(p.TokenIDs),
			IncludeFees:  p.IncludeFees,
		}
	},
	"immutablex-collections": func(p Params) Query {
		return ImmutableXCollections{
			BaseURL:   p.BaseURL,
			PageSize:  p.Limit,
			Cursor:    p.Cursor,
			OrderBy:   ImmutableXOrder(p.OrderBy),
			Direction: Direction(p.Direction),
			Blacklist: p.Blacklist,
		}
	},
	"immutablex-collection": func(p Params) Query {
		return ImmutableXCollection{BaseURL: p.BaseURL, Addresses: p.IDs}
	},
	"immutablex-collection-filters": func(p Params) Query {
		return ImmutableXCollectionFilters{
			BaseURL:       p.BaseURL,
			Address:       p.Collection,
			PageSize:      p.Limit,
			NextPageToken: p.Cursor,
		}
	},
	"immutablex-tokens": func(p Params) Query {
		return ImmutableXTokens{BaseURL: p.BaseURL, Address: first(p.Contracts), Symbols: p.Symbols}
	},
	"immutablex-token": func(p Params) Query {
		return ImmutableXToken{BaseURL: p.BaseURL, Addresses: p.IDs}
	},
	"rarible-items": func(p Params) Query {
		q := RaribleItems{
			BaseURL:      p.BaseURL,
			Continuation: p.Cursor,
			Size:         p.Limit,
			IncludeMeta:  p.IncludeMeta,
		}
		switch {
		case p.Owner != "":
			q.Filter, q.Subject = RaribleByOwner, p.Owner
		case p.Collection != "":
			q.Filter, q.Subject = RaribleByCollection, p.Collection
		}
		return q
	},
	"rarible-ownerships": func(p Params) Query {
		return RaribleOwnerships{
			BaseURL:      p.BaseURL,
			Contract:     first(p.Contracts),
			TokenID:      first(p.TokenIDs),
			Continuation: p.Cursor,
			Size:         p.Limit,
		}
	},
	"rarible-ownership": func(p Params) Query {
		return RaribleOwnership{BaseURL: p.BaseURL, IDs: p.IDs}
	},
	"rarible-collections": func(p Params) Query {
		return RaribleCollections{
			BaseURL:      p.BaseURL,
			Owner:        p.Owner,
			Continuation: p.Cursor,
			Size:         p.Limit,
		}
	},
	"rarible-collection": func(p Params) Query {
		return RaribleCollection{BaseURL: p.BaseURL, IDs: p.IDs}
	},
	"rarible-activities": func(p Params) Query {
		q := RaribleActivities{
			BaseURL:      p.BaseURL,
			Continuation: p.Cursor,
			Size:         p.Limit,
		}
		for _, t := range p.ActivityTypes {
			q.Types = append(q.Types, RaribleActivityType(strings.ToUpper(t)))
		}
		switch {
		case p.Owner != "":
			q.Filter, q.User = RaribleActivitiesByUser, p.Owner
		case len(p.Contracts) > 0:
			q.Filter, q.Contract, q.TokenID = RaribleActivitiesByItem, first(p.Contracts), first(p.TokenIDs)
		case p.Collection != "":
			q.Filter, q.Collection = RaribleActivitiesByCollection, p.Collection
		}
		return q
	},
	"mintable-nfts": func(p Params) Query {
		return MintableNFTs{
			BaseURL:  p.BaseURL,
			Category: MintableCategory(p.Category),
			Address:  p.Owner,
			Size:     p.Limit,
			LastKey:  p.Offset,
			Network:  p.Network,
		}
	},
	"mintable-nft": func(p Params) Query {
		return MintableNFT{BaseURL: p.BaseURL, IDs: p.IDs}
	},
	"mintable-gasless": func(p Params) Query {
		return MintableGasless{BaseURL: p.BaseURL, Address: p.Owner}
	},
	"mintable-hot-auctions": func(p Params) Query {
		return MintableAuctions{BaseURL: p.BaseURL, List: MintableHotAuctions}
	},
	"mintable-ending-auctions": func(p Params) Query {
		return MintableAuctions{BaseURL: p.BaseURL, List: MintableEndingAuctions}
	},
}

// Sources lists the registered source names in sorted order.
func Sources() []string {
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewQuery maps params onto the typed query for source.
func NewQuery(source string, p Params) (Query, error) {
	fn, ok := sources[strings.ToLower(strings.TrimSpace(source))]
	if !ok {
		return nil, fmt.Errorf("unknown source %q (available: %s)", source, strings.Join(Sources(), ", "))
	}
	return fn(p), nil
}
