package conversations

import (
	"time"

	"github.com/user/opla/internal/types"
)

// ResolveConnector returns the connector of the given type. Conversations
// saved before connectors existed only carry Model and Provider; a model
// connector is synthesized from those.
func ResolveConnector(c types.Conversation, kind types.ConnectorType) (types.Connector, bool) {
	for _, s := range c.Services {
		if s.Type == kind {
			return s, true
		}
	}
	if kind == types.ConnectorModel && c.Model != "" {
		return types.Connector{
			Type:       types.ConnectorModel,
			ModelID:    c.Model,
			ProviderID: c.Provider,
		}, true
	}
	return types.Connector{}, false
}

// AddOrReplaceConnector keeps at most one connector per type: an existing
// connector of the same type is replaced in place, otherwise next is appended.
func AddOrReplaceConnector(connectors []types.Connector, next types.Connector) []types.Connector {
	out := make([]types.Connector, 0, len(connectors)+1)
	replaced := false
	for _, c := range connectors {
		if c.Type == next.Type {
			if !replaced {
				out = append(out, next)
				replaced = true
			}
			continue
		}
		out = append(out, c)
	}
	if !replaced {
		out = append(out, next)
	}
	return out
}

// RemoveConnector drops the connector of the given type.
func RemoveConnector(connectors []types.Connector, kind types.ConnectorType) []types.Connector {
	out := make([]types.Connector, 0, len(connectors))
	for _, c := range connectors {
		if c.Type != kind {
			out = append(out, c)
		}
	}
	return out
}

// AddAssets attaches files to c. Paths already attached as file assets are
// skipped. It returns the updated conversation and the assets created.
func AddAssets(c types.Conversation, paths []string, now time.Time) (types.Conversation, []types.Asset) {
	known := make(map[string]bool, len(c.Assets)+len(paths))
	for _, a := range c.Assets {
		if a.Type == types.AssetFile {
			known[a.File] = true
		}
	}

	var created []types.Asset
	for _, p := range paths {
		if p == "" || known[p] {
			continue
		}
		known[p] = true
		created = append(created, types.Asset{
			ID:     types.NewAssetID(),
			Record: types.NewRecord(now),
			Type:   types.AssetFile,
			File:   p,
		})
	}
	if len(created) == 0 {
		return c, nil
	}

	assets := make([]types.Asset, 0, len(c.Assets)+len(created))
	assets = append(assets, c.Assets...)
	c.Assets = append(assets, created...)
	c.Touch(now)
	return c, created
}

// RemoveAsset detaches the asset with the given id.
func RemoveAsset(c types.Conversation, id types.AssetID, now time.Time) types.Conversation {
	assets := make([]types.Asset, 0, len(c.Assets))
	for _, a := range c.Assets {
		if a.ID != id {
			assets = append(assets, a)
		}
	}
	if len(assets) == len(c.Assets) {
		return c
	}
	c.Assets = assets
	c.Touch(now)
	return c
}
