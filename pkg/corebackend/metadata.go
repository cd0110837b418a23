package corebackend

import "github.com/corewire/backend/pkg/catalog"

type pluginMetadataReader struct {
	byPlugin map[string]Metadata
}

func newPluginMetadataReader(idx *catalog.Index, pluginIDs map[string]struct{}) *pluginMetadataReader {
	out := make(map[string]Metadata, len(pluginIDs))
	for pid := range pluginIDs {
		meta := Metadata{PluginID: pid}
		for moduleID := range idx.ModuleInits[pid] {
			meta.ModuleIDs = append(meta.ModuleIDs, moduleID)
		}
		if pi, ok := idx.PluginInits[pid]; ok {
			for extID := range pi.Provides {
				meta.ExtensionPointIDs = append(meta.ExtensionPointIDs, extID)
			}
		}
		for moduleID := range idx.ModuleInits[pid] {
			for extID := range idx.ModuleInits[pid][moduleID].Provides {
				meta.ExtensionPointIDs = append(meta.ExtensionPointIDs, extID)
			}
		}
		out[pid] = meta
	}
	return &pluginMetadataReader{byPlugin: out}
}

// Get returns the metadata recorded for pluginID, if any.
func (r *pluginMetadataReader) Get(pluginID string) (Metadata, bool) {
	m, ok := r.byPlugin[pluginID]
	return m, ok
}
