package updater

import (
	"sort"

	"github.com/uniconv/uniconv/internal/install"
	"github.com/uniconv/uniconv/internal/manifest"
)

// Outdated is an installed plugin with a newer version in the index.
type Outdated struct {
	Name      string `json:"name"`
	Installed string `json:"installed"`
	Latest    string `json:"latest"`
}

// Check compares install records with the index. Plugins missing from the
// index or carrying unparseable versions are skipped.
func Check(idx *manifest.Index, records []*install.Record) []Outdated {
	var out []Outdated
	for _, rec := range records {
		entry, ok := idx.Lookup(rec.Name)
		if !ok {
			continue
		}
		newer, err := manifest.IsNewer(rec.Version, entry.Latest)
		if err != nil || !newer {
			continue
		}
		out = append(out, Outdated{Name: rec.Name, Installed: rec.Version, Latest: entry.Latest})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the plugin names in list.
func Names(list []Outdated) []string {
	names := make([]string, len(list))
	for i, o := range list {
		names[i] = o.Name
	}
	return names
}
