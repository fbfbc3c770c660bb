package models

// ProviderStatistics counts a user's connections for one provider.
type ProviderStatistics struct {
	Total  int64 `json:"total"`
	Active int64 `json:"active"`
}

// ConnectionStatistics is computed on demand and never stored. ByProvider
// always holds an entry for every supported provider, keyed by slug.
type ConnectionStatistics struct {
	Total      int64                         `json:"total"`
	Active     int64                         `json:"active"`
	ByProvider map[string]ProviderStatistics `json:"byProvider"`
}

// NewConnectionStatistics returns zeroed statistics with every provider present.
func NewConnectionStatistics() *ConnectionStatistics {
	stats := &ConnectionStatistics{ByProvider: make(map[string]ProviderStatistics, len(AllProviders))}
	for _, p := range AllProviders {
		stats.ByProvider[p.Slug()] = ProviderStatistics{}
	}
	return stats
}
