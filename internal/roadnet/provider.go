package roadnet

import (
	"github.com/berlin-traffic-map/roadkpi/internal/config"
)

// NewProvider picks the network source from configuration: a GeoJSON file
// when one is configured, the Overpass API otherwise.
func NewProvider(cfg *config.Config) Provider {
	if cfg.NetworkGeoJSON != "" {
		return &GeoJSONProvider{Path: cfg.NetworkGeoJSON}
	}
	return &OverpassProvider{
		URL:        cfg.OverpassURL,
		Place:      cfg.NetworkPlace,
		AreaName:   cfg.NetworkAreaName,
		CacheDir:   cfg.CacheDir,
		MaxAgeDays: cfg.NetworkMaxAgeDays,
	}
}
