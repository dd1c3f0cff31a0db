package roadnet

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gosimple/slug"
)

// cacheVersion changes whenever the query or parsing rules change
const cacheVersion = "drive-v1"

const driveFilter = `["highway"]["area"!~"yes"]["access"!~"private"]` +
	`["highway"!~"abandoned|bridleway|bus_guideway|construction|corridor|cycleway|elevator|escalator|footway|no|path|pedestrian|planned|platform|proposed|raceway|razed|service|steps|track"]` +
	`["motor_vehicle"!~"no"]["motorcar"!~"no"]` +
	`["service"!~"alley|driveway|emergency_access|parking|parking_aisle|private"]`

// Manifest describes a cached network download
type Manifest struct {
	GeneratedAt string `json:"generated_at"`
	Version     string `json:"version"`
	Place       string `json:"place"`
	Source      string `json:"source"`
}

// OverpassProvider fetches the drivable street network of an administrative
// area from the Overpass API and keeps it in an on-disk cache.
type OverpassProvider struct {
	URL        string
	Place      string // display name, also the cache key
	AreaName   string // value of the area's name tag
	CacheDir   string
	MaxAgeDays int
	Client     *http.Client
}

// Load implements Provider. A fresh cache is used as is; a stale cache is
// refreshed, and kept when the refresh fails.
func (p *OverpassProvider) Load(ctx context.Context) (*Network, error) {
	osmPath, manifestPath := p.cachePaths()

	if !isStaleOrMissing(manifestPath, p.MaxAgeDays) {
		log.Printf("Using cached road network: %s", osmPath)
		return p.parseFile(ctx, osmPath)
	}

	log.Printf("Downloading road network for %q from %s", p.Place, p.URL)
	if err := p.download(ctx, osmPath, manifestPath); err != nil {
		if _, statErr := os.Stat(osmPath); statErr == nil {
			log.Printf("Warning: road network refresh failed, using stale cache: %v", err)
			return p.parseFile(ctx, osmPath)
		}
		return nil, fmt.Errorf("failed to download road network: %w", err)
	}

	return p.parseFile(ctx, osmPath)
}

func (p *OverpassProvider) cachePaths() (string, string) {
	name := slug.Make(p.Place)
	if name == "" {
		name = "network"
	}
	return filepath.Join(p.CacheDir, name+".osm"),
		filepath.Join(p.CacheDir, name+".manifest.json")
}

// Query returns the Overpass QL request for the drivable network
func (p *OverpassProvider) Query() string {
	area := strings.ReplaceAll(p.AreaName, `"`, `\"`)
	return fmt.Sprintf(`[out:xml][timeout:300];
area["name"="%s"]["boundary"="administrative"]->.searchArea;
(way%s(area.searchArea););
(._;>;);
out body;`, area, driveFilter)
}

func (p *OverpassProvider) download(ctx context.Context, osmPath, manifestPath string) error {
	if err := os.MkdirAll(p.CacheDir, 0755); err != nil {
		return err
	}

	client := p.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Minute}
	}

	form := url.Values{"data": {p.Query()}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("overpass returned status %d", resp.StatusCode)
	}

	tmp := osmPath + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, osmPath); err != nil {
		return err
	}

	manifest := Manifest{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Version:     cacheVersion,
		Place:       p.Place,
		Source:      p.URL,
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(manifestPath, data, 0644)
}

func (p *OverpassProvider) parseFile(ctx context.Context, path string) (*Network, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open road network cache: %w", err)
	}
	defer f.Close()

	return ParseOSM(ctx, f, path)
}

func isStaleOrMissing(manifestPath string, maxAgeDays int) bool {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return true
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return true
	}
	if manifest.Version != cacheVersion {
		return true
	}

	generatedAt, err := time.Parse(time.RFC3339, manifest.GeneratedAt)
	if err != nil {
		return true
	}

	age := time.Since(generatedAt)
	maxAge := time.Duration(maxAgeDays) * 24 * time.Hour

	return age > maxAge
}
