package models

import "github.com/berlin-traffic-map/roadkpi/internal/kpi"

// Option is a selectable value with its display label
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// VehicleOptions returns the vehicle type selector entries
func VehicleOptions() []Option {
	return []Option{
		{Value: string(kpi.VehicleAll), Label: "All Vehicles"},
		{Value: string(kpi.VehicleCars), Label: "Cars"},
		{Value: string(kpi.VehicleTrucks), Label: "Trucks"},
	}
}

// KPIOptions returns the KPI selector entries
func KPIOptions() []Option {
	return []Option{
		{Value: string(kpi.NumberOfVehicles), Label: "Number of Vehicles"},
		{Value: string(kpi.AvgSpeed), Label: "Average Speed (km/h)"},
	}
}

// ColorStop colours values strictly greater than Above
type ColorStop struct {
	Above float64 `json:"above"`
	Color string  `json:"color"`
	Label string  `json:"label"`
}

// ColorScale maps KPI values to line colours, highest stop first
type ColorScale struct {
	Stops    []ColorStop `json:"stops"`
	Fallback ColorStop   `json:"fallback"`
}

// Color returns the colour for a value
func (c ColorScale) Color(v float64) string {
	for _, s := range c.Stops {
		if v > s.Above {
			return s.Color
		}
	}
	return c.Fallback.Color
}

var speedScale = ColorScale{
	Stops: []ColorStop{
		{70, "#1A9850", "70+ km/h"},
		{60, "#66BD63", "61-70 km/h"},
		{50, "#A6D96A", "51-60 km/h"},
		{40, "#D9EF8B", "41-50 km/h"},
		{30, "#FEE08B", "31-40 km/h"},
		{20, "#FDAE61", "21-30 km/h"},
		{0, "#F46D43", "1-20 km/h"},
	},
	Fallback: ColorStop{Color: "#D73027", Label: "0 km/h"},
}

var countScale = ColorScale{
	Stops: []ColorStop{
		{2000, "#A50026", "2000+"},
		{1000, "#D73027", "1001-2000"},
		{500, "#F46D43", "501-1000"},
		{200, "#FDAE61", "201-500"},
		{100, "#FEE08B", "101-200"},
		{50, "#D9EF8B", "51-100"},
		{20, "#A6D96A", "21-50"},
	},
	Fallback: ColorStop{Color: "#66BD63", Label: "0-20"},
}

// ScaleFor returns the colour scale of a metric kind
func ScaleFor(kind kpi.MetricKind) ColorScale {
	if kind == kpi.AvgSpeed {
		return speedScale
	}
	return countScale
}

// AnimationSpeed bounds the frame interval in milliseconds
type AnimationSpeed struct {
	MinMs     int `json:"min_ms"`
	MaxMs     int `json:"max_ms"`
	StepMs    int `json:"step_ms"`
	DefaultMs int `json:"default_ms"`
}

// DefaultAnimationSpeed matches the dashboard slider
var DefaultAnimationSpeed = AnimationSpeed{MinMs: 100, MaxMs: 2000, StepMs: 100, DefaultMs: 1000}

// MapView is the initial map position
type MapView struct {
	Center  [2]float64 `json:"center"` // [lat, lon]
	Zoom    int        `json:"zoom"`
	TileURL string     `json:"tile_url"`
	Attrib  string     `json:"attribution"`
}

// BerlinView centres the dashboard map on Berlin
var BerlinView = MapView{
	Center:  [2]float64{52.52, 13.405},
	Zoom:    12,
	TileURL: "https://{s}.basemaps.cartocdn.com/light_all/{z}/{x}/{y}{r}.png",
	Attrib:  "&copy; OpenStreetMap contributors &copy; CARTO",
}

// Options is the payload of GET /api/options
type Options struct {
	VehicleTypes   []Option              `json:"vehicle_types"`
	KPITypes       []Option              `json:"kpi_types"`
	DefaultVehicle string                `json:"default_vehicle_type"`
	DefaultKPI     string                `json:"default_kpi_type"`
	Animation      AnimationSpeed        `json:"animation"`
	ColorScales    map[string]ColorScale `json:"color_scales"`
	Map            MapView               `json:"map"`
}

// DashboardOptions builds the full option catalogue
func DashboardOptions() Options {
	scales := make(map[string]ColorScale)
	for _, k := range kpi.MetricKinds() {
		scales[string(k)] = ScaleFor(k)
	}
	return Options{
		VehicleTypes:   VehicleOptions(),
		KPITypes:       KPIOptions(),
		DefaultVehicle: string(kpi.VehicleAll),
		DefaultKPI:     string(kpi.NumberOfVehicles),
		Animation:      DefaultAnimationSpeed,
		ColorScales:    scales,
		Map:            BerlinView,
	}
}
