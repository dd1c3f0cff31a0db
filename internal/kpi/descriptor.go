package kpi

import "fmt"

// VehicleClass selects which detector counts a KPI is computed from
type VehicleClass string

const (
	VehicleAll    VehicleClass = "all"
	VehicleCars   VehicleClass = "cars"
	VehicleTrucks VehicleClass = "trucks"
)

// MetricKind is the measured quantity
type MetricKind string

const (
	NumberOfVehicles MetricKind = "number_of_vehicles"
	AvgSpeed         MetricKind = "avg_speed"
)

// Descriptor binds a (vehicle class, metric kind) pair to the reading column it averages
type Descriptor struct {
	Vehicle     VehicleClass
	Kind        MetricKind
	SourceField string
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s/%s", d.Vehicle, d.Kind)
}

var catalogue = []Descriptor{
	{VehicleAll, NumberOfVehicles, "q_kfz_det_hr"},
	{VehicleAll, AvgSpeed, "v_kfz_det_hr"},
	{VehicleCars, NumberOfVehicles, "q_pkw_det_hr"},
	{VehicleCars, AvgSpeed, "v_pkw_det_hr"},
	{VehicleTrucks, NumberOfVehicles, "q_lkw_det_hr"},
	{VehicleTrucks, AvgSpeed, "v_lkw_det_hr"},
}

// Catalogue returns the six KPI descriptors in processing order
func Catalogue() []Descriptor {
	out := make([]Descriptor, len(catalogue))
	copy(out, catalogue)
	return out
}

// VehicleClasses returns all vehicle classes in display order
func VehicleClasses() []VehicleClass {
	return []VehicleClass{VehicleAll, VehicleCars, VehicleTrucks}
}

// MetricKinds returns all metric kinds in display order
func MetricKinds() []MetricKind {
	return []MetricKind{NumberOfVehicles, AvgSpeed}
}

// Lookup finds the descriptor for a vehicle class and metric kind
func Lookup(vehicle VehicleClass, kind MetricKind) (Descriptor, bool) {
	for _, d := range catalogue {
		if d.Vehicle == vehicle && d.Kind == kind {
			return d, true
		}
	}
	return Descriptor{}, false
}

// ParseVehicleClass validates a vehicle class identifier
func ParseVehicleClass(s string) (VehicleClass, error) {
	for _, v := range VehicleClasses() {
		if string(v) == s {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown vehicle type %q", s)
}

// ParseMetricKind validates a metric kind identifier
func ParseMetricKind(s string) (MetricKind, error) {
	for _, k := range MetricKinds() {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown kpi type %q", s)
}
