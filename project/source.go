// Package project declares the external collaborator interface for a
// vendor project-file parser (ETS project export). Parsing that XML export
// is deliberately out of scope for this library (spec.md §1) — it is bulk
// XML munging external to the protocol core — so this package carries only
// the shapes the core consumes, trimmed from the teacher's
// etsimport.ParseResult down to the GA map, topology and unassigned-devices
// data. No other package of this library reads these types.
package project

// GroupAddressInfo is one entry in a Source's group address table.
type GroupAddressInfo struct {
	// Address is the group address in "M/I/S" form.
	Address string
	// Name is the project's own label for this address, if any.
	Name string
	// DPT is the datapoint type in "main.sub" form, empty if unknown.
	DPT string
	// Central marks addresses flagged as building-wide/central functions
	// in the project (e.g. central off).
	Central bool
	// Unfiltered marks addresses excluded from the project's own read
	// flag filtering. gacache.HydrateFromBus does not read this flag.
	Unfiltered bool
}

// Device is one device entry in a Source's topology.
type Device struct {
	// Address is the device's individual address in "A.L.D" form.
	Address string
	// Name is the project's label for the device.
	Name string
}

// Line is one KNX line within an area, carrying its devices.
type Line struct {
	Devices []Device
}

// Topology is the area → line → device hierarchy extracted from a project
// file. Optional; no code in this library reads it.
type Topology map[string]map[string]Line

// Source is what an external project-file parser must supply. The library
// itself holds no Source: a caller turns GroupAddresses into the
// "M/I/S" -> "main.sub" map that the clients and gacache take.
type Source interface {
	// GroupAddresses returns the project's full GA table, keyed by the
	// same "M/I/S" string used elsewhere in this library.
	GroupAddresses() map[string]GroupAddressInfo
	// Topology returns the project's area/line/device hierarchy.
	Topology() Topology
	// UnassignedDevices lists devices present in the project with no
	// group addresses associated.
	UnassignedDevices() []Device
}
