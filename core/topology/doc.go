// Package topology describes the fixed switching fabric of the power cabinet:
// bypass relays between modules of a subset and muxes between connectors. All
// functions are pure and derive their answers from slot arithmetic and the
// static link tables.
package topology
