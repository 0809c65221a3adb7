// Package units parses unit expressions and reduces quantities to SI base units.
//
// A [Unit] carries the user's symbol for display, a scale factor into SI base
// units, and the gonum [unit.Dimensions] of the quantity:
//
//	u, _ := units.Parse("mmol/m^3")
//	q := units.Quantity{Value: 2.1, Unit: u}
//	c := units.Normalize(q) // c.Value == 2.1e-3, c.Unit.String() == "mol m^-3"
//
// Normalization is pure: the same unit expression always reduces to the same
// canonical unit. Display units are kept alongside and used only to format
// values for humans.
//
// Affine temperature scales (°C, °F) are not supported; temperatures must be
// given in kelvin.
package units
