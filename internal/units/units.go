// Package units provides shared constants and conversions for the length
// units that appear in delta-log column names.
package units

// Length unit constants as they appear inside delta-log column suffixes,
// e.g. " D.VRT (mm)".
const (
	MM = "mm"
	CM = "cm"
)

// ValidLengthUnits contains all recognised length units
var ValidLengthUnits = []string{MM, CM}

// IsValid checks if the given unit is a recognised length unit
func IsValid(unit string) bool {
	for _, validUnit := range ValidLengthUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// ToCentimeters converts a length in the given unit to centimetres.
// Unknown units are returned unchanged.
func ToCentimeters(v float64, unit string) float64 {
	switch unit {
	case MM:
		return v / 10.0
	case CM:
		return v
	default:
		return v
	}
}

// ColumnName builds a delta column name such as "D.VRT (cm)" for an axis
// and unit. Column names in the files carry a leading space which callers
// trim before comparing.
func ColumnName(axis, unit string) string {
	return "D." + axis + " (" + unit + ")"
}
