package manifest

import "time"

// Details maps manifest tag names to typed values: string, bool, int64,
// float64 or time.Time. A tag absent from the manifest is absent here.
type Details map[string]any

// KeyDescription is the tag used to join surfaces onto the hierarchy.
const KeyDescription = "Description"

// Description returns the node's Description, or "" when absent.
func (d Details) Description() string {
	s, _ := d.String(KeyDescription)
	return s
}

// String returns a string detail.
func (d Details) String(key string) (string, bool) {
	v, ok := d[key].(string)
	return v, ok
}

// Bool returns a converted boolean detail.
func (d Details) Bool(key string) (bool, bool) {
	v, ok := d[key].(bool)
	return v, ok
}

// Int returns a converted integer detail.
func (d Details) Int(key string) (int64, bool) {
	v, ok := d[key].(int64)
	return v, ok
}

// Float returns a converted floating point detail.
func (d Details) Float(key string) (float64, bool) {
	v, ok := d[key].(float64)
	return v, ok
}

// Time returns a converted date detail.
func (d Details) Time(key string) (time.Time, bool) {
	v, ok := d[key].(time.Time)
	return v, ok
}

// Flatten returns a copy of the details with every key prefixed, e.g.
// "Patient Details - " + "PatientID".
func (d Details) Flatten(prefix string) map[string]any {
	out := make(map[string]any, len(d))
	for k, v := range d {
		out[prefix+k] = v
	}
	return out
}
