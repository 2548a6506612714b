package datalink

// Optional holds a value that resolution may not have found.
type Optional struct {
	value string
	ok    bool
}

// Some wraps a found value.
func Some(v string) Optional { return Optional{value: v, ok: true} }

// None is the absent value.
func None() Optional { return Optional{} }

// Get returns the value and whether it was found.
func (o Optional) Get() (string, bool) { return o.value, o.ok }

// IsPresent reports whether a value was found.
func (o Optional) IsPresent() bool { return o.ok }

func (o Optional) String() string {
	if !o.ok {
		return "<absent>"
	}
	return o.value
}
