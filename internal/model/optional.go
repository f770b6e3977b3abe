package model

import (
	"bytes"
	"encoding/json"
)

// #region optional

// Optional is a tri-state numeric field: either absent or present with a
// value. An explicitly provided zero is distinct from an absent field, which
// is the core contract for override handling — absence must never collapse
// to a zero default.
type Optional struct {
	value   float64
	present bool
}

// Some returns a present Optional holding v.
func Some(v float64) Optional {
	return Optional{value: v, present: true}
}

// None returns an absent Optional. The zero value of Optional is also absent.
func None() Optional {
	return Optional{}
}

// Present reports whether a value was provided.
func (o Optional) Present() bool {
	return o.present
}

// Get returns the value and whether it was provided.
func (o Optional) Get() (float64, bool) {
	return o.value, o.present
}

// Or returns the value when present, def otherwise.
func (o Optional) Or(def float64) float64 {
	if o.present {
		return o.value
	}
	return def
}

// Map returns a present Optional holding f(value), or an absent Optional
// when the receiver is absent.
func (o Optional) Map(f func(float64) float64) Optional {
	if !o.present {
		return o
	}
	return Some(f(o.value))
}

// #endregion optional

// #region optional-json

// MarshalJSON encodes a present Optional as its value and an absent one as
// null, so serialized recommendations keep the presence distinction.
func (o Optional) MarshalJSON() ([]byte, error) {
	if !o.present {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}

// UnmarshalJSON decodes null as absent and any number as present. An omitted
// field never reaches this method and stays absent via the zero value.
func (o *Optional) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*o = Optional{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}

// #endregion optional-json

// #region optional-helpers

// FromPtr converts a nullable pointer (the JSON boundary representation)
// into an Optional.
func FromPtr(p *float64) Optional {
	if p == nil {
		return None()
	}
	return Some(*p)
}

// #endregion optional-helpers
