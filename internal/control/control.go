// Package control holds a single field's value at every readiness level it
// reaches: the raw input, the primitive (serialisable) form, and an optional
// structured form, together with the validation outcome.
//
// A Control never discards input. Invalid values stay readable so they can be
// shown back to the user, and accessors fail explicitly instead of handing out
// zero values when the requested level was never reached.
package control

import (
	"errors"
	"fmt"
)

var (
	// ErrUninitialized is returned by every accessor before the first update.
	ErrUninitialized = errors.New("never initialized")
	// ErrNotPrimitive is returned by typed accessors when the last input
	// could not even be coerced to the primitive type.
	ErrNotPrimitive = errors.New("not initialized with data of valid type")
	// ErrNoStructured is returned when no structured value was produced.
	ErrNoStructured = errors.New("no structured data assigned")
	// ErrNoCoercer is returned by UpdateFromUnknown on a Control built without one.
	ErrNoCoercer = errors.New("no coercion function configured")
)

// State is the readiness level a Control has reached.
type State uint8

const (
	Uninitialized State = iota
	NotPrimitive
	Invalid
	Valid
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case NotPrimitive:
		return "not-primitive"
	case Invalid:
		return "invalid"
	case Valid:
		return "valid"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Result is what a validation function reports. A result may carry a
// structured value and an error at the same time for partially usable input.
type Result[P, S any] struct {
	Structured    S
	HasStructured bool
	// Simplified replaces the given primitive when HasSimplified is set
	// (trimmed whitespace, canonical formatting).
	Simplified    P
	HasSimplified bool
	Err           error
}

// ValidateFunc checks a primitive value and optionally structures it.
type ValidateFunc[P, S any] func(P) Result[P, S]

// CoerceFunc brings a value of unknown shape up to the primitive type.
type CoerceFunc[P any] func(any) (P, error)

// Lookup is a keyed source of unknown-shaped values, such as parsed frontmatter.
type Lookup interface {
	Lookup(key string) (any, bool)
}

// Field is the type-erased view of a Control used to walk a record's fields.
type Field interface {
	Name() string
	State() State
	FoldErrors(acc []error) []error
	// Persisted returns the value to write back to storage: the primitive
	// form when valid, the raw input otherwise. ok is false when there is
	// nothing to write.
	Persisted() (v any, ok bool)
}

// Control stores a value and the outcome of validating it.
type Control[P, S any] struct {
	name     string
	validate ValidateFunc[P, S]
	coerce   CoerceFunc[P]

	state      State
	structured bool
	given      any
	primitive  P
	value      S
	err        error
}

// New returns an uninitialized Control. coerce may be nil if the Control is
// only ever fed primitive values.
func New[P, S any](name string, validate ValidateFunc[P, S], coerce CoerceFunc[P]) *Control[P, S] {
	return &Control[P, S]{
		name:     name,
		validate: validate,
		coerce:   coerce,
	}
}

// Name is the storage key of the field; it also prefixes folded errors.
func (c *Control[P, S]) Name() string {
	return c.name
}

// State reports the readiness level reached by the last update.
func (c *Control[P, S]) State() State {
	return c.state
}

// Update validates x and stores it. The validation error, if any, is both
// stored and returned.
func (c *Control[P, S]) Update(x P) error {
	r := c.validate(x)
	c.given = x
	c.primitive = x
	if r.HasSimplified {
		c.primitive = r.Simplified
	}
	var zero S
	c.value, c.structured = zero, false
	if r.HasStructured {
		c.value, c.structured = r.Structured, true
	}
	c.err = r.Err
	c.state = Valid
	if r.Err != nil {
		c.state = Invalid
	}
	return r.Err
}

// UpdateFromUnknown coerces v to the primitive type before validating it.
// A coercion failure leaves the Control in the NotPrimitive state, where only
// Raw and LastError succeed.
func (c *Control[P, S]) UpdateFromUnknown(v any) error {
	if c.coerce == nil {
		return fmt.Errorf("control %q: %w", c.name, ErrNoCoercer)
	}
	p, err := c.coerce(v)
	if err != nil {
		var zp P
		var zs S
		c.state = NotPrimitive
		c.structured = false
		c.given = v
		c.primitive = zp
		c.value = zs
		c.err = err
		return err
	}
	err = c.Update(p)
	c.given = v
	return err
}

// UpdateFromField plucks key out of src and feeds it to UpdateFromUnknown.
// A missing key, or a nil src, is treated as a nil value.
func (c *Control[P, S]) UpdateFromField(src Lookup, key string) error {
	var v any
	if src != nil {
		if got, ok := src.Lookup(key); ok {
			v = got
		}
	}
	return c.UpdateFromUnknown(v)
}

func (c *Control[P, S]) mustExist() error {
	if c.state == Uninitialized {
		return fmt.Errorf("access of control %q: %w", c.name, ErrUninitialized)
	}
	return nil
}

func (c *Control[P, S]) mustPrimitive() error {
	if err := c.mustExist(); err != nil {
		return err
	}
	if c.state == NotPrimitive {
		return fmt.Errorf("access of control %q: %w", c.name, ErrNotPrimitive)
	}
	return nil
}

// Raw returns the value exactly as last given.
func (c *Control[P, S]) Raw() (any, error) {
	if err := c.mustExist(); err != nil {
		return nil, err
	}
	return c.given, nil
}

// Primitive returns the (possibly simplified) primitive value, valid or not.
func (c *Control[P, S]) Primitive() (P, error) {
	if err := c.mustPrimitive(); err != nil {
		var zero P
		return zero, err
	}
	return c.primitive, nil
}

// IsValid reports whether the primitive value passed validation.
func (c *Control[P, S]) IsValid() (bool, error) {
	if err := c.mustPrimitive(); err != nil {
		return false, err
	}
	return c.state == Valid, nil
}

// Structured returns the structured value if validation produced one.
func (c *Control[P, S]) Structured() (S, error) {
	if err := c.mustExist(); err != nil {
		var zero S
		return zero, err
	}
	if !c.structured {
		var zero S
		return zero, fmt.Errorf("access of control %q: %w", c.name, ErrNoStructured)
	}
	return c.value, nil
}

// StructuredOK is Structured without the reason.
func (c *Control[P, S]) StructuredOK() (S, bool) {
	v, err := c.Structured()
	return v, err == nil
}

// LastError returns the error of the last update, which may be nil.
func (c *Control[P, S]) LastError() (error, error) {
	if err := c.mustExist(); err != nil {
		return nil, err
	}
	return c.err, nil
}

// FoldErrors appends "name: message" to acc when the Control is not valid.
func (c *Control[P, S]) FoldErrors(acc []error) []error {
	switch c.state {
	case Uninitialized:
		return append(acc, fmt.Errorf("%s: %w", c.name, ErrUninitialized))
	case Valid:
		return acc
	}
	return append(acc, fmt.Errorf("%s: %w", c.name, c.err))
}

// Persisted is the value to write back to storage: the primitive when valid,
// otherwise what was given, so invalid input is never lost. It reports false
// when there is nothing to write.
func (c *Control[P, S]) Persisted() (any, bool) {
	switch c.state {
	case Uninitialized:
		return nil, false
	case Valid:
		return c.primitive, true
	}
	return c.given, c.given != nil
}
