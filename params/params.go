/*Package params provides the parameter library shared between driver logic
and client threads: a typed key/value store with buffered change
notification.

Writes do not notify observers immediately; they mark the parameter
changed, and an explicit CallCallbacks flushes every changed value in one
pass.  Driver code that performs a read-modify-publish sequence ends with
exactly one CallCallbacks per logical operation so observers see one
coherent notification instead of a storm of per-field ones.

The library is not internally synchronized.  All access happens under the
owning session's mutex, including the observer callbacks, which fire on
whichever thread called CallCallbacks.
*/
package params

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// Kind is the type of a parameter's value.
type Kind int

// the three parameter kinds
const (
	Int Kind = iota
	Double
	String
)

// String satisfies fmt.Stringer
func (k Kind) String() string {
	switch k {
	case Int:
		return "int"
	case Double:
		return "double"
	case String:
		return "string"
	default:
		return "unknown"
	}
}

var (
	// ErrBadIndex is generated when a parameter index is out of range
	ErrBadIndex = errors.New("parameter index out of range")

	// ErrWrongKind is generated when a parameter is accessed through the
	// wrong typed entry point
	ErrWrongKind = errors.New("parameter accessed with wrong kind")

	// ErrUndefined is generated when a parameter is read before any value
	// has been written to it
	ErrUndefined = errors.New("parameter has no value yet")

	// ErrUnknownName is generated when a name lookup finds no parameter
	ErrUnknownName = errors.New("no parameter with that name")
)

// Def declares one parameter: its client-facing name and kind.
type Def struct {
	// Name is the client-facing name, matched case-insensitively by Lookup
	Name string

	// Kind is the value type
	Kind Kind
}

// Value is a snapshot of a parameter's current value, passed to observers.
type Value struct {
	// Kind indicates which of the fields below is populated
	Kind Kind

	// Int holds the value of an Int parameter
	Int int

	// Double holds the value of a Double parameter
	Double float64

	// String holds the value of a String parameter
	String string
}

// Callback observes parameter changes.  index identifies the parameter
// within the library.
type Callback func(index int, v Value)

type entry struct {
	def     Def
	i       int
	f       float64
	s       string
	defined bool
	changed bool
}

// Library is the parameter store for one session.
type Library struct {
	entries   []entry
	callbacks []Callback
}

// New returns a Library holding the given parameters, all undefined
func New(defs []Def) *Library {
	l := &Library{entries: make([]entry, len(defs))}
	for i, d := range defs {
		l.entries[i].def = d
	}
	return l
}

// Len returns the number of parameters in the library
func (l *Library) Len() int {
	return len(l.entries)
}

// Name returns the client-facing name of a parameter
func (l *Library) Name(index int) string {
	if index < 0 || index >= len(l.entries) {
		return ""
	}
	return l.entries[index].def.Name
}

// Lookup resolves a client-facing name to a parameter index.  The match is
// case-insensitive and linear; it only happens at interface-setup time,
// never in the hot path.
func (l *Library) Lookup(name string) (int, error) {
	for i := range l.entries {
		if strings.EqualFold(l.entries[i].def.Name, name) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%q: %w", name, ErrUnknownName)
}

// AddCallback registers an observer for future CallCallbacks flushes
func (l *Library) AddCallback(cb Callback) {
	l.callbacks = append(l.callbacks, cb)
}

func (l *Library) at(index int, k Kind) (*entry, error) {
	if index < 0 || index >= len(l.entries) {
		return nil, ErrBadIndex
	}
	e := &l.entries[index]
	if e.def.Kind != k {
		return nil, fmt.Errorf("%s is %s: %w", e.def.Name, e.def.Kind, ErrWrongKind)
	}
	return e, nil
}

// SetInt writes an integer parameter, marking it changed if the value is new
func (l *Library) SetInt(index, v int) error {
	e, err := l.at(index, Int)
	if err != nil {
		return err
	}
	if !e.defined || e.i != v {
		e.i = v
		e.defined = true
		e.changed = true
	}
	return nil
}

// GetInt reads an integer parameter
func (l *Library) GetInt(index int) (int, error) {
	e, err := l.at(index, Int)
	if err != nil {
		return 0, err
	}
	if !e.defined {
		return 0, fmt.Errorf("%s: %w", e.def.Name, ErrUndefined)
	}
	return e.i, nil
}

// SetDouble writes a double parameter, marking it changed if the value is new
func (l *Library) SetDouble(index int, v float64) error {
	e, err := l.at(index, Double)
	if err != nil {
		return err
	}
	if !e.defined || e.f != v {
		e.f = v
		e.defined = true
		e.changed = true
	}
	return nil
}

// GetDouble reads a double parameter
func (l *Library) GetDouble(index int) (float64, error) {
	e, err := l.at(index, Double)
	if err != nil {
		return 0, err
	}
	if !e.defined {
		return 0, fmt.Errorf("%s: %w", e.def.Name, ErrUndefined)
	}
	return e.f, nil
}

// SetString writes a string parameter, marking it changed if the value is new
func (l *Library) SetString(index int, v string) error {
	e, err := l.at(index, String)
	if err != nil {
		return err
	}
	if !e.defined || e.s != v {
		e.s = v
		e.defined = true
		e.changed = true
	}
	return nil
}

// GetString reads a string parameter
func (l *Library) GetString(index int) (string, error) {
	e, err := l.at(index, String)
	if err != nil {
		return "", err
	}
	if !e.defined {
		return "", fmt.Errorf("%s: %w", e.def.Name, ErrUndefined)
	}
	return e.s, nil
}

func (e *entry) value() Value {
	v := Value{Kind: e.def.Kind}
	switch e.def.Kind {
	case Int:
		v.Int = e.i
	case Double:
		v.Double = e.f
	case String:
		v.String = e.s
	}
	return v
}

// CallCallbacks flushes every parameter changed since the last flush to
// all registered observers, then clears the changed marks
func (l *Library) CallCallbacks() {
	for i := range l.entries {
		e := &l.entries[i]
		if !e.changed {
			continue
		}
		e.changed = false
		v := e.value()
		for _, cb := range l.callbacks {
			cb(i, v)
		}
	}
}

// Dump writes a diagnostic listing of every defined parameter to w
func (l *Library) Dump(w io.Writer) {
	for i := range l.entries {
		e := &l.entries[i]
		if !e.defined {
			fmt.Fprintf(w, "%-24s <undefined>\n", e.def.Name)
			continue
		}
		switch e.def.Kind {
		case Int:
			fmt.Fprintf(w, "%-24s %d\n", e.def.Name, e.i)
		case Double:
			fmt.Fprintf(w, "%-24s %g\n", e.def.Name, e.f)
		case String:
			fmt.Fprintf(w, "%-24s %s\n", e.def.Name, e.s)
		}
	}
}
