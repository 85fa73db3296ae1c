// Package generichttp provides the generic scaffolding used to wrap
// devices in an HTTP interface: a route table keyed on (method, path),
// typed handler factories, and the single-value JSON payload types the
// handlers speak.
package generichttp

import (
	"encoding/json"
	"fmt"
	"go/types"
	"log"
	"net/http"

	"github.com/go-chi/chi"
)

// MethodPath is one HTTP route: a method and a path
type MethodPath struct {
	// Method is the HTTP verb, e.g. http.MethodGet
	Method string

	// Path is the URL path relative to where the table is bound
	Path string
}

// RouteTable maps routes to handlers
type RouteTable map[MethodPath]http.HandlerFunc

// Endpoints returns the "METHOD path" strings for each route in the table
func (rt RouteTable) Endpoints() []string {
	routes := make([]string, 0, len(rt))
	for mp := range rt {
		routes = append(routes, mp.Method+" "+mp.Path)
	}
	return routes
}

// Bind attaches each route in the table to r
func (rt RouteTable) Bind(r chi.Router) {
	for mp, handler := range rt {
		r.Method(mp.Method, mp.Path, handler)
	}
}

// HTTPer is a type which exposes an HTTP route table
type HTTPer interface {
	// RT returns the route table to bind
	RT() RouteTable
}

// FloatT is a struct with a single float64 field, used to transfer
// a float over JSON as {"f64": value}
type FloatT struct {
	F64 float64 `json:"f64"`
}

// IntT is a struct with a single int field, {"int": value}
type IntT struct {
	Int int `json:"int"`
}

// StrT is a struct with a single string field, {"str": value}
type StrT struct {
	Str string `json:"str"`
}

// BoolT is a struct with a single bool field, {"bool": value}
type BoolT struct {
	Bool bool `json:"bool"`
}

// HumanPayload is a struct that hold the types of data described by
// go/types and only one is not empty
type HumanPayload struct {
	// T is the type of data actually contained in the payload
	T types.BasicKind

	// Int holds an int
	Int int

	// Float holds a float64
	Float float64

	// Bool holds a bool
	Bool bool

	// String holds a string
	String string
}

// EncodeAndRespond converts the payload to JSON and writes it to w,
// or errors on its behalf
func (hp *HumanPayload) EncodeAndRespond(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var (
		err error
		obj interface{}
	)
	switch hp.T {
	case types.Int:
		obj = IntT{Int: hp.Int}
	case types.Float64:
		obj = FloatT{F64: hp.Float}
	case types.Bool:
		obj = BoolT{Bool: hp.Bool}
	case types.String:
		obj = StrT{Str: hp.String}
	default:
		err = fmt.Errorf("payload type %v not supported", hp.T)
	}
	if err == nil {
		err = json.NewEncoder(w).Encode(obj)
	}
	if err != nil {
		fstr := fmt.Sprintf("error encoding data to json %q", err)
		log.Println(fstr)
		http.Error(w, fstr, http.StatusInternalServerError)
	}
}

// Action calls an argument-less function on a request, returning 200 on
// success and 500 with the error text otherwise
func Action(fcn func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fcn(); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// GetFloat calls a float-getting function and returns the response
// as json {'f64': value}
func GetFloat(fcn func() (float64, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := fcn()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		hp := HumanPayload{T: types.Float64, Float: f}
		hp.EncodeAndRespond(w, r)
	}
}

// SetFloat parses a JSON input of {'f64': value} and calls fcn with it
func SetFloat(fcn func(float64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := FloatT{}
		err := json.NewDecoder(r.Body).Decode(&f)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		err = fcn(f.F64)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// GetInt calls an int-getting function and returns the response
// as json {'int': value}
func GetInt(fcn func() (int, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		i, err := fcn()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		hp := HumanPayload{T: types.Int, Int: i}
		hp.EncodeAndRespond(w, r)
	}
}

// SetInt parses a JSON input of {'int': value} and calls fcn with it
func SetInt(fcn func(int) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		i := IntT{}
		err := json.NewDecoder(r.Body).Decode(&i)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		err = fcn(i.Int)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// GetString calls a string-getting function and returns the response
// as json {'str': value}
func GetString(fcn func() (string, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := fcn()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		hp := HumanPayload{T: types.String, String: s}
		hp.EncodeAndRespond(w, r)
	}
}

// SetString parses a JSON input of {'str': value} and calls fcn with it
func SetString(fcn func(string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := StrT{}
		err := json.NewDecoder(r.Body).Decode(&s)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		err = fcn(s.Str)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// GetBool calls a bool-getting function and returns the response
// as json {'bool': value}
func GetBool(fcn func() (bool, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := fcn()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		hp := HumanPayload{T: types.Bool, Bool: b}
		hp.EncodeAndRespond(w, r)
	}
}

// SetBool parses a JSON input of {'bool': value} and calls fcn with it
func SetBool(fcn func(bool) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b := BoolT{}
		err := json.NewDecoder(r.Body).Decode(&b)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		err = fcn(b.Bool)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
