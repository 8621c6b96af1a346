package recordaccess

import (
	"fmt"
	"reflect"

	json "github.com/goccy/go-json"

	"github.com/jpl-au/recordlayer/tuple"
)

// JSONAccess is a reference Access built on goccy/go-json, reflection, and
// struct tags. This package's own tests use it; the other packages'
// tests hand-write a BasicAccess or a custom Access per record type,
// as application code may.
//
// A field is addressed by its JSON tag name (falling back to the Go field
// name). A slice-typed field is treated as multi-valued for ExtractField,
// fanning out one tuple element per slice entry (spec Β§4.3).
type JSONAccess struct {
	Name       string
	sampleType reflect.Type
}

// NewJSONAccess builds a JSONAccess for sample's struct type; a pointer
// sample is dereferenced to its element type. typeName is the stable
// record-type name embedded in every key this type produces.
func NewJSONAccess(typeName string, sample any) *JSONAccess {
	t := reflect.TypeOf(sample)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return &JSONAccess{Name: typeName, sampleType: t}
}

func (a *JSONAccess) TypeName() string { return a.Name }

func (a *JSONAccess) Serialize(value any) ([]byte, error) {
	body, err := json.Marshal(value)
	if err != nil {
		return nil, &DeserializationFailedError{Kind: a.Name, Reason: err.Error()}
	}
	return body, nil
}

func (a *JSONAccess) Deserialize(body []byte) (any, error) {
	out := reflect.New(a.sampleType).Interface()
	if err := json.Unmarshal(body, out); err != nil {
		return nil, &DeserializationFailedError{Kind: a.Name, Reason: err.Error()}
	}
	return out, nil
}

func (a *JSONAccess) SupportsReconstruction() bool { return false }

func (a *JSONAccess) Reconstruct(indexedFields, pkFields, coveringFields []string, indexed, pk, covering tuple.Tuple) (any, error) {
	return nil, &ReconstructionNotImplementedError{RecordType: a.Name, Suggestion: "JSONAccess never reconstructs; wrap it in a type-specific Access to opt in"}
}

// ExtractField walks value's struct tags to find fieldName, then converts
// the underlying Go value(s) to tuple elements. Slices fan out to one
// element per entry; everything else yields exactly one.
func (a *JSONAccess) ExtractField(value any, fieldName string) ([]tuple.Element, error) {
	v := reflect.ValueOf(value)
	for v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil, fmt.Errorf("recordaccess: %s: ExtractField requires a struct, got %s", a.Name, v.Kind())
	}

	fv, ok := fieldByTag(v, fieldName)
	if !ok {
		return nil, fmt.Errorf("recordaccess: %s: no field %q", a.Name, fieldName)
	}

	if fv.Kind() == reflect.Slice {
		out := make([]tuple.Element, fv.Len())
		for i := 0; i < fv.Len(); i++ {
			el, err := toElement(fv.Index(i))
			if err != nil {
				return nil, fmt.Errorf("recordaccess: %s: field %q[%d]: %w", a.Name, fieldName, i, err)
			}
			out[i] = el
		}
		return out, nil
	}

	el, err := toElement(fv)
	if err != nil {
		return nil, fmt.Errorf("recordaccess: %s: field %q: %w", a.Name, fieldName, err)
	}
	return []tuple.Element{el}, nil
}

func fieldByTag(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		tag := sf.Tag.Get("json")
		tagName := tag
		for j, r := range tag {
			if r == ',' {
				tagName = tag[:j]
				break
			}
		}
		if tagName == name || (tagName == "" && sf.Name == name) {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func toElement(v reflect.Value) (tuple.Element, error) {
	switch v.Kind() {
	case reflect.String:
		return v.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), nil
	case reflect.Bool:
		return v.Bool(), nil
	case reflect.Float32:
		return float32(v.Float()), nil
	case reflect.Float64:
		return v.Float(), nil
	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return v.Bytes(), nil
		}
	}
	return nil, fmt.Errorf("unsupported field kind %s", v.Kind())
}
