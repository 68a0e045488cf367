package slcache

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"
)

var timeType = reflect.TypeOf(time.Time{})

// IdentifierOf reads the identifier fields of entity (a struct or pointer to
// struct of m.Type).
func (m *EntityMetadata) IdentifierOf(entity any) (Identifier, error) {
	v, err := m.structValue(entity)
	if err != nil {
		return nil, err
	}
	id := make(Identifier, len(m.Identifier))
	for _, f := range m.Identifier {
		id[f] = v.FieldByIndex(m.fieldIndex[f]).Interface()
	}
	return id, nil
}

// NewInstance returns a pointer to a zero value of the entity type.
func (m *EntityMetadata) NewInstance() any {
	return reflect.New(m.Type).Interface()
}

// newReference returns an instance with only the identifier fields set.
func (m *EntityMetadata) newReference(id Identifier) (reflect.Value, error) {
	p := reflect.New(m.Type)
	for _, f := range m.Identifier {
		if err := assignValue(p.Elem().FieldByIndex(m.fieldIndex[f]), id[f]); err != nil {
			return reflect.Value{}, fmt.Errorf("slcache: %s.%s: %w", m.Name, f, err)
		}
	}
	return p, nil
}

func (m *EntityMetadata) structValue(entity any) (reflect.Value, error) {
	v := reflect.ValueOf(entity)
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return reflect.Value{}, fmt.Errorf("slcache: nil %s", m.Name)
		}
		v = v.Elem()
	}
	if !v.IsValid() || v.Type() != m.Type {
		return reflect.Value{}, fmt.Errorf("slcache: %T is not a %s (%v)", entity, m.Name, m.Type)
	}
	return v, nil
}

// value returns the association field value and whether it is set. Interface
// fields are unwrapped.
func (a *AssociationMapping) value(v reflect.Value) (reflect.Value, bool) {
	fv := v.FieldByIndex(a.index)
	if fv.Kind() == reflect.Interface && !fv.IsNil() {
		fv = fv.Elem()
	}
	switch fv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Map:
		if fv.IsNil() {
			return fv, false
		}
	}
	return fv, true
}

// setTarget stores a hydrated target (pointer to struct) into a to-one field.
func (a *AssociationMapping) setTarget(v reflect.Value, target reflect.Value) error {
	fv := v.FieldByIndex(a.index)
	switch {
	case target.Type().AssignableTo(fv.Type()):
		fv.Set(target)
	case target.Elem().Type().AssignableTo(fv.Type()):
		fv.Set(target.Elem())
	default:
		return fmt.Errorf("slcache: cannot set %v into %s (%v)", target.Type(), a.Field, fv.Type())
	}
	return nil
}

// setList stores hydrated members (pointers to struct) into a to-many field,
// keeping their order.
func (a *AssociationMapping) setList(v reflect.Value, members []reflect.Value) error {
	fv := v.FieldByIndex(a.index)
	st := fv.Type()
	if st.Kind() != reflect.Slice {
		if len(members) == 0 {
			return nil
		}
		st = reflect.SliceOf(members[0].Type())
	}
	out := reflect.MakeSlice(st, 0, len(members))
	et := st.Elem()
	for _, m := range members {
		switch {
		case m.Type().AssignableTo(et):
			out = reflect.Append(out, m)
		case m.Elem().Type().AssignableTo(et):
			out = reflect.Append(out, m.Elem())
		default:
			return fmt.Errorf("slcache: cannot append %v to %s (%v)", m.Type(), a.Field, st)
		}
	}
	if !out.Type().AssignableTo(fv.Type()) {
		return fmt.Errorf("slcache: cannot set %v into %s (%v)", out.Type(), a.Field, fv.Type())
	}
	fv.Set(out)
	return nil
}

// assignValue stores v into dst, converting between the representations a
// codec may hand back (float64 for ints, strings for times, maps for structs).
func assignValue(dst reflect.Value, v any) error {
	if v == nil {
		dst.SetZero()
		return nil
	}
	src := reflect.ValueOf(v)
	dt := dst.Type()

	switch {
	case src.Type().AssignableTo(dt):
		dst.Set(src)
		return nil
	case isNumeric(src.Kind()) && isNumeric(dt.Kind()),
		src.Kind() == reflect.String && dt.Kind() == reflect.String,
		src.Kind() == reflect.Bool && dt.Kind() == reflect.Bool:
		dst.Set(src.Convert(dt))
		return nil
	case dt == timeType && src.Kind() == reflect.String:
		t, err := time.Parse(time.RFC3339Nano, src.String())
		if err != nil {
			return err
		}
		dst.Set(reflect.ValueOf(t))
		return nil
	case dt.Kind() == reflect.Pointer && src.Kind() != reflect.Pointer:
		p := reflect.New(dt.Elem())
		if err := assignValue(p.Elem(), v); err != nil {
			return err
		}
		dst.Set(p)
		return nil
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	p := reflect.New(dt)
	if err := json.Unmarshal(b, p.Interface()); err != nil {
		return fmt.Errorf("cannot assign %T to %v: %w", v, dt, err)
	}
	dst.Set(p.Elem())
	return nil
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
