package configutil

import (
	"os"
	"reflect"
)

// ExpandEnv replaces ${VAR} references in every string reachable from ptr:
// struct fields, slices, string maps and free-form settings maps.
func ExpandEnv(ptr any) {
	expandValue(reflect.ValueOf(ptr))
}

// ExpandSettings expands a free-form settings map in place and returns it.
func ExpandSettings(settings map[string]any) map[string]any {
	for k, v := range settings {
		settings[k] = expandAny(v)
	}
	return settings
}

func expandAny(v any) any {
	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val)
	case []any:
		for i := range val {
			val[i] = expandAny(val[i])
		}
		return val
	case map[string]any:
		return ExpandSettings(val)
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			if ks, ok := k.(string); ok {
				out[ks] = expandAny(v)
			}
		}
		return out
	default:
		return v
	}
}

func expandValue(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if !v.IsNil() {
			expandValue(v.Elem())
		}
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			expandValue(v.Field(i))
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(os.ExpandEnv(v.String()))
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			expandValue(v.Index(i))
		}
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String || !v.CanInterface() {
			return
		}
		switch m := v.Interface().(type) {
		case map[string]any:
			ExpandSettings(m)
		case map[string]string:
			for k, s := range m {
				m[k] = os.ExpandEnv(s)
			}
		}
	}
}

// BoolValue dereferences an optional bool setting.
func BoolValue(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}

// IntValue dereferences an optional int setting.
func IntValue(v *int, fallback int) int {
	if v == nil {
		return fallback
	}
	return *v
}
