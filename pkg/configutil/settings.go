package configutil

import (
	"fmt"
	"strings"

	"github.com/harunnryd/cryscope/pkg/errorsx"
	"github.com/mitchellh/mapstructure"
)

// DecodeSettings decodes a free-form provider settings map into a typed
// struct. Keys match field tags case-, underscore- and hyphen-insensitively;
// strings such as "1500ms" decode into time.Duration fields.
func DecodeSettings(input map[string]any, out any) error {
	if len(input) == 0 {
		return nil
	}
	cfg := &mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		MatchName: func(mapKey, fieldName string) bool {
			return normalizeKey(mapKey) == normalizeKey(fieldName)
		},
	}
	decoder, err := mapstructure.NewDecoder(cfg)
	if err != nil {
		return err
	}
	if err := decoder.Decode(input); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonConfigInvalid)
	}
	return nil
}

// RequireString ensures a value is present for a required config field.
func RequireString(value, path string) error {
	if strings.TrimSpace(value) == "" {
		return errorsx.Errorf(errorsx.ReasonConfigInvalid, "%s is required", path)
	}
	return nil
}

// RequirePositive ensures a numeric config field is greater than zero.
func RequirePositive(value int, path string) error {
	if value <= 0 {
		return errorsx.Errorf(errorsx.ReasonConfigInvalid, "%s must be positive, got %d", path, value)
	}
	return nil
}

// Lookup returns a settings value by normalized key.
func Lookup(input map[string]any, key string) (any, bool) {
	nk := normalizeKey(key)
	for k, v := range input {
		if normalizeKey(k) == nk {
			return v, true
		}
	}
	return nil, false
}

// StringValue returns the string form of a settings value, or fallback.
func StringValue(input map[string]any, key, fallback string) string {
	v, ok := Lookup(input, key)
	if !ok || v == nil {
		return fallback
	}
	s := strings.TrimSpace(fmt.Sprint(v))
	if s == "" {
		return fallback
	}
	return s
}

func normalizeKey(value string) string {
	value = strings.ToLower(value)
	value = strings.ReplaceAll(value, "_", "")
	value = strings.ReplaceAll(value, "-", "")
	return value
}
