package plugins

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// DecodeOptions decodes plugin options into out, a pointer to a struct tagged
// with `option:"name"`. Strings are weakly converted to numbers, booleans and
// durations.
func DecodeOptions(options map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "option",
		WeaklyTypedInput: true,
		Result:           out,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return fmt.Errorf("plugin options decoder: %w", err)
	}
	if err := dec.Decode(options); err != nil {
		return fmt.Errorf("decode plugin options: %w", err)
	}
	return nil
}
