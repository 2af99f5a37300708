package configloader

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
)

func decode(input map[string]interface{}, target interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "mapstructure",
		Result:  target,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			listHook,
		),
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

// splitList splits an env-style list such as "5, 25" or "GARAN,THYAO,".
// Blank entries are dropped.
func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// listHook turns comma separated strings into []string and []int. The int
// form carries decoder field-number priority lists (schema.quote.last=5,25).
func listHook(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
	if f.Kind() != reflect.String || t.Kind() != reflect.Slice {
		return data, nil
	}
	items := splitList(data.(string))
	switch t.Elem().Kind() {
	case reflect.String:
		if items == nil {
			return []string{}, nil
		}
		return items, nil
	case reflect.Int:
		out := make([]int, 0, len(items))
		for _, s := range items {
			n, err := strconv.Atoi(s)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
		return out, nil
	}
	return data, nil
}
