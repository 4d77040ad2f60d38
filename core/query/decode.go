package query

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Decode maps rows onto structs of type T using their json tags.
// RFC 3339 string timestamps decode into time.Time fields.
func Decode[T any](rows Rows) ([]T, error) {
	out := make([]T, 0, len(rows))
	for i, row := range rows {
		var v T
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			TagName:          "json",
			WeaklyTypedInput: true,
			Result:           &v,
			DecodeHook:       mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
		})
		if err != nil {
			return nil, fmt.Errorf("query: decoder: %w", err)
		}
		if err := dec.Decode(row); err != nil {
			return nil, fmt.Errorf("query: decode row %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}
