package objstore

import (
	"context"
	"encoding/json"
)

// PutJSON marshals v and uploads it under ref with an application/json
// content type. Convenience for the very common report/export payload case.
func PutJSON(ctx context.Context, s Store, ref ObjectRef, v interface{}, opts ...PutOption) error {
	data, err := json.Marshal(v)
	if err != nil {
		return WrapErr(CodeInvalidArgument, err, "marshal payload for "+ref.String())
	}
	opts = append([]PutOption{WithContentType("application/json")}, opts...)
	return s.PutBytes(ctx, ref, data, opts...)
}
