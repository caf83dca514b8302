package sync

import (
	"encoding/json"

	"github.com/devilkun/joplin/internal/model"
)

// unmarshalItem decodes content produced by uploader.JSONSerializer.
// The decoder is fixed: there is no way to supply another one, so
// content written by a non-JSON uploader.Serializer cannot be decoded.
func unmarshalItem(content []byte, out *model.Item) error {
	return json.Unmarshal(content, out)
}
