package container

import (
	"github.com/google/uuid"

	"github.com/Faultbox/kiln/pkg/encoding"
)

// assetNamespace scopes every asset ID produced by the bakers.
var assetNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("kiln:asset"))

// AssetID derives a stable name-based UUID for an asset from its source provenance and
// name, so re-baking the same source yields the same ID.
func AssetID(provenance, name string) string {
	key := encoding.NormalizePath(provenance) + "#" + encoding.NormalizeName(name)
	return uuid.NewSHA1(assetNamespace, []byte(key)).String()
}
