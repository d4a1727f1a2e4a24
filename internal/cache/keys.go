package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"

	"github.com/huanchen1107/TawinCWA/internal/client"
)

// maxKeyLength keeps keys under memcached's 250-byte key limit with room for
// the backend prefix.
const maxKeyLength = 200

// Key derives the deterministic cache key for a fetch request:
// provider/dataset?sorted-params. Long keys collapse the query into a short
// sha256 digest so the same request always maps to the same key.
func Key(req client.FetchRequest) string {
	base := string(req.Provider) + "/" + req.Dataset

	if len(req.Params) == 0 {
		return base
	}
	keys := make([]string, 0, len(req.Params))
	for k := range req.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	v := url.Values{}
	for _, k := range keys {
		v.Set(k, req.Params[k])
	}
	full := base + "?" + v.Encode()
	if len(full) <= maxKeyLength {
		return full
	}

	sum := sha256.Sum256([]byte(full))
	return base + "#" + hex.EncodeToString(sum[:8])
}
