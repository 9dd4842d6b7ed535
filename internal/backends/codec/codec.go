// Package codec is the wire format shared by the remote cache backends: JSON, zstd-compressed, base64url.
package codec

import (
	"apollocfg/internal/types"
	"encoding/base64"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"
)

var enc, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
var dec, _ = zstd.NewReader(nil)

type storedSnapshot struct {
	Namespace      string            `json:"namespace"`
	ReleaseKey     string            `json:"release_key"`
	Configurations map[string]string `json:"configurations"`
}

// EncodeSnapshot encodes the snapshot as JSON, compresses and base64-url encodes it.
func EncodeSnapshot(snap *types.Snapshot) (string, error) {
	s, err := json.Marshal(storedSnapshot{
		Namespace:      snap.Namespace(),
		ReleaseKey:     snap.ReleaseKey(),
		Configurations: snap.Values(),
	})
	if err != nil {
		return "", err
	}
	b := enc.EncodeAll(s, make([]byte, 0, len(s)))
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DecodeSnapshot reverses EncodeSnapshot. Any failure matches types.ErrCache.
func DecodeSnapshot(in string) (*types.Snapshot, error) {
	b, err := base64.RawURLEncoding.DecodeString(in)
	if err != nil {
		return nil, types.Err(types.ErrCache, err, "decode base64")
	}
	out, err := dec.DecodeAll(b, nil)
	if err != nil {
		return nil, types.Err(types.ErrCache, err, "decompress")
	}
	var st storedSnapshot
	if err := json.Unmarshal(out, &st); err != nil {
		return nil, types.Err(types.ErrCache, err, "decode json")
	}
	return types.NewSnapshot(st.Namespace, st.ReleaseKey, st.Configurations), nil
}
