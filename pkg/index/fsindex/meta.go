package fsindex

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/freighter-registry/freighter/pkg/log"
	"github.com/freighter-registry/freighter/pkg/types"
)

// deserializeMeta parses a crate metadata file: one version record per line,
// optionally followed by a single publish record that must be the last line.
//
// The two record shapes overlap, so lines are discriminated by the `cksum`
// field: version records always carry one, publish records never do.
func deserializeMeta(jsonLines []byte) ([]types.CrateVersion, *types.Publish, error) {
	var versions []types.CrateVersion
	var publish *types.Publish

	for _, line := range bytes.Split(jsonLines, []byte{'\n'}) {
		if len(line) == 0 {
			continue
		}
		if publish != nil {
			log.WithComponent("fsindex").Error().
				Msg("invalid index file format: a publish record should be the last line")
		}

		var probe struct {
			Cksum *string `json:"cksum"`
		}
		if err := json.Unmarshal(line, &probe); err != nil {
			return nil, nil, fmt.Errorf("invalid index file format")
		}
		if probe.Cksum != nil {
			var v types.CrateVersion
			if err := json.Unmarshal(line, &v); err != nil {
				return nil, nil, fmt.Errorf("invalid index file format")
			}
			versions = append(versions, v)
		} else {
			var p types.Publish
			if err := json.Unmarshal(line, &p); err != nil {
				return nil, nil, fmt.Errorf("invalid index file format")
			}
			publish = &p
		}
	}

	return versions, publish, nil
}

func serializeMeta(versions []types.CrateVersion, publish *types.Publish) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow((len(versions) + 1) * 128)
	enc := json.NewEncoder(&buf)
	for n := range versions {
		if err := enc.Encode(&versions[n]); err != nil {
			return nil, fmt.Errorf("failed to serialize version record: %w", err)
		}
	}
	if publish != nil {
		if err := enc.Encode(publish); err != nil {
			return nil, fmt.Errorf("failed to serialize publish record: %w", err)
		}
	}
	return buf.Bytes(), nil
}
