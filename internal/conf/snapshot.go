package conf

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"
)

const (
	SnapshotTOML = "toml"
	SnapshotJSON = "json"
)

// SnapshotFilename returns the snapshot file name for the given format.
func SnapshotFilename(format string) string {
	return "genja_config." + format
}

// WriteSnapshot serializes the final merged configuration to path, prefixed
// with a fresh run id and the source root so downstream tooling can tell
// runs apart.
func WriteSnapshot(path, format, srcRoot string, cfg Value) error {
	doc := map[string]any{
		"genja": map[string]any{
			"run_id":      uuid.New().String(),
			"source_root": srcRoot,
		},
		"config": cfg.ToAny(),
	}

	var data []byte
	var err error
	switch format {
	case SnapshotTOML:
		data, err = toml.Marshal(doc)
	case SnapshotJSON:
		data, err = json.MarshalIndent(doc, "", "  ")
		data = append(data, '\n')
	default:
		err = fmt.Errorf("unknown snapshot format %q", format)
	}
	if err != nil {
		return fmt.Errorf("serialize configuration snapshot: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}
