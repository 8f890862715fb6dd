package modelstore

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// manifestFileName is the cache sidecar written alongside a resolved
// snapshot, recording the size of each required file at the time the
// snapshot was last confirmed complete.
const manifestFileName = ".sotto-manifest.yaml"

// snapshotManifest is the on-disk shape of manifestFileName.
type snapshotManifest struct {
	Files map[string]int64 `yaml:"files"`
}

// writeManifest records the current size of every required file in
// snapshotDir. Failures are non-fatal: the manifest is a fast-path cache,
// not a source of truth, so callers ignore the returned error other than
// logging it.
func writeManifest(snapshotDir string) error {
	manifest := snapshotManifest{Files: make(map[string]int64, len(modelFiles))}
	for _, f := range modelFiles {
		info, err := os.Stat(filepath.Join(snapshotDir, f))
		if err != nil {
			continue
		}
		manifest.Files[f] = info.Size()
	}

	data, err := yaml.Marshal(manifest)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(snapshotDir, manifestFileName), data, 0o644)
}

// manifestMatches reports whether snapshotDir's cached manifest agrees
// with the files actually on disk, letting ResolveModelDir skip a full
// per-file os.Stat sweep on the common warm-start path. Any mismatch,
// missing manifest, or read/parse error is treated as "does not match"
// so the caller falls through to the authoritative missingModelFiles check.
func manifestMatches(snapshotDir string) bool {
	data, err := os.ReadFile(filepath.Join(snapshotDir, manifestFileName))
	if err != nil {
		return false
	}

	var manifest snapshotManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return false
	}

	for _, f := range modelFiles {
		size, ok := manifest.Files[f]
		if !ok {
			return false
		}
		info, err := os.Stat(filepath.Join(snapshotDir, f))
		if err != nil || info.Size() != size {
			return false
		}
	}
	return true
}
