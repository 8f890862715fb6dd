// Package modelstore resolves and maintains the on-disk cache of ONNX
// transducer model files, mirroring the layout Hugging Face Hub's
// huggingface_hub.snapshot_download produces: a refs/main pointer file
// naming the active snapshot and a snapshots/<commit> directory holding
// the actual graph and vocabulary files.
package modelstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// modelBaseURL is the resolve/main endpoint for the default model repo.
const modelBaseURL = "https://huggingface.co/istupakov/parakeet-tdt-0.6b-v3-onnx/resolve/main"

// modelFiles lists every file a complete snapshot must contain. Both
// quantized and full-precision encoder/decoder_joint graphs are fetched so
// callers can pick either at load time.
var modelFiles = []string{
	"encoder-model.int8.onnx",
	"decoder_joint-model.int8.onnx",
	"encoder-model.onnx",
	"decoder_joint-model.onnx",
	"nemo128.onnx",
	"vocab.txt",
}

// ErrNoSnapshot is returned when a snapshot directory cannot be resolved or
// repaired and no download was attempted (e.g. offline mode).
var ErrNoSnapshot = errors.New("no usable model snapshot")

// missingModelFiles reports which required files are absent from dir.
func missingModelFiles(dir string) []string {
	var missing []string
	for _, f := range modelFiles {
		if _, err := os.Stat(filepath.Join(dir, f)); err != nil {
			missing = append(missing, f)
		}
	}
	return missing
}

// FallbackModelRoot mirrors the Hugging Face Hub cache layout under the
// user's cache directory: <cache>/huggingface/hub/models--istupakov--
// parakeet-tdt-0.6b-v3-onnx.
func FallbackModelRoot() string {
	base, err := os.UserCacheDir()
	if err != nil || strings.TrimSpace(base) == "" {
		if home, herr := os.UserHomeDir(); herr == nil {
			base = home
		} else {
			base = "."
		}
	}
	return filepath.Join(base, "huggingface", "hub", "models--istupakov--parakeet-tdt-0.6b-v3-onnx")
}

// ResolveModelDir locates (downloading or repairing as needed) a complete
// model snapshot under root. It checks refs/main first, falls back to the
// newest snapshot directory by mtime, and downloads a fresh snapshot when
// neither exists.
func ResolveModelDir(root string, dl *Downloader) (string, error) {
	refsMain := filepath.Join(root, "refs", "main")
	if commit, err := os.ReadFile(refsMain); err == nil {
		snap := filepath.Join(root, "snapshots", strings.TrimSpace(string(commit)))
		if info, statErr := os.Stat(snap); statErr == nil && info.IsDir() {
			return ensureSnapshotComplete(root, snap, dl)
		}
	}

	if snap, ok := newestSnapshot(root); ok {
		return ensureSnapshotComplete(root, snap, dl)
	}

	if dl == nil {
		return "", fmt.Errorf("%w: no snapshot under %s and downloads disabled", ErrNoSnapshot, root)
	}
	dir, err := dl.DownloadDefaultSnapshot(root, modelFiles, modelBaseURL)
	if err != nil {
		return "", err
	}
	_ = writeManifest(dir)
	return dir, nil
}

// newestSnapshot scans root/snapshots for the most recently modified
// directory, returning false if none exist.
func newestSnapshot(root string) (string, bool) {
	snapshots := filepath.Join(root, "snapshots")
	entries, err := os.ReadDir(snapshots)
	if err != nil {
		return "", false
	}

	var best string
	var bestMod time.Time
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if best == "" || info.ModTime().After(bestMod) {
			best = entry.Name()
			bestMod = info.ModTime()
		}
	}
	if best == "" {
		return "", false
	}
	return filepath.Join(snapshots, best), true
}

// ensureSnapshotComplete repairs a snapshot missing individual files, or
// falls all the way back to a fresh download if repair fails.
func ensureSnapshotComplete(root, snapshotDir string, dl *Downloader) (string, error) {
	if manifestMatches(snapshotDir) {
		return snapshotDir, nil
	}

	missing := missingModelFiles(snapshotDir)
	if len(missing) == 0 {
		_ = writeManifest(snapshotDir)
		return snapshotDir, nil
	}

	if dl == nil {
		return "", fmt.Errorf("%w: snapshot %s missing %s and downloads disabled", ErrNoSnapshot, snapshotDir, strings.Join(missing, ", "))
	}

	if err := dl.DownloadMissingFiles(snapshotDir, missing, modelBaseURL); err != nil {
		dir, dlErr := dl.DownloadDefaultSnapshot(root, modelFiles, modelBaseURL)
		if dlErr != nil {
			return "", dlErr
		}
		_ = writeManifest(dir)
		return dir, nil
	}
	_ = writeManifest(snapshotDir)
	return snapshotDir, nil
}
