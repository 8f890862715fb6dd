package asr

import (
	"os"
	"path/filepath"
	"runtime"
)

// resolveORTLibPath locates the onnxruntime shared library, preferring an
// explicit override, then an executable-relative lib/<os>-<arch>/ layout,
// and finally the working directory only in dev mode. Falling back to the
// working directory unconditionally would let an attacker plant a
// same-named shared library alongside an unrelated CWD; ORT_DEV_MODE=1
// gates that path explicitly.
func resolveORTLibPath() string {
	if override := os.Getenv("ORT_LIB_PATH"); override != "" {
		return override
	}

	name := ortLibFilename()
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		candidates := []string{
			filepath.Join(dir, "lib", runtime.GOOS+"-"+runtime.GOARCH, name),
			filepath.Join(dir, "lib", name),
		}
		for _, c := range candidates {
			if _, statErr := os.Stat(c); statErr == nil {
				return c
			}
		}
	}

	if os.Getenv("ORT_DEV_MODE") == "1" {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}

	return ""
}

// ortLibFilename returns the platform-specific onnxruntime shared library
// file name.
func ortLibFilename() string {
	switch runtime.GOOS {
	case "darwin":
		return "libonnxruntime.dylib"
	case "windows":
		return "onnxruntime.dll"
	default:
		return "libonnxruntime.so"
	}
}
