package onnx

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/example/go-voiceclone/internal/config"
)

// RuntimeInfo names the ONNX Runtime shared library that will be loaded.
type RuntimeInfo struct {
	LibraryPath string
	Version     string
}

// systemLibraries are probed when neither the config nor the environment
// names a library.
var systemLibraries = []string{
	"/usr/lib/libonnxruntime.so",
	"/usr/local/lib/libonnxruntime.so",
	"/usr/lib/x86_64-linux-gnu/libonnxruntime.so",
	"/usr/lib/aarch64-linux-gnu/libonnxruntime.so",
	"/opt/homebrew/lib/libonnxruntime.dylib",
	"/usr/local/lib/libonnxruntime.dylib",
}

var semver = regexp.MustCompile(`\d+\.\d+\.\d+`)

// ErrRuntimeNotFound is returned when no library path is configured and
// none of the system locations exist.
var ErrRuntimeNotFound = errors.New("onnx runtime library not found")

// DetectRuntime resolves the library path from cfg.ORTLibraryPath (which
// viper also fills from VOICECLONE_ORT_LIB or ORT_LIBRARY_PATH), the same
// environment variables when cfg was built by hand, then systemLibraries.
// ORT_VERSION overrides the version parsed from the file name.
func DetectRuntime(cfg config.RuntimeConfig) (RuntimeInfo, error) {
	path := firstNonEmpty(cfg.ORTLibraryPath, os.Getenv("VOICECLONE_ORT_LIB"), os.Getenv("ORT_LIBRARY_PATH"))
	if path == "" {
		for _, p := range systemLibraries {
			if fileExists(p) {
				path = p
				break
			}
		}
	}
	if path == "" {
		return RuntimeInfo{Version: "unknown"}, ErrRuntimeNotFound
	}

	info := RuntimeInfo{LibraryPath: path, Version: "unknown"}
	if _, err := os.Stat(path); err != nil {
		return info, fmt.Errorf("onnx runtime library: %w", err)
	}

	if v := firstNonEmpty(os.Getenv("ORT_VERSION"), versionFromName(path)); v != "" {
		info.Version = v
	}
	return info, nil
}

// versionFromName reads a version suffix such as libonnxruntime.so.1.20.1
// off the file name only.
func versionFromName(path string) string {
	return semver.FindString(filepath.Base(path))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}
