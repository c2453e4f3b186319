package manifests

import (
	"io/fs"
	"os"
	"path/filepath"

	"gomunki/internal/logx"
)

// gcWhitelist names manifests never garbage-collected even when untouched.
var gcWhitelist = map[string]bool{
	"SelfServeManifest": true,
}

// CleanupManifestsDir deletes every cached manifest whose basename is
// neither in the live set from the active-manifest table nor whitelisted.
func CleanupManifestsDir(dir string, livePaths []string) error {
	keep := make(map[string]bool, len(livePaths)+len(gcWhitelist))
	for name := range gcWhitelist {
		keep[name] = true
	}
	for _, path := range livePaths {
		keep[filepath.Base(path)] = true
	}

	log := logx.Component("manifests")
	return filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		if keep[entry.Name()] {
			return nil
		}
		log.Debugf("removing unused cached manifest %s", path)
		return os.Remove(path)
	})
}
