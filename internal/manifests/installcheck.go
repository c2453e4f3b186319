package manifests

import (
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"

	"gomunki/pkg/plist"
)

// isInstalled reports whether the exact cataloged version appears installed,
// using the item's installs list of file-presence checks. Items without an
// installs list are treated as not installed.
func isInstalled(item plist.Dict) bool {
	checks := item.DictSlice("installs")
	if len(checks) == 0 {
		return false
	}
	for _, check := range checks {
		if !checkPasses(check, true) {
			return false
		}
	}
	return true
}

// someVersionInstalled reports whether any version of the item is present:
// the installs paths exist, ignoring checksums.
func someVersionInstalled(item plist.Dict) bool {
	checks := item.DictSlice("installs")
	if len(checks) == 0 {
		return false
	}
	for _, check := range checks {
		if !checkPasses(check, false) {
			return false
		}
	}
	return true
}

func checkPasses(check plist.Dict, verifyChecksum bool) bool {
	path, ok := check.String("path")
	if !ok || path == "" {
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if !verifyChecksum || info.IsDir() {
		return true
	}
	expected, ok := check.String("md5checksum")
	if !ok || expected == "" {
		return true
	}
	actual, err := fileMD5(path)
	if err != nil {
		return false
	}
	return actual == expected
}

func fileMD5(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	h := md5.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
