package fetch

import (
	"github.com/pkg/xattr"

	"gomunki/pkg/plist"
)

// sidecarAttr is the extended attribute holding per-download bookkeeping.
const sidecarAttr = "com.googlecode.munki.downloadData"

// Stubbed in tests; real runs talk to the filesystem.
var (
	getXattr    = xattr.Get
	setXattr    = xattr.Set
	removeXattr = xattr.Remove
)

// sidecar carries the cache-validation and resume state for one download.
// ExpectedLength is present only while a download is incomplete.
type sidecar struct {
	ETag           string
	LastModified   string
	ExpectedLength string
}

func (sc sidecar) empty() bool {
	return sc.ETag == "" && sc.LastModified == "" && sc.ExpectedLength == ""
}

func readSidecar(path string) (sidecar, bool) {
	data, err := getXattr(path, sidecarAttr)
	if err != nil {
		return sidecar{}, false
	}
	doc, err := plist.Unmarshal(data)
	if err != nil {
		return sidecar{}, false
	}
	sc := sidecar{
		ETag:           doc.StringDefault("etag", ""),
		LastModified:   doc.StringDefault("last-modified", ""),
		ExpectedLength: doc.StringDefault("expected-length", ""),
	}
	return sc, true
}

func writeSidecar(path string, sc sidecar) error {
	doc := plist.Dict{}
	if sc.ETag != "" {
		doc["etag"] = sc.ETag
	}
	if sc.LastModified != "" {
		doc["last-modified"] = sc.LastModified
	}
	if sc.ExpectedLength != "" {
		doc["expected-length"] = sc.ExpectedLength
	}
	data, err := plist.Marshal(doc)
	if err != nil {
		return err
	}
	return setXattr(path, sidecarAttr, data)
}

func clearSidecar(path string) {
	_ = removeXattr(path, sidecarAttr)
}
