package catalogs

import (
	"strconv"
	"strings"
)

// CompareVersions orders package version strings the way installer metadata
// expects: dot-separated segments compared numerically when both sides are
// numbers, lexically otherwise, with missing segments treated as zero.
// Package versions here are not semver ("4.0.1.1987", "10.14b3"), so no
// semver library fits.
func CompareVersions(a, b string) int {
	as := strings.Split(strings.TrimSpace(a), ".")
	bs := strings.Split(strings.TrimSpace(b), ".")

	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		av, bv := "0", "0"
		if i < len(as) && as[i] != "" {
			av = as[i]
		}
		if i < len(bs) && bs[i] != "" {
			bv = bs[i]
		}
		if cmp := compareSegment(av, bv); cmp != 0 {
			return cmp
		}
	}
	return 0
}

func compareSegment(a, b string) int {
	an, aerr := strconv.Atoi(a)
	bn, berr := strconv.Atoi(b)
	if aerr == nil && berr == nil {
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		}
		return 0
	}
	return strings.Compare(a, b)
}
