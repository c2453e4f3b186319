// Package catalogs downloads and indexes the package-metadata catalogs that
// manifest items resolve against. Catalogs are fetched once per run and
// memoized, including failed fetches.
package catalogs

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"gomunki/internal/fetch"
	"gomunki/internal/logx"
	"gomunki/pkg/plist"
)

// ItemNotFoundError means no catalog in the searched list carries the item.
type ItemNotFoundError struct {
	Name     string
	Catalogs []string
}

func (e *ItemNotFoundError) Error() string {
	return fmt.Sprintf("no catalog in %v contains item %q", e.Catalogs, e.Name)
}

type catalog struct {
	name  string
	items []plist.Dict
	// byName maps lowercased item name to item indexes, preserving catalog
	// order. byNameVersion maps "name-version" to the exact entry.
	byName        map[string][]int
	byNameVersion map[string]int
}

// Store fetches, parses, and serves catalogs for one run.
type Store struct {
	fetcher *fetch.Service
	opts    fetch.Options
	log     *logrus.Entry

	loaded map[string]*catalog
	failed map[string]error
}

// NewStore binds a catalog store to a fetcher.
func NewStore(f *fetch.Service, opts fetch.Options) *Store {
	return &Store{
		fetcher: f,
		opts:    opts,
		log:     logx.Component("catalogs"),
		loaded:  map[string]*catalog{},
		failed:  map[string]error{},
	}
}

func (s *Store) get(ctx context.Context, name string) (*catalog, error) {
	if cat, ok := s.loaded[name]; ok {
		return cat, nil
	}
	if err, ok := s.failed[name]; ok {
		return nil, err
	}

	path, err := s.fetcher.Catalog(ctx, name, s.opts)
	if err != nil {
		err = fmt.Errorf("retrieve catalog %s: %w", name, err)
		s.failed[name] = err
		return nil, err
	}
	items, err := plist.ReadArrayFile(path)
	if err != nil {
		err = fmt.Errorf("parse catalog %s: %w", name, err)
		s.failed[name] = err
		return nil, err
	}

	cat := &catalog{
		name:          name,
		byName:        map[string][]int{},
		byNameVersion: map[string]int{},
	}
	for _, entry := range items {
		item, ok := entry.(plist.Dict)
		if !ok {
			continue
		}
		itemName, ok := item.String("name")
		if !ok || itemName == "" {
			continue
		}
		idx := len(cat.items)
		cat.items = append(cat.items, item)

		key := strings.ToLower(itemName)
		cat.byName[key] = append(cat.byName[key], idx)
		if version, ok := item.String("version"); ok && version != "" {
			cat.byNameVersion[key+"-"+strings.ToLower(version)] = idx
		}
	}
	s.loaded[name] = cat
	return cat, nil
}

// BestItem finds the pkginfo for an item reference, searching the catalog
// list in order. A reference of the form "name-version" pins an exact
// version; otherwise the highest version in the first catalog carrying the
// name wins. The returned dict is a copy.
func (s *Store) BestItem(ctx context.Context, ref string, catalogList []string) (plist.Dict, error) {
	key := strings.ToLower(strings.TrimSpace(ref))
	if key == "" {
		return nil, &ItemNotFoundError{Name: ref, Catalogs: catalogList}
	}

	var lastErr error
	for _, catalogName := range catalogList {
		cat, err := s.get(ctx, catalogName)
		if err != nil {
			s.log.Warnf("skipping catalog %s: %v", catalogName, err)
			lastErr = err
			continue
		}

		if idx, ok := cat.byNameVersion[key]; ok {
			return cat.items[idx].Clone(), nil
		}
		if indexes, ok := cat.byName[key]; ok && len(indexes) > 0 {
			best := indexes[0]
			bestVersion, _ := cat.items[best].String("version")
			for _, idx := range indexes[1:] {
				version, _ := cat.items[idx].String("version")
				if CompareVersions(version, bestVersion) > 0 {
					best = idx
					bestVersion = version
				}
			}
			return cat.items[best].Clone(), nil
		}
	}

	if lastErr != nil {
		return nil, fmt.Errorf("item %q unresolved: %w", ref, lastErr)
	}
	return nil, &ItemNotFoundError{Name: ref, Catalogs: catalogList}
}
