package manifests

// Table is the active-manifest table for one run: every manifest fetched so
// far, by name, plus the reverse listing the cleanup pass walks. Fetches are
// memoized here, which also keeps include cycles from recursing forever.
type Table struct {
	byName map[string]string
	order  []string
}

// NewTable creates an empty active-manifest table.
func NewTable() *Table {
	return &Table{byName: map[string]string{}}
}

// Add records the local path for a fetched manifest.
func (t *Table) Add(name, path string) {
	if _, exists := t.byName[name]; !exists {
		t.order = append(t.order, name)
	}
	t.byName[name] = path
}

// Get returns the cached local path for a manifest name.
func (t *Table) Get(name string) (string, bool) {
	path, ok := t.byName[name]
	return path, ok
}

// List returns the local paths of every manifest touched this run, in fetch
// order.
func (t *Table) List() []string {
	out := make([]string, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, t.byName[name])
	}
	return out
}
