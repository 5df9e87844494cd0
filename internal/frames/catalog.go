package frames

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Catalog is the ordered list of selectable frames.
type Catalog struct {
	frames []Frame
	byID   map[string]int
}

func NewCatalog(fs []Frame) (*Catalog, error) {
	c := &Catalog{byID: map[string]int{}}
	for _, f := range fs {
		if f.ID == "" {
			return nil, fmt.Errorf("frame %q has no id", f.Label)
		}
		if _, dup := c.byID[f.ID]; dup {
			return nil, fmt.Errorf("duplicate frame id %q", f.ID)
		}
		c.byID[f.ID] = len(c.frames)
		c.frames = append(c.frames, f)
	}
	return c, nil
}

func (c *Catalog) List() []Frame {
	out := make([]Frame, len(c.frames))
	copy(out, c.frames)
	return out
}

func (c *Catalog) Get(id string) (Frame, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Frame{}, false
	}
	return c.frames[i], true
}

// Default returns the frame flagged default, else the first one.
func (c *Catalog) Default() (Frame, bool) {
	for _, f := range c.frames {
		if f.Default {
			return f, true
		}
	}
	if len(c.frames) == 0 {
		return Frame{}, false
	}
	return c.frames[0], true
}

// LoadCatalog reads a CSV with the header id,label,path[,default].
// Relative paths are resolved against the CSV's directory; URLs are kept as is.
func LoadCatalog(path string) (*Catalog, error) {
	fp, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fp.Close()

	r := csv.NewReader(fp)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	if len(rows) < 1 {
		return nil, fmt.Errorf("csv %s has no header", path)
	}
	cols := map[string]int{}
	for i, h := range rows[0] {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"id", "path"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("csv %s: missing column %q", path, required)
		}
	}

	get := func(row []string, name string) string {
		if idx, ok := cols[name]; ok && idx < len(row) {
			return strings.TrimSpace(row[idx])
		}
		return ""
	}

	base := filepath.Dir(path)
	var out []Frame
	for _, row := range rows[1:] {
		id := get(row, "id")
		if id == "" || strings.HasPrefix(id, "#") {
			continue
		}
		f := Frame{
			ID:    id,
			Label: get(row, "label"),
			Path:  resolve(base, get(row, "path")),
		}
		if f.Label == "" {
			f.Label = f.ID
		}
		switch strings.ToLower(get(row, "default")) {
		case "true", "1", "yes":
			f.Default = true
		}
		out = append(out, f)
	}
	return NewCatalog(out)
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) || strings.Contains(p, "://") {
		return p
	}
	return filepath.Join(base, p)
}
