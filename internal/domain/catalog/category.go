package catalog

import (
	"strconv"
	"strings"
)

const (
	// HierarchyLevels is the fixed number of level columns a flat category carries.
	HierarchyLevels = 5
	// LevelFill pads level columns past the end of a shorter path.
	LevelFill = "--"
	// HierarchySeparator joins path segments in category_hierarchy.
	HierarchySeparator = " > "
	// GeneralPathRoot is the search root for leaves reached through an ancestor.
	GeneralPathRoot = "general"
)

// CategoryNode is one node of the marketplace category tree as served by the API.
type CategoryNode struct {
	ID            int64          `json:"id"`
	Name          string         `json:"name"`
	ParentID      *int64         `json:"parent_id,omitempty"`
	VerticalID    string         `json:"vertical_id,omitempty"`
	Subcategories []CategoryNode `json:"subcategories"`
}

// CategoryTree is the stored raw snapshot, stamped with the download date.
type CategoryTree struct {
	Date       string         `json:"date"`
	Categories []CategoryNode `json:"categories"`
}

// FlatCategory is one searchable leaf of the tree.
type FlatCategory struct {
	CategoryID         int64
	CategoryName       string
	CategoryPathRoot   string
	CategorySearchPath string
	ParentID           *int64
	Hierarchy          []string
	Depth              int
	Levels             [HierarchyLevels]string
}

func (f FlatCategory) HierarchyString() string {
	return strings.Join(f.Hierarchy, HierarchySeparator)
}

// Key is a full-equality identity used for deduplication.
func (f FlatCategory) Key() string {
	parent := "null"
	if f.ParentID != nil {
		parent = strconv.FormatInt(*f.ParentID, 10)
	}
	return strings.Join([]string{
		strconv.FormatInt(f.CategoryID, 10),
		f.CategoryName,
		f.CategoryPathRoot,
		f.CategorySearchPath,
		parent,
		f.HierarchyString(),
	}, "\x1f")
}
