package catalog

import (
	"fmt"

	domain "github.com/yungbote/marketlake/internal/domain/catalog"
)

type frame struct {
	node      *domain.CategoryNode
	rootID    int64
	rootPath  string
	hierarchy []string
	topLevel  bool
}

// Flatten turns the category tree into one FlatCategory per searchable
// leaf, depth first, deduplicated, with depth and level columns filled.
//
// A top-level node without children is its own leaf and searches by its own
// id under its vertical. Every leaf reached through an ancestor searches
// under "general" with the id of the top-level node that started the walk.
func Flatten(tree []domain.CategoryNode) []domain.FlatCategory {
	out := make([]domain.FlatCategory, 0, len(tree))

	stack := make([]frame, 0, len(tree))
	for i := len(tree) - 1; i >= 0; i-- {
		n := &tree[i]
		stack = append(stack, frame{
			node:      n,
			rootID:    n.ID,
			rootPath:  n.VerticalID,
			hierarchy: []string{n.Name},
			topLevel:  true,
		})
	}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := f.node

		if len(n.Subcategories) == 0 {
			if f.topLevel {
				out = append(out, domain.FlatCategory{
					CategoryID:         n.ID,
					CategoryName:       n.Name,
					CategoryPathRoot:   f.rootPath,
					CategorySearchPath: fmt.Sprintf("category_ids=%d", n.ID),
					ParentID:           nil,
					Hierarchy:          f.hierarchy,
				})
				continue
			}
			out = append(out, domain.FlatCategory{
				CategoryID:         n.ID,
				CategoryName:       n.Name,
				CategoryPathRoot:   f.rootPath,
				CategorySearchPath: fmt.Sprintf("category_ids=%d&object_type_ids=%d", f.rootID, n.ID),
				ParentID:           copyID(n.ParentID),
				Hierarchy:          f.hierarchy,
			})
			continue
		}

		// Push in reverse so children pop in declaration order.
		for i := len(n.Subcategories) - 1; i >= 0; i-- {
			child := &n.Subcategories[i]
			h := make([]string, len(f.hierarchy), len(f.hierarchy)+1)
			copy(h, f.hierarchy)
			stack = append(stack, frame{
				node:      child,
				rootID:    f.rootID,
				rootPath:  domain.GeneralPathRoot,
				hierarchy: append(h, child.Name),
			})
		}
	}

	out = Deduplicate(out)
	for i := range out {
		out[i].Depth = len(out[i].Hierarchy)
		out[i].Levels = SplitLevels(out[i].Hierarchy)
	}
	return out
}

// Deduplicate drops rows equal to an earlier row, keeping first occurrence.
func Deduplicate(rows []domain.FlatCategory) []domain.FlatCategory {
	seen := make(map[string]bool, len(rows))
	out := rows[:0:0]
	for _, r := range rows {
		k := r.Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, r)
	}
	return out
}

// SplitLevels spreads a path across the fixed level columns, padding with
// the fill value. Paths deeper than the column count are truncated here
// only; the full path stays on the row.
func SplitLevels(hierarchy []string) [domain.HierarchyLevels]string {
	var levels [domain.HierarchyLevels]string
	for i := range levels {
		if i < len(hierarchy) {
			levels[i] = hierarchy[i]
		} else {
			levels[i] = domain.LevelFill
		}
	}
	return levels
}

func copyID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
