package dataset

import "fmt"

// statusColumn is consumed by the active-entity filter and never reaches the
// serialized output.
const statusColumn = "STATUS"

const activeStatus = "ACTIVE"

type rename struct {
	from string
	to   string
}

// leiRenames maps GLEIF golden-copy column names onto the LEI_DATA structure
// component IDs. Order here fixes the output column order.
var leiRenames = []rename{
	{"LEI", "LEI"},
	{"Entity.LegalName", "LEGAL_NAME"},
	{"Entity.LegalAddress.Country", "COUNTRY_INCORPORATION"},
	{"Entity.HeadquartersAddress.Country", "COUNTRY_HEADQUARTERS"},
	{"Entity.EntityCategory", "CATEGORY"},
	{"Entity.EntitySubCategory", "SUBCATEGORY"},
	{"Entity.LegalForm.EntityLegalFormCode", "LEGAL_FORM"},
	{"Entity.EntityStatus", statusColumn},
	{"Entity.LegalAddress.PostalCode", "POSTAL_CODE"},
}

// Reshape projects a raw LEI table onto the standardized column set,
// optionally keeping only rows whose entity status is ACTIVE. The STATUS
// column is dropped from the result either way.
func Reshape(t *Table, activeOnly bool) (*Table, error) {
	srcIdx := make([]int, len(leiRenames))
	for i, rn := range leiRenames {
		idx := t.ColumnIndex(rn.from)
		if idx < 0 {
			// The golden copy may already carry the target name (re-running
			// the pipeline on its own output).
			idx = t.ColumnIndex(rn.to)
		}
		if idx < 0 {
			return nil, fmt.Errorf("%w: %s", ErrColumnMissing, rn.from)
		}
		srcIdx[i] = idx
	}

	statusPos := -1
	out := &Table{}
	for i, rn := range leiRenames {
		if rn.to == statusColumn {
			statusPos = i
			continue
		}
		out.Columns = append(out.Columns, rn.to)
	}

	for _, row := range t.Rows {
		if activeOnly && statusPos >= 0 && row[srcIdx[statusPos]] != activeStatus {
			continue
		}
		projected := make([]string, 0, len(out.Columns))
		for i := range leiRenames {
			if i == statusPos {
				continue
			}
			projected = append(projected, row[srcIdx[i]])
		}
		out.Rows = append(out.Rows, projected)
	}

	return out, nil
}
