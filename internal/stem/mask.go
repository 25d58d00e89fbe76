package stem

// Mask is a read-only per-pixel selection over a rows x columns detector
// grid. A mask is built once per run and then shared by every concurrent
// reduction, so it is never mutated after construction.
type Mask struct {
	rows     int
	columns  int
	selected []bool
	count    int
}

// NewAnnularMask builds the annular selection used for bright-field and
// dark-field integration: pixel (x, y) is selected when its squared
// distance d2 from the grid center satisfies inner^2 <= d2 < outer^2.
// The center is (columns/2, rows/2) in integer arithmetic.
func NewAnnularMask(rows, columns, innerRadius, outerRadius int) *Mask {
	m := &Mask{
		rows:     rows,
		columns:  columns,
		selected: make([]bool, rows*columns),
	}

	cx := columns / 2
	cy := rows / 2
	inner2 := innerRadius * innerRadius
	outer2 := outerRadius * outerRadius

	for i := range m.selected {
		dx := i%columns - cx
		dy := i/columns - cy
		d2 := dx*dx + dy*dy
		if d2 >= inner2 && d2 < outer2 {
			m.selected[i] = true
			m.count++
		}
	}

	return m
}

// Rows returns the grid row count.
func (m *Mask) Rows() int { return m.rows }

// Columns returns the grid column count.
func (m *Mask) Columns() int { return m.columns }

// Selected reports whether flat pixel index i is inside the annulus.
func (m *Mask) Selected(i int) bool { return m.selected[i] }

// Count returns the number of selected pixels.
func (m *Mask) Count() int { return m.count }
