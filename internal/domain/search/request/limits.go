package request

// Limits caps the window a single request may ask for. Zero fields mean unlimited.
type Limits struct {
	PageSizeMax int
	PositionMax int
}

// Node clamps a window for a local node: start is capped at PositionMax.
func (l Limits) Node(start, pageSize int) (int, int) {
	if l.PositionMax > 0 && start > l.PositionMax {
		start = l.PositionMax
	}
	if l.PageSizeMax > 0 && pageSize > l.PageSizeMax {
		pageSize = l.PageSizeMax
	}
	return start, pageSize
}

// Federated clamps a window for a federated query: the page itself must end
// before PositionMax, so start is rolled back to PositionMax-pageSize.
func (l Limits) Federated(start, pageSize int) (int, int) {
	if l.PageSizeMax > 0 && pageSize > l.PageSizeMax {
		pageSize = l.PageSizeMax
	}
	if l.PositionMax > 0 && start > l.PositionMax-pageSize {
		start = max(l.PositionMax-pageSize, 0)
	}
	return start, pageSize
}
