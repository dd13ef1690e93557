package board

// Selected returns the focused record id, or "" when nothing is selected.
func (b *Board) Selected() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.selected
}

// Select focuses the record with the given id. Only ids currently on the
// board can be selected.
func (b *Board) Select(id string) error {
	b.mu.Lock()
	if _, ok := b.table.rows[id]; !ok {
		b.mu.Unlock()
		return ErrUnknownRecord
	}
	if b.selected == id {
		b.mu.Unlock()
		return nil
	}
	b.selected = id
	b.publishLocked(Change{Kind: ChangeSelect, Selected: id, SelectionChanged: true, Version: b.table.version})
	return nil
}

// ClearSelection returns the controller to the unselected state.
func (b *Board) ClearSelection() {
	b.mu.Lock()
	if b.selected == "" {
		b.mu.Unlock()
		return
	}
	b.selected = ""
	b.publishLocked(Change{Kind: ChangeSelect, SelectionChanged: true, Version: b.table.version})
}

// autoSelectLocked focuses the first record in display order when nothing is
// selected and the board is non-empty. Callers invoke it only when an upsert
// took the board from empty to non-empty, so a cleared selection stays
// cleared while records remain.
func (b *Board) autoSelectLocked() bool {
	if b.selected != "" || len(b.table.rows) == 0 {
		return false
	}
	b.selected = b.table.first()
	return true
}

// dropSelectionLocked clears the selection if it references id.
func (b *Board) dropSelectionLocked(id string) bool {
	if b.selected != id {
		return false
	}
	b.selected = ""
	return true
}
