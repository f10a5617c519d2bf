package projection

// Working is the transient, mutable copy of {Group Order, per-document page id
// sequences} that a drag gesture operates on. It is not safe for concurrent
// use.
type Working struct {
	order   []string
	members map[string][]string
}

// Clone returns an independent copy.
func (w *Working) Clone() *Working {
	cp := &Working{
		order:   append([]string(nil), w.order...),
		members: make(map[string][]string, len(w.members)),
	}
	for id, ids := range w.members {
		cp.members[id] = append([]string(nil), ids...)
	}
	return cp
}

// GroupOrder returns a copy of the document order.
func (w *Working) GroupOrder() []string {
	return append([]string(nil), w.order...)
}

// Members returns a copy of a group's page ids.
func (w *Working) Members(groupID string) []string {
	return append([]string(nil), w.members[groupID]...)
}

// HasGroup reports whether the group is part of the projection.
func (w *Working) HasGroup(groupID string) bool {
	_, ok := w.members[groupID]
	return ok
}

// GroupOf returns the group that currently owns a page.
func (w *Working) GroupOf(pageID string) (string, bool) {
	for _, groupID := range w.order {
		if indexOf(w.members[groupID], pageID) >= 0 {
			return groupID, true
		}
	}
	return "", false
}

// PageIndex returns the position of a page within a group, or -1.
func (w *Working) PageIndex(groupID, pageID string) int {
	return indexOf(w.members[groupID], pageID)
}

// GroupIndex returns the position of a group in the order, or -1.
func (w *Working) GroupIndex(groupID string) int {
	return indexOf(w.order, groupID)
}

// MovePage moves a page within its group from one index to another. Elements
// in between shift by one.
func (w *Working) MovePage(groupID string, from, to int) bool {
	ids, ok := w.members[groupID]
	if !ok || !validIndex(ids, from) || !validIndex(ids, to) {
		return false
	}
	w.members[groupID] = move(ids, from, to)
	return true
}

// TransferPage removes a page from its current group and inserts it into the
// target group at index. An index past the end appends.
func (w *Working) TransferPage(pageID, fromGroup, toGroup string, index int) bool {
	src, ok := w.members[fromGroup]
	if !ok {
		return false
	}
	dst, ok := w.members[toGroup]
	if !ok || fromGroup == toGroup {
		return false
	}
	at := indexOf(src, pageID)
	if at < 0 {
		return false
	}
	w.members[fromGroup] = append(src[:at:at], src[at+1:]...)
	w.members[toGroup] = insert(dst, index, pageID)
	return true
}

// MoveGroup moves a group within the order. Page sequences are untouched.
func (w *Working) MoveGroup(from, to int) bool {
	if !validIndex(w.order, from) || !validIndex(w.order, to) {
		return false
	}
	w.order = move(w.order, from, to)
	return true
}

func indexOf(values []string, target string) int {
	for i, v := range values {
		if v == target {
			return i
		}
	}
	return -1
}

func validIndex(values []string, i int) bool {
	return i >= 0 && i < len(values)
}

// move removes the element at from and reinserts it at to.
func move(values []string, from, to int) []string {
	out := make([]string, 0, len(values))
	out = append(out, values[:from]...)
	out = append(out, values[from+1:]...)
	return insert(out, to, values[from])
}

func insert(values []string, index int, v string) []string {
	if index < 0 {
		index = 0
	}
	if index >= len(values) {
		return append(append([]string(nil), values...), v)
	}
	out := make([]string, 0, len(values)+1)
	out = append(out, values[:index]...)
	out = append(out, v)
	return append(out, values[index:]...)
}
