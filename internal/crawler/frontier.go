package crawler

// frontierEntry is a URL waiting to be visited at a given depth.
type frontierEntry struct {
	url   string
	depth int
}

// frontier is the explicit depth-first work list. Children are pushed in
// reverse so they pop in document order, matching a recursive traversal.
type frontier struct {
	stack []frontierEntry
}

func newFrontier(root string) *frontier {
	return &frontier{stack: []frontierEntry{{url: root, depth: 0}}}
}

// Len returns the number of pending entries.
func (f *frontier) Len() int {
	return len(f.stack)
}

// Pop removes and returns the most recently pushed entry.
func (f *frontier) Pop() (frontierEntry, bool) {
	if len(f.stack) == 0 {
		return frontierEntry{}, false
	}
	last := len(f.stack) - 1
	entry := f.stack[last]
	f.stack = f.stack[:last]
	return entry, true
}

// PushChildren schedules links discovered at parentDepth.
func (f *frontier) PushChildren(links []string, parentDepth int) {
	for i := len(links) - 1; i >= 0; i-- {
		f.stack = append(f.stack, frontierEntry{url: links[i], depth: parentDepth + 1})
	}
}
