package env

import "sync"

// ---------------------------------------------------------------------------
// Object lifecycle tracker
// ---------------------------------------------------------------------------

// Handle identifies an object registered for finalization.
type Handle uint64

// Tracker holds the objects of one context that own destructors. Entries
// are released through a reclamation queue; Reclaim may be called from
// any goroutine, everything else belongs to the owning context.
type Tracker struct {
	entries map[Handle]Object
	index   map[Object]Handle
	order   []Handle
	next    Handle

	mu    sync.Mutex
	queue []Handle
}

func newTracker() *Tracker {
	return &Tracker{
		entries: make(map[Handle]Object),
		index:   make(map[Object]Handle),
		next:    1,
	}
}

// Reclaim queues h for removal. The entry is dropped on the next drain.
func (t *Tracker) Reclaim(h Handle) {
	t.mu.Lock()
	t.queue = append(t.queue, h)
	t.mu.Unlock()
}

func (t *Tracker) drain() {
	t.mu.Lock()
	queue := t.queue
	t.queue = nil
	t.mu.Unlock()
	if len(queue) == 0 {
		return
	}
	for _, h := range queue {
		if obj, ok := t.entries[h]; ok {
			delete(t.index, obj)
			delete(t.entries, h)
		}
	}
	kept := t.order[:0]
	for _, h := range t.order {
		if _, ok := t.entries[h]; ok {
			kept = append(kept, h)
		}
	}
	t.order = kept
}

func (t *Tracker) add(obj Object) Handle {
	t.drain()
	if h, ok := t.index[obj]; ok {
		return h
	}
	h := t.next
	t.next++
	t.entries[h] = obj
	t.index[obj] = h
	t.order = append(t.order, h)
	return h
}

// Len returns the number of tracked objects not yet finalized.
func (t *Tracker) Len() int {
	t.drain()
	n := 0
	for _, obj := range t.entries {
		if !obj.IsFinalized() {
			n++
		}
	}
	return n
}

// ---------------------------------------------------------------------------
// Context operations
// ---------------------------------------------------------------------------

// RegisterForFinalization tracks obj when its class declares a
// destructor. The returned handle is zero for objects without one.
func (c *Context) RegisterForFinalization(obj Object) Handle {
	if obj == nil {
		return 0
	}
	class := obj.Reflection()
	if class == nil || class.DestructorMethod() == nil {
		return 0
	}
	return c.tracker.add(obj)
}

// Destruct runs obj's destructor now and releases its tracking entry.
func (c *Context) Destruct(obj Object) {
	if obj == nil || obj.IsFinalized() {
		return
	}
	h, tracked := c.tracker.index[obj]
	if tracked {
		defer c.tracker.Reclaim(h)
	}
	c.runDestructor(obj)
}

// FinalizeObjects runs the destructor of every tracked object not yet
// finalized, in registration order. Objects registered by a destructor
// during the pass are finalized in the same pass. A destructor that
// panics interrupts the pass; its frame is still popped.
func (c *Context) FinalizeObjects() {
	for {
		c.tracker.drain()
		order := append([]Handle(nil), c.tracker.order...)
		ran := false
		for _, h := range order {
			obj, ok := c.tracker.entries[h]
			if !ok || obj.IsFinalized() {
				continue
			}
			c.tracker.Reclaim(h)
			ran = true
			c.runDestructor(obj)
		}
		if !ran {
			return
		}
	}
}

// PendingObjects returns the number of tracked objects whose destructor
// has not run.
func (c *Context) PendingObjects() int {
	return c.tracker.Len()
}

func (c *Context) runDestructor(obj Object) {
	obj.MarkFinalized()
	class := obj.Reflection()
	d := class.DestructorMethod()
	if d == nil || d.Invoke == nil {
		return
	}
	trace := d.Trace
	if trace.IsUnknown() {
		trace = c.Trace()
	}
	declaring := class.Name
	if d.Class != nil {
		declaring = d.Class.Name
	}
	c.PushCall(trace, obj, nil, d.Name, declaring, class.Name)
	defer c.PopCall()
	d.Invoke(c, obj, nil)
}
