package portmapper

import "sync"

// binding records one live native mapping: which mapping is held on which
// gateway, and under which lease. Identity is (gateway ID, mapping).
type binding struct {
	gw      Gateway
	mapping Mapping
	lease   *Lease
}

// bindingList tracks active bindings under a plain mutex, separate from the
// manager's exclusive-access discipline: renewal bookkeeping after an
// awaited network call is a quick in-memory edit and must not contend with
// registration for the big lock. The renewal sweep iterates a snapshot and
// reconciles its edits back through these accessors.
type bindingList struct {
	mu   sync.Mutex
	list []binding
}

func (l *bindingList) add(b binding) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.list {
		if e.gw.ID() == b.gw.ID() && e.mapping == b.mapping {
			return
		}
	}
	l.list = append(l.list, b)
}

func (l *bindingList) has(gw Gateway, m Mapping) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.list {
		if e.gw.ID() == gw.ID() && e.mapping == m {
			return true
		}
	}
	return false
}

func (l *bindingList) remove(gw Gateway, m Mapping) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.list[:0]
	for _, e := range l.list {
		if e.gw.ID() == gw.ID() && e.mapping == m {
			continue
		}
		out = append(out, e)
	}
	l.list = out
}

// takeForMapping removes and returns every binding held for m, across all
// gateways. Used by unregistration to know what to tear down.
func (l *bindingList) takeForMapping(m Mapping) []binding {
	l.mu.Lock()
	defer l.mu.Unlock()
	var taken []binding
	out := l.list[:0]
	for _, e := range l.list {
		if e.mapping == m {
			taken = append(taken, e)
			continue
		}
		out = append(out, e)
	}
	l.list = out
	return taken
}

// setLease replaces the lease on an existing binding after a renewal.
func (l *bindingList) setLease(gw Gateway, m Mapping, lease *Lease) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, e := range l.list {
		if e.gw.ID() == gw.ID() && e.mapping == m {
			l.list[i].lease = lease
			return
		}
	}
}

// snapshot returns a copy so the renewal sweep can iterate while concurrent
// register/unregister calls edit the live list.
func (l *bindingList) snapshot() []binding {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]binding, len(l.list))
	copy(out, l.list)
	return out
}

func (l *bindingList) clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.list = nil
}

func (l *bindingList) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.list)
}
