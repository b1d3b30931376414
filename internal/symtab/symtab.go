// Package symtab implements a separately-chained hash table with a
// pushdef/popdef history chain per entry, as used by the macro
// processor's name bindings (macros, built-ins, and the definitions
// shadowed by a pushdef until the matching popdef).
package symtab

// Func is a built-in's callback, given the macro name it was invoked as
// and its collected, already-expanded arguments.
type Func func(name string, args []string) (string, error)

// Entry is one binding in the table. A binding may carry a user-defined
// replacement text (Def), a built-in function pointer (Fn), or both are
// unset for a name that exists only as history.
type Entry struct {
	Name string
	Def  string
	HasDef bool
	Fn   Func

	prev, next *Entry // collision chain within the entry's bucket
	hist       *Entry // shadowed bindings pushed below this one
}

// Table is a hash table of Entry chains, one per bucket.
type Table struct {
	buckets []*Entry
}

// New returns a Table with the given number of buckets. numBuckets must
// be positive.
func New(numBuckets int) *Table {
	return &Table{buckets: make([]*Entry, numBuckets)}
}

// hash implements djb2 per ht.c: h = h*33 ^ ch, not the more common
// h*33 + ch.
func hash(name string, n int) int {
	h := uint64(5381)
	for i := 0; i < len(name); i++ {
		h = h*33 ^ uint64(name[i])
	}
	return int(h % uint64(n))
}

// Lookup finds the live (non-history) entry for name, or nil.
func (t *Table) Lookup(name string) *Entry {
	bucket := hash(name, len(t.buckets))
	for e := t.buckets[bucket]; e != nil; e = e.next {
		if e.Name == name {
			return e
		}
	}
	return nil
}

// Upsert binds name to def/fn. If pushHist is true and name already has
// a live binding, the prior binding is pushed into the entry's history
// (recoverable by a later Delete with popHist) and the visible entry
// takes the new def/fn while keeping its position in the collision
// chain; if pushHist is false, an existing binding is overwritten in
// place. hasDef distinguishes an empty-string definition from no
// definition at all (a built-in with no user text).
func (t *Table) Upsert(name string, def string, hasDef bool, fn Func, pushHist bool) *Entry {
	e := t.Lookup(name)

	if e == nil {
		bucket := hash(name, len(t.buckets))
		newE := &Entry{Name: name, Def: def, HasDef: hasDef, Fn: fn}
		if head := t.buckets[bucket]; head != nil {
			newE.next = head
			head.prev = newE
		}
		t.buckets[bucket] = newE
		return newE
	}

	if pushHist {
		// Link the new node in below the current history head,
		// carrying the entry's prior contents into it, then give the
		// visible head (e) the new values. This keeps e's prev/next
		// links untouched.
		shadow := &Entry{Name: e.Name, Def: e.Def, HasDef: e.HasDef, Fn: e.Fn, hist: e.hist}
		e.hist = shadow

		e.Name = name
		e.Def = def
		e.HasDef = hasDef
		e.Fn = fn
		return e
	}

	e.Name = name
	e.Def = def
	e.HasDef = hasDef
	e.Fn = fn
	return e
}

// Delete removes name's live binding. If popHist is true and the entry
// has history, the most recent history node is promoted into the
// visible slot (preserving the chain's prev/next links) and Delete
// reports true with the entry still present in its prior (shadowed)
// form; otherwise the entry and its full history are discarded
// entirely. Reports false if name has no live binding.
func (t *Table) Delete(name string, popHist bool) bool {
	e := t.Lookup(name)
	if e == nil {
		return false
	}

	bucket := hash(name, len(t.buckets))

	if popHist && e.hist != nil {
		if e.prev != nil {
			e.prev.next = e.hist
			e.hist.prev = e.prev
		} else {
			t.buckets[bucket] = e.hist
		}
		if e.next != nil {
			e.hist.next = e.next
			e.next.prev = e.hist
		}
		e.hist = nil
		return true
	}

	if e.prev != nil {
		e.prev.next = e.next
		if e.next != nil {
			e.next.prev = e.prev
		}
	} else {
		t.buckets[bucket] = e.next
		if e.next != nil {
			e.next.prev = nil
		}
	}
	return true
}
