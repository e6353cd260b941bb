package okapi

// ReadTasks is a strided batch of point lookups. A nil Collections view
// broadcasts the default collection.
type ReadTasks struct {
	Count       int
	Collections Strided[Collection]
	Keys        Strided[Key]
}

// SingleRead builds a one-task read batch.
func SingleRead(col Collection, key Key) ReadTasks {
	return ReadTasks{
		Count:       1,
		Collections: Broadcast(col),
		Keys:        Broadcast(key),
	}
}

func (t ReadTasks) validate() error {
	if t.Count <= 0 {
		return errArgs("read batch needs at least one task")
	}
	if !t.Keys.spans(t.Count) {
		return errArgs("keys view does not cover %d tasks", t.Count)
	}
	if !t.Collections.IsNil() && !t.Collections.spans(t.Count) {
		return errArgs("collections view does not cover %d tasks", t.Count)
	}
	return nil
}

func (t ReadTasks) task(i int) (Collection, Key) {
	col := DefaultCollection
	if !t.Collections.IsNil() {
		col = t.Collections.At(i)
	}
	return col, t.Keys.At(i)
}

// WriteTasks is a strided batch of upserts and deletes. A task's value is
// resolved from the Values view, optionally narrowed by Offsets and Lengths
// so many tasks can share one backing buffer. A nil Values view, or a nil
// resolved value, stages a deletion; a present zero-length value stays a
// distinct, empty value.
type WriteTasks struct {
	Count       int
	Collections Strided[Collection]
	Keys        Strided[Key]
	Values      Strided[[]byte]
	Offsets     Strided[uint32]
	Lengths     Strided[uint32]
}

// SinglePut builds a one-task upsert batch.
func SinglePut(col Collection, key Key, value []byte) WriteTasks {
	return WriteTasks{
		Count:       1,
		Collections: Broadcast(col),
		Keys:        Broadcast(key),
		Values:      Broadcast(value),
	}
}

// SingleDelete builds a one-task deletion batch.
func SingleDelete(col Collection, key Key) WriteTasks {
	return WriteTasks{
		Count:       1,
		Collections: Broadcast(col),
		Keys:        Broadcast(key),
	}
}

func (t WriteTasks) validate() error {
	if t.Count <= 0 {
		return errArgs("write batch needs at least one task")
	}
	if !t.Keys.spans(t.Count) {
		return errArgs("keys view does not cover %d tasks", t.Count)
	}
	if !t.Collections.IsNil() && !t.Collections.spans(t.Count) {
		return errArgs("collections view does not cover %d tasks", t.Count)
	}
	if !t.Values.IsNil() && !t.Values.spans(t.Count) {
		return errArgs("values view does not cover %d tasks", t.Count)
	}
	if !t.Offsets.IsNil() && !t.Offsets.spans(t.Count) {
		return errArgs("offsets view does not cover %d tasks", t.Count)
	}
	if !t.Lengths.IsNil() && !t.Lengths.spans(t.Count) {
		return errArgs("lengths view does not cover %d tasks", t.Count)
	}
	return nil
}

// task resolves task i into its target and payload. deleted reports a
// staged tombstone.
func (t WriteTasks) task(i int) (col Collection, key Key, value []byte, deleted bool, err error) {
	col = DefaultCollection
	if !t.Collections.IsNil() {
		col = t.Collections.At(i)
	}
	key = t.Keys.At(i)

	if t.Values.IsNil() {
		return col, key, nil, true, nil
	}
	buf := t.Values.At(i)
	if buf == nil {
		return col, key, nil, true, nil
	}

	var off uint32
	if !t.Offsets.IsNil() {
		off = t.Offsets.At(i)
	}
	if t.Lengths.IsNil() {
		if int(off) > len(buf) {
			return col, key, nil, false, errArgs("value offset %d exceeds buffer of %d bytes", off, len(buf))
		}
		return col, key, buf[off:], false, nil
	}
	length := t.Lengths.At(i)
	if length == LenMissing {
		return col, key, nil, true, nil
	}
	end := uint64(off) + uint64(length)
	if end > uint64(len(buf)) {
		return col, key, nil, false, errArgs("value slice [%d:%d] exceeds buffer of %d bytes", off, end, len(buf))
	}
	return col, key, buf[off:end:end], false, nil
}

// ScanTasks is a strided batch of bounded range scans: each task iterates
// ascending from MinKeys for at most Lengths entries.
type ScanTasks struct {
	Count       int
	Collections Strided[Collection]
	MinKeys     Strided[Key]
	Lengths     Strided[uint32]
}

// SingleScan builds a one-task scan batch.
func SingleScan(col Collection, minKey Key, length uint32) ScanTasks {
	return ScanTasks{
		Count:       1,
		Collections: Broadcast(col),
		MinKeys:     Broadcast(minKey),
		Lengths:     Broadcast(length),
	}
}

func (t ScanTasks) validate() error {
	if t.Count <= 0 {
		return errArgs("scan batch needs at least one task")
	}
	if !t.MinKeys.spans(t.Count) {
		return errArgs("min-keys view does not cover %d tasks", t.Count)
	}
	if !t.Lengths.spans(t.Count) {
		return errArgs("lengths view does not cover %d tasks", t.Count)
	}
	if !t.Collections.IsNil() && !t.Collections.spans(t.Count) {
		return errArgs("collections view does not cover %d tasks", t.Count)
	}
	return nil
}

func (t ScanTasks) task(i int) (Collection, Key, uint32) {
	col := DefaultCollection
	if !t.Collections.IsNil() {
		col = t.Collections.At(i)
	}
	return col, t.MinKeys.At(i), t.Lengths.At(i)
}
