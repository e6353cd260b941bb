package okapi

// Write resolves a strided batch of upserts and deletions. With a
// transaction the tasks are staged into its write set; without one they
// are applied as a single atomic backend batch that owns its own commit
// sequence number. Either the whole batch applies or none of it.
func (d *DB) Write(txn *Txn, tasks WriteTasks, opts Options) error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	if err := tasks.validate(); err != nil {
		return err
	}
	metricWriteTasks.Add(float64(tasks.Count))

	// Resolve every task before mutating anything, so a bad task cannot
	// leave a half-staged batch behind.
	resolved := make([]resolvedWrite, tasks.Count)
	for i := 0; i < tasks.Count; i++ {
		col, key, value, tombstone, err := tasks.task(i)
		if err != nil {
			return err
		}
		if err := d.checkHandle(col); err != nil {
			return err
		}
		resolved[i] = resolvedWrite{
			wk:        writeKey{col: col.id, key: key},
			value:     value,
			tombstone: tombstone,
		}
	}

	if txn != nil {
		txn.mu.Lock()
		defer txn.mu.Unlock()
		if err := txn.usableLocked(); err != nil {
			return err
		}
		for _, w := range resolved {
			txn.stageLocked(Collection{id: w.wk.col}, w.wk.key, w.value, w.tombstone)
		}
		return nil
	}

	flush := opts&WriteFlush != 0 || d.cfg.SyncWrites
	_, err := d.commit(resolved, nil, 0, flush)
	return err
}
