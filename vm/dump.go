package vm

import (
	"fmt"
	"io"
)

// DumpRow is one line of a memory dump.
type DumpRow struct {
	ID      string `json:"id"`
	Mutable bool   `json:"mutable"`
	Value   string `json:"value"`
}

// Dump returns every occupied slot ordered by id.
func (e *Engine) Dump() []DumpRow {
	return DumpStore(e.store)
}

// EntryDump returns memory as it stood when the last outermost activation
// ended, locals included, whether it returned or failed. Without
// WithEntryDump, or before any user function has run, it returns Dump.
func (e *Engine) EntryDump() []DumpRow {
	if e.entryRows == nil {
		return e.Dump()
	}
	return e.entryRows
}

// DumpStore returns every occupied slot of s ordered by id.
func DumpStore(s *Store) []DumpRow {
	snap := s.Snapshot()
	ids := s.IDs()

	rows := make([]DumpRow, 0, len(ids))
	for _, id := range ids {
		entry, ok := snap[id]
		if !ok {
			continue
		}
		rows = append(rows, DumpRow{ID: id, Mutable: entry.Mutable, Value: entry.Value.String()})
	}
	return rows
}

// WriteDump renders rows as a table.
func WriteDump(w io.Writer, rows []DumpRow) error {
	if _, err := fmt.Fprintf(w, "| %-40s| %-12s| %s\n", "ID", "Mutable", "Value"); err != nil {
		return err
	}
	for _, r := range rows {
		mut := "Not Mutable"
		if r.Mutable {
			mut = "Mutable"
		}
		if _, err := fmt.Fprintf(w, "| %-40s| %-12s| %s\n", r.ID, mut, r.Value); err != nil {
			return err
		}
	}
	return nil
}
