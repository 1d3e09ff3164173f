package tactical

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
)

// qTableEntry is the on-disk form of one state-action value. The map form
// cannot be marshalled directly because its keys are structs.
type qTableEntry struct {
	SupplyTier int     `json:"supply_tier"`
	ActionTier int     `json:"action_tier"`
	Value      float64 `json:"value"`
}

// SaveQTable writes the table's current values to path as JSON, sorted by
// tier so the file diffs cleanly between runs.
func SaveQTable(path string, qt *QTable) error {
	snapshot := qt.Snapshot()
	entries := make([]qTableEntry, 0, len(snapshot))
	for k, v := range snapshot {
		entries = append(entries, qTableEntry{SupplyTier: k.SupplyTier, ActionTier: k.ActionTier, Value: v})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].SupplyTier != entries[j].SupplyTier {
			return entries[i].SupplyTier < entries[j].SupplyTier
		}
		return entries[i].ActionTier < entries[j].ActionTier
	})

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal q-table: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write q-table: %w", err)
	}
	return nil
}

// LoadQTable warm-starts the table from a file written by SaveQTable. A
// missing file is not an error; the table simply starts cold.
func LoadQTable(path string, qt *QTable) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read q-table: %w", err)
	}

	var entries []qTableEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("parse q-table: %w", err)
	}

	values := make(map[StateActionKey]float64, len(entries))
	for _, e := range entries {
		values[StateActionKey{SupplyTier: e.SupplyTier, ActionTier: e.ActionTier}] = e.Value
	}
	qt.Restore(values)
	return nil
}
