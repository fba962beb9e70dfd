package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/bytedance/sonic"

	"github.com/fruitsalade/pagemedia/internal/filestate"
)

// selection is one library file placed on a page element.
type selection struct {
	URL       string          `json:"url"`
	ElementID string          `json:"elementId"`
	Entry     filestate.Entry `json:"entry"`
}

// loadSelections reads a selections file. A missing file is empty.
func loadSelections(path string) ([]selection, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read selections: %w", err)
	}
	var sel []selection
	if err := sonic.ConfigStd.Unmarshal(data, &sel); err != nil {
		return nil, fmt.Errorf("parse selections %s: %w", path, err)
	}
	return sel, nil
}

func saveSelections(path string, sel []selection) error {
	data, err := sonic.ConfigStd.MarshalIndent(sel, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// upsertSelection replaces the selection of the same element, last write wins.
func upsertSelection(sel []selection, s selection) []selection {
	for i := range sel {
		if sel[i].ElementID == s.ElementID {
			sel[i] = s
			return sel
		}
	}
	return append(sel, s)
}

// register loads selections into store.
func register(store *filestate.Store, sel []selection) {
	for _, s := range sel {
		store.Register(s.URL, s.ElementID, s.Entry)
	}
}
