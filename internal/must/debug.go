package must

import (
	"encoding/json"
	"io"
	"log/slog"
)

// PrintJSON writes a indented json representation of a on w.
func PrintJSON(w io.Writer, a any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(a); err != nil {
		slog.Error("failed to print json", "err", err)
		return err
	}
	return nil
}
