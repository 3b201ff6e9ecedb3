package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatPrice(p float64) string {
	return fmt.Sprintf("$%.2f", p)
}

func formatKm(d *float64) string {
	if d == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *d)
}

// splitList turns repeated or comma separated flag values into one list.
func splitList(vals []string) []string {
	var out []string
	for _, v := range vals {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
