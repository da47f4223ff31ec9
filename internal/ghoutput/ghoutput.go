// Package ghoutput writes key/value pairs to the file named by the
// GITHUB_OUTPUT environment variable, using the delimiter-based encoding
// GitHub Actions requires for multiline values. Grounded on
// original_source/deploy-queue/src/util/github.rs's write_output.
package ghoutput

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

// Write appends key=value to the file named by GITHUB_OUTPUT, encoding value
// with a random delimiter so embedded newlines survive the round trip (R3).
// If GITHUB_OUTPUT is unset, Write is a silent no-op per spec.md §6.
func Write(key, value string) error {
	path, ok := os.LookupEnv("GITHUB_OUTPUT")
	if !ok || path == "" {
		return nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("ghoutput: opening %s: %w", path, err)
	}
	defer f.Close()

	delimiter := uuid.New().String()

	if _, err := fmt.Fprintf(f, "%s<<%s\n%s\n%s\n", key, delimiter, value, delimiter); err != nil {
		return fmt.Errorf("ghoutput: writing %s: %w", key, err)
	}

	return nil
}
