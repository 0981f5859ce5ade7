package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/surfacelink/surfacelink-go/pkg/log"
)

// RunFilter copies matching events to a new capture file. Returns the
// number of events written.
func RunFilter(path string, filter log.Filter, output string) (int, error) {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to open capture file: %w", err)
	}
	defer reader.Close()

	out, err := os.Create(output)
	if err != nil {
		return 0, fmt.Errorf("failed to create output file: %w", err)
	}
	defer out.Close()

	encoder := log.NewEncoder(out)
	count := 0
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return count, fmt.Errorf("failed to read event: %w", err)
		}
		if err := encoder.Encode(event); err != nil {
			return count, fmt.Errorf("failed to encode event: %w", err)
		}
		count++
	}
	return count, nil
}
