// Package pdf validates uploaded documents before they enter the pipeline.
package pdf

import (
	"fmt"

	"github.com/gen2brain/go-fitz"
)

// PageCount opens the document bytes and returns the number of pages. It
// doubles as upload validation: bytes that are not a readable PDF return an
// error before anything is persisted.
func PageCount(content []byte) (int, error) {
	doc, err := fitz.NewFromMemory(content)
	if err != nil {
		return 0, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	return doc.NumPage(), nil
}
