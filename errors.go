package figbundle

import "fmt"

// DocumentUnreadableError marks a source PDF that could not be opened or
// parsed. It fails that document only; other documents in a batch are
// unaffected.
type DocumentUnreadableError struct {
	Document string
	Err      error
}

func (e *DocumentUnreadableError) Error() string {
	return fmt.Sprintf("document %s unreadable: %v", e.Document, e.Err)
}

func (e *DocumentUnreadableError) Unwrap() error {
	return e.Err
}

// RenderUnavailableError marks a page that could not be rasterized for a
// context bundle. It fails that figure's bundle only.
type RenderUnavailableError struct {
	Document string
	Page     int
	Err      error
}

func (e *RenderUnavailableError) Error() string {
	if e.Page > 0 {
		return fmt.Sprintf("cannot render %s page %d: %v", e.Document, e.Page, e.Err)
	}
	return fmt.Sprintf("cannot render %s: %v", e.Document, e.Err)
}

func (e *RenderUnavailableError) Unwrap() error {
	return e.Err
}
