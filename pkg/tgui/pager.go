package tgui

import "fmt"

// Page is one page of a list. Index is 0-based.
type Page[T any] struct {
	Items   []T
	Index   int
	Pages   int
	HasPrev bool
	HasNext bool
}

// Paginate clamps index into range and returns that page.
func Paginate[T any](items []T, index, size int) Page[T] {
	if size <= 0 {
		size = 10
	}
	pages := max((len(items)+size-1)/size, 1)
	index = min(max(index, 0), pages-1)
	start := min(index*size, len(items))
	end := min(start+size, len(items))
	return Page[T]{
		Items:   items[start:end],
		Index:   index,
		Pages:   pages,
		HasPrev: index > 0,
		HasNext: end < len(items),
	}
}

// Label is a compact "Page 2/5" caption.
func (p Page[T]) Label() string {
	return fmt.Sprintf("Page %d/%d", p.Index+1, p.Pages)
}
