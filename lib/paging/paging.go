// Package paging implements the two bulk-read shapes these portals share:
// cursor pagination where the end is inferred from a short page, and batched
// detail fetches bounded by a per-endpoint chunk size.
package paging

import (
	"context"
	"fmt"
)

// PageFunc fetches one page of results. Pages are numbered from 1; the
// portal-specific caller translates the page number into whatever the
// endpoint wants (page+start+limit, offset+limit, ...).
type PageFunc[T any] func(ctx context.Context, page, pageSize int) ([]T, error)

// BatchFunc fetches the details for one bounded chunk of ids.
type BatchFunc[ID, D any] func(ctx context.Context, ids []ID) ([]D, error)

// Walker walks a paginated listing lazily: each Next call is one request.
// It is one-shot and non-restartable; callers that need to iterate twice
// must keep the slice returned by All.
type Walker[T any] struct {
	fetch    PageFunc[T]
	pageSize int
	page     int
	done     bool
}

// Walk starts a pagination walk at page 1. The walk ends at the first page
// shorter than pageSize (an empty page included): these portals never report
// a total count up front, a short page is the only termination signal.
func Walk[T any](pageSize int, fetch PageFunc[T]) *Walker[T] {
	return &Walker[T]{
		fetch:    fetch,
		pageSize: pageSize,
		page:     1,
	}
}

// Next returns the next page, or a nil slice once the walk is exhausted.
func (w *Walker[T]) Next(ctx context.Context) ([]T, error) {
	if w.done {
		return nil, nil
	}

	items, err := w.fetch(ctx, w.page, w.pageSize)
	if err != nil {
		w.done = true
		return nil, fmt.Errorf("page %d: %w", w.page, err)
	}
	w.page++

	if len(items) < w.pageSize {
		w.done = true
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items, nil
}

// All drains the rest of the walk into one slice.
func (w *Walker[T]) All(ctx context.Context) ([]T, error) {
	var out []T
	for {
		items, err := w.Next(ctx)
		if err != nil {
			return out, err
		}
		if items == nil {
			return out, nil
		}
		out = append(out, items...)
	}
}

// Chunk partitions ids into contiguous chunks of at most size.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		panic("chunk size must be positive")
	}
	var out [][]T
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[start:end])
	}
	return out
}

// FetchDetails fetches details for ids in chunks of at most chunkSize,
// concatenating responses in chunk order. The bound is dictated by the
// target endpoint (commonly 25, 50 or 100) and is always passed explicitly.
// Within a chunk the portal does not guarantee positional correspondence,
// so detail records carry their own id field.
func FetchDetails[ID, D any](ctx context.Context, ids []ID, chunkSize int, fetch BatchFunc[ID, D]) ([]D, error) {
	var out []D
	for _, chunk := range Chunk(ids, chunkSize) {
		details, err := fetch(ctx, chunk)
		if err != nil {
			return out, err
		}
		out = append(out, details...)
	}
	return out, nil
}
