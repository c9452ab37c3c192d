// Package leadio reads lead and procurement-link files for bulk import and
// writes procurement-link exports.
package leadio

import (
	"context"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
)

// StreamJSONArray decodes a JSON array of T element by element.
// Both channels are closed when processing completes.
func StreamJSONArray[T any](ctx context.Context, r io.Reader) (<-chan T, <-chan error) {
	outCh := make(chan T, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(outCh)
		defer close(errCh)

		decoder := json.NewDecoder(r)

		tok, err := decoder.Token()
		if err != nil {
			if err == io.EOF {
				return
			}
			errCh <- eris.Wrap(err, "leadio: read opening token")
			return
		}
		if delim, ok := tok.(json.Delim); !ok || delim != '[' {
			errCh <- eris.Errorf("leadio: expected '[', got %v", tok)
			return
		}

		for index := 0; decoder.More(); index++ {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "leadio: context cancelled")
				return
			}
			var item T
			if err := decoder.Decode(&item); err != nil {
				errCh <- eris.Wrapf(err, "leadio: decode element %d", index)
				return
			}
			select {
			case outCh <- item:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "leadio: context cancelled")
				return
			}
		}

		if _, err := decoder.Token(); err != nil && err != io.EOF {
			errCh <- eris.Wrap(err, "leadio: read closing token")
		}
	}()

	return outCh, errCh
}

// StreamJSONLines decodes one JSON value of T per line, the layout of
// table exports.
func StreamJSONLines[T any](ctx context.Context, r io.Reader) (<-chan T, <-chan error) {
	outCh := make(chan T, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(outCh)
		defer close(errCh)

		decoder := json.NewDecoder(r)
		for index := 0; ; index++ {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "leadio: context cancelled")
				return
			}
			var item T
			if err := decoder.Decode(&item); err != nil {
				if err == io.EOF {
					return
				}
				errCh <- eris.Wrapf(err, "leadio: decode line %d", index+1)
				return
			}
			select {
			case outCh <- item:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "leadio: context cancelled")
				return
			}
		}
	}()

	return outCh, errCh
}

// collect drains a stream into a slice.
func collect[T any](outCh <-chan T, errCh <-chan error) ([]T, error) {
	items := []T{}
	for item := range outCh {
		items = append(items, item)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return items, nil
}
