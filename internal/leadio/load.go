package leadio

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-engine/internal/model"
)

// LoadLeads reads lead payloads from a .json array, a .jsonl export or an
// .xlsx sheet, chosen by file extension.
func LoadLeads(ctx context.Context, path string) ([]model.LeadPayload, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".xlsx":
		return ReadLeadsXLSX(path, XLSXOptions{})
	case ".json", ".jsonl", ".ndjson":
		return loadJSON[model.LeadPayload](ctx, path, ext)
	default:
		return nil, eris.Errorf("leadio: unsupported lead file type %q", ext)
	}
}

// LoadLinks reads procurement links from a .json array or a .jsonl export.
func LoadLinks(ctx context.Context, path string) ([]model.ProcurementLink, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json", ".jsonl", ".ndjson":
		return loadJSON[model.ProcurementLink](ctx, path, ext)
	default:
		return nil, eris.Errorf("leadio: unsupported link file type %q", ext)
	}
}

func loadJSON[T any](ctx context.Context, path, ext string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "leadio: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	var (
		outCh <-chan T
		errCh <-chan error
	)
	if ext == ".json" {
		outCh, errCh = StreamJSONArray[T](ctx, f)
	} else {
		outCh, errCh = StreamJSONLines[T](ctx, f)
	}
	return collect(outCh, errCh)
}
