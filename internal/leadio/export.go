package leadio

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/lead-engine/internal/model"
)

// Export formats.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatCSV   = "csv"
	FormatYAML  = "yaml"
)

// maxCellWidth truncates long URLs in table output.
const maxCellWidth = 60

var linkColumns = []string{"state", "capital", "officialWebsite", "procurementLink", "requiresRegistration"}

// LinkExport is the envelope written for json and yaml exports.
type LinkExport struct {
	FetchedAt  time.Time               `json:"fetchedAt" yaml:"fetchedAt"`
	TotalLinks int                     `json:"totalLinks" yaml:"totalLinks"`
	Links      []model.ProcurementLink `json:"links" yaml:"links"`
}

// WriteLinks writes links to w in the given format.
func WriteLinks(w io.Writer, links []model.ProcurementLink, format string, fetchedAt time.Time) error {
	if links == nil {
		links = []model.ProcurementLink{}
	}
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		if err := enc.Encode(LinkExport{FetchedAt: fetchedAt, TotalLinks: len(links), Links: links}); err != nil {
			return eris.Wrap(err, "leadio: encode json")
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		defer enc.Close() //nolint:errcheck
		if err := enc.Encode(LinkExport{FetchedAt: fetchedAt, TotalLinks: len(links), Links: links}); err != nil {
			return eris.Wrap(err, "leadio: encode yaml")
		}
		return nil
	case FormatCSV:
		return writeLinksCSV(w, links)
	case FormatTable, "":
		return writeLinksTable(w, links)
	default:
		return eris.Errorf("leadio: unknown format %q", format)
	}
}

func writeLinksCSV(w io.Writer, links []model.ProcurementLink) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(linkColumns); err != nil {
		return eris.Wrap(err, "leadio: write csv header")
	}
	for _, l := range links {
		if err := cw.Write([]string{l.State, l.Capital, l.OfficialWebsite, l.ProcurementLink, boolCell(l.RequiresRegistration)}); err != nil {
			return eris.Wrap(err, "leadio: write csv row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "leadio: flush csv")
}

func writeLinksTable(w io.Writer, links []model.ProcurementLink) error {
	if len(links) == 0 {
		_, err := fmt.Fprintln(w, "No approved procurement links found.")
		return eris.Wrap(err, "leadio: write table")
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STATE\tCAPITAL\tOFFICIAL WEBSITE\tPROCUREMENT LINK")
	for _, l := range links {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", l.State, l.Capital, truncate(l.OfficialWebsite), truncate(l.ProcurementLink))
	}
	return eris.Wrap(tw.Flush(), "leadio: flush table")
}

func truncate(s string) string {
	if len(s) <= maxCellWidth {
		return s
	}
	return s[:maxCellWidth-3] + "..."
}

func boolCell(b *bool) string {
	if b == nil {
		return ""
	}
	return strconv.FormatBool(*b)
}
