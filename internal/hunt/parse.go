package hunt

import (
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-engine/internal/model"
)

// parseLeads decodes the JSON array of leads in a model reply. Code fences
// and prose around the array are ignored. When the reply was cut off
// mid-array the complete elements before the cut are returned with
// truncated set.
func parseLeads(text string) (leads []model.LeadPayload, truncated bool, err error) {
	body := stripFences(text)
	start := strings.Index(body, "[")
	if start < 0 {
		return nil, false, eris.New("hunt: no JSON array in response")
	}

	dec := json.NewDecoder(strings.NewReader(body[start:]))
	if _, err := dec.Token(); err != nil {
		return nil, false, eris.Wrap(err, "hunt: read array start")
	}

	leads = []model.LeadPayload{}
	for dec.More() {
		var p model.LeadPayload
		if err := dec.Decode(&p); err != nil {
			if !errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, false, eris.Wrap(err, "hunt: decode lead")
			}
			return leads, true, nil
		}
		leads = append(leads, p)
	}
	if _, err := dec.Token(); err != nil {
		return leads, true, nil
	}
	return leads, false, nil
}

func stripFences(text string) string {
	text = strings.TrimSpace(text)
	for _, fence := range []string{"```json", "```"} {
		if strings.HasPrefix(text, fence) {
			text = strings.TrimPrefix(text, fence)
			if idx := strings.LastIndex(text, "```"); idx >= 0 {
				text = text[:idx]
			}
			break
		}
	}
	return strings.TrimSpace(text)
}
