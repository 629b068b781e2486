package leads

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"LeadPulse/internal/models"
)

// ParseLeads parses a lead list CSV. The header must contain an "Email"
// column (case-insensitive); "Name", "Company" and "Title" columns are mapped
// onto the lead, everything else lands in Fields for template data.
//
// maxRows limits how many data rows are parsed (excluding header).
func ParseLeads(r io.Reader, maxRows int) ([]models.Lead, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	headers, err := reader.Read()
	if err != nil {
		return nil, err
	}
	if len(headers) == 0 {
		return nil, errors.New("csv header row is empty")
	}

	emailIdx := -1
	normalized := make([]string, len(headers))
	for i, h := range headers {
		h = strings.TrimSpace(h)
		normalized[i] = h
		if strings.EqualFold(h, "email") {
			emailIdx = i
		}
	}
	if emailIdx == -1 {
		return nil, errors.New("csv must contain an Email column")
	}

	if maxRows <= 0 {
		maxRows = 1000
	}

	out := make([]models.Lead, 0)
	for len(out) < maxRows {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(record) != len(headers) {
			// skip malformed row
			continue
		}

		email := strings.TrimSpace(record[emailIdx])
		if email == "" {
			continue
		}

		lead := models.Lead{
			Email:  email,
			Fields: make(map[string]string),
		}
		for i := range record {
			if i == emailIdx {
				continue
			}
			key := normalized[i]
			if key == "" {
				continue
			}
			value := strings.TrimSpace(record[i])
			switch {
			case strings.EqualFold(key, "name"):
				lead.Name = value
			case strings.EqualFold(key, "company"):
				lead.Company = value
			case strings.EqualFold(key, "title"):
				lead.Title = value
			default:
				lead.Fields[key] = value
			}
		}

		out = append(out, lead)
	}

	if len(out) == 0 {
		return nil, errors.New("csv must contain at least one data row")
	}

	return out, nil
}
