package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"uniid/internal/identity/models"
	ustrings "uniid/pkg/platform/strings"
)

const maxBodyBytes = 1 << 20

type createResponse struct {
	ID string `json:"id"`
}

type listResponse struct {
	Identities []*models.Identity `json:"identities"`
}

type historyResponse struct {
	Entries []models.AuditEntry `json:"entries"`
}

type transitionsResponse struct {
	Transitions []models.TransitionOption `json:"transitions"`
}

type searchRequest struct {
	Query      string   `json:"query"`
	Types      []string `json:"types"`
	Statuses   []string `json:"statuses"`
	Year       string   `json:"year"`
	Department string   `json:"department"`
}

func (r searchRequest) filter() models.SearchFilter {
	f := models.SearchFilter{
		Query:      r.Query,
		Year:       r.Year,
		Department: r.Department,
	}
	for _, t := range ustrings.DedupeTrimmed(r.Types) {
		f.Types = append(f.Types, models.Type(t))
	}
	for _, s := range ustrings.DedupeTrimmed(r.Statuses) {
		f.Statuses = append(f.Statuses, models.Status(s))
	}
	return f
}

type checkTransitionRequest struct {
	Current     string `json:"current"`
	Target      string `json:"target"`
	StatusSince string `json:"status_since"`
}

type checkTransitionResponse struct {
	Allowed bool `json:"allowed"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty body")
		}
		return err
	}
	return nil
}

// proposalFromJSON flattens an edit body into field values. Form posts
// carry text, but JSON clients send years and hours as numbers; null
// means "not submitted".
func proposalFromJSON(raw map[string]any) (map[string]string, error) {
	proposed := make(map[string]string, len(raw))
	for field, v := range raw {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			proposed[field] = val
		case float64:
			proposed[field] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			proposed[field] = strconv.FormatBool(val)
		default:
			return nil, fmt.Errorf("field %q must be a scalar", field)
		}
	}
	return proposed, nil
}
