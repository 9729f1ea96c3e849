package gemini

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/deusflow/tickerfeed/internal/news"
)

var validate = validator.New()

// ParseEntities extracts the JSON array from a model answer. Entries that
// fail validation are dropped; the rest are sorted by confidence.
func ParseEntities(raw string) ([]news.Entity, error) {
	body := cleanJSONBlock(raw)

	start := strings.Index(body, "[")
	end := strings.LastIndex(body, "]")
	if start < 0 || end <= start {
		return nil, errors.New("no JSON array in answer")
	}

	var entities []news.Entity
	if err := json.Unmarshal([]byte(body[start:end+1]), &entities); err != nil {
		return nil, fmt.Errorf("failed to decode entities: %w", err)
	}

	out := entities[:0]
	for _, e := range entities {
		e.Label = strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(e.Label), "$"))
		e.Name = strings.TrimSpace(e.Name)
		e.Explanation = strings.TrimSpace(e.Explanation)
		if err := validate.Struct(e); err != nil {
			continue
		}
		out = append(out, e)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	return out, nil
}

// cleanJSONBlock drops markdown code fences around a JSON answer.
func cleanJSONBlock(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if nl := strings.Index(s, "\n"); nl >= 0 {
			s = s[nl+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
