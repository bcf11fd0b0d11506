package judge

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/hearthside/gigi-learning/internal/store"
)

// extractJSONObject returns the first balanced top-level JSON object in raw,
// tolerating surrounding prose and markdown fencing. Braces inside string
// literals are ignored.
func extractJSONObject(raw string) (string, error) {
	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return "", fmt.Errorf("no JSON object in response")
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return raw[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unbalanced JSON object in response")
}

// decodeObject extracts and unmarshals the first JSON object in the judge's
// raw text into dst, running the candidate through jsonrepair when a direct
// unmarshal fails.
func decodeObject(raw string, dst interface{}) error {
	candidate, err := extractJSONObject(raw)
	if err != nil {
		return err
	}
	if json.Unmarshal([]byte(candidate), dst) == nil {
		return nil
	}
	repaired, repairErr := jsonrepair.JSONRepair(candidate)
	if repairErr != nil {
		return fmt.Errorf("unparseable judge output: %w", repairErr)
	}
	if err := json.Unmarshal([]byte(repaired), dst); err != nil {
		return fmt.Errorf("unparseable judge output after repair: %w", err)
	}
	return nil
}

// parseScores turns raw judge text into a criterion-score map. Unknown keys
// are dropped; scores are clamped to [1,5].
func parseScores(raw string) (map[string]store.CriterionScore, error) {
	var decoded map[string]store.CriterionScore
	if err := decodeObject(raw, &decoded); err != nil {
		return nil, err
	}
	known := map[string]bool{
		store.CriterionAccuracy:      true,
		store.CriterionHelpfulness:   true,
		store.CriterionTone:          true,
		store.CriterionToolSelection: true,
		store.CriterionSafety:        true,
	}
	scores := make(map[string]store.CriterionScore)
	for name, cs := range decoded {
		name = strings.ToLower(strings.TrimSpace(name))
		if !known[name] {
			continue
		}
		if cs.Score < 1 {
			cs.Score = 1
		}
		if cs.Score > 5 {
			cs.Score = 5
		}
		scores[name] = cs
	}
	if len(scores) == 0 {
		return nil, fmt.Errorf("judge output contained no recognized criteria")
	}
	return scores, nil
}

// parseDiff turns raw comparator text into a DiffAnalysis. The difference
// score is clamped to [1,10].
func parseDiff(raw string) (*store.DiffAnalysis, error) {
	var analysis store.DiffAnalysis
	if err := decodeObject(raw, &analysis); err != nil {
		return nil, err
	}
	if analysis.DifferenceScore < 1 {
		analysis.DifferenceScore = 1
	}
	if analysis.DifferenceScore > 10 {
		analysis.DifferenceScore = 10
	}
	analysis.DifferenceType = strings.ToLower(strings.TrimSpace(analysis.DifferenceType))
	analysis.Correction = strings.TrimSpace(analysis.Correction)
	return &analysis, nil
}
