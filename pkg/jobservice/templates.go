package jobservice

import (
	"regexp"
)

var answerTemplateRe = regexp.MustCompile(`^\{\{\s*([A-Za-z0-9_]+)\.answer\s*\}\}$`)
var scenarioTemplateRe = regexp.MustCompile(`^\{\{\s*scenario\.([A-Za-z0-9_]+)\s*\}\}$`)

// ResolveQuestionOptions resolves templated question options:
// strings matching {{ name.answer }} substitute a prior answer, strings
// matching {{ scenario.attr }} substitute a scenario attribute, and the
// dict form {"from": template, "add": [...]} resolves "from" to a list
// and appends "add". A per-interview randomized permutation, if
// present, overrides the resolved list entirely.
func ResolveQuestionOptions(raw any, priorAnswers map[string]any, scenarioFields map[string]any, randomized []any) []any {
	if randomized != nil {
		return randomized
	}
	switch v := raw.(type) {
	case []any:
		out := make([]any, 0, len(v))
		for _, item := range v {
			out = append(out, resolveOne(item, priorAnswers, scenarioFields))
		}
		return out
	case map[string]any:
		from := resolveFrom(v["from"], priorAnswers, scenarioFields)
		if add, ok := v["add"].([]any); ok {
			from = append(from, add...)
		}
		return from
	default:
		return nil
	}
}

func resolveFrom(from any, priorAnswers, scenarioFields map[string]any) []any {
	switch v := from.(type) {
	case []any:
		out := make([]any, 0, len(v))
		for _, item := range v {
			out = append(out, resolveOne(item, priorAnswers, scenarioFields))
		}
		return out
	case string:
		if resolved := resolveOne(v, priorAnswers, scenarioFields); resolved != nil {
			if list, ok := resolved.([]any); ok {
				return list
			}
		}
		return nil
	default:
		return nil
	}
}

func resolveOne(item any, priorAnswers, scenarioFields map[string]any) any {
	s, ok := item.(string)
	if !ok {
		return item
	}
	if m := answerTemplateRe.FindStringSubmatch(s); m != nil {
		if v, ok := priorAnswers[m[1]]; ok {
			return v
		}
		return nil
	}
	if m := scenarioTemplateRe.FindStringSubmatch(s); m != nil {
		if v, ok := scenarioFields[m[1]]; ok {
			return v
		}
		return nil
	}
	return s
}
