// Package cachekey computes the deterministic cache key used to dedupe
// identical LLM calls across runs. It hashes a canonical JSON encoding
// of the tuple that determines the response.
package cachekey

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// tuple is the ordered, deterministically-marshaled input to the hash.
// Iteration participates so multi-iteration jobs never share an entry.
type tuple struct {
	ModelName       string         `json:"model_name"`
	ModelParameters map[string]any `json:"model_parameters"`
	SystemPrompt    string         `json:"system_prompt"`
	UserPrompt      string         `json:"user_prompt"`
	Iteration       int            `json:"iteration"`
}

// Compute returns the hex-encoded SHA-256 digest of the canonicalized
// tuple (model_name, model_parameters, system_prompt, user_prompt,
// iteration).
func Compute(modelName string, modelParameters map[string]any, systemPrompt, userPrompt string, iteration int) string {
	t := tuple{
		ModelName:       modelName,
		ModelParameters: canonicalize(modelParameters),
		SystemPrompt:    systemPrompt,
		UserPrompt:      userPrompt,
		Iteration:       iteration,
	}
	// json.Marshal writes the keys of string-keyed maps in sorted order,
	// so the digest does not depend on the order in which the parameters
	// map was built.
	b, _ := json.Marshal(t)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// canonicalize returns a copy of v, recursing into nested
// map[string]any and []any values; values of any other type, including
// maps of other concrete types, are copied through unchanged.
func canonicalize(v map[string]any) map[string]any {
	if v == nil {
		return nil
	}
	out := make(map[string]any, len(v))
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out[k] = canonicalizeValue(v[k])
	}
	return out
}

func canonicalizeValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return canonicalize(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = canonicalizeValue(e)
		}
		return out
	default:
		return x
	}
}
