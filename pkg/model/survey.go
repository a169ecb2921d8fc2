package model

// Question is one survey item. QuestionOptions may be a plain list of
// strings or a template dict ({"from": ..., "add": [...]}); both shapes
// are preserved as-is and resolved at render/submit time.
type Question struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Index           int            `json:"index"`
	Text            string         `json:"text"`
	QuestionType    string         `json:"question_type"`
	QuestionOptions any            `json:"question_options,omitempty"`
	DirectAnswer    bool           `json:"direct_answer,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// Scenario is a bag of named fields substituted into rendered prompts.
// Any field shaped like a FileStore object (base64_string/mime_type/suffix)
// is offloaded to blob storage at submit time and replaced with a
// BlobRef sentinel.
type Scenario struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

// BlobRef is the inline sentinel left behind when a FileStore-shaped
// scenario field is moved to blob storage.
type BlobRef struct {
	Sentinel string `json:"blob_ref"`
	Key      string `json:"key"`
	MimeType string `json:"mime_type,omitempty"`
	Suffix   string `json:"suffix,omitempty"`
}

// IsFileStoreShape reports whether v looks like a FileStore payload:
// a map carrying base64_string, mime_type, and suffix keys.
func IsFileStoreShape(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	_, hasB64 := m["base64_string"]
	_, hasMime := m["mime_type"]
	_, hasSuffix := m["suffix"]
	if hasB64 && hasMime && hasSuffix {
		return m, true
	}
	return nil, false
}

// Agent carries traits substituted into rendered prompts and an optional
// direct-answer capability flag for AGENT_DIRECT tasks.
type Agent struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Traits       map[string]any `json:"traits"`
	DirectAnswer bool           `json:"direct_answer,omitempty"`
}

// ModelSpec identifies a target LLM and its invocation parameters.
type ModelSpec struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Service    string         `json:"service"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// Survey bundles the ordered question list with its memory plan and
// the names of questions whose options are randomized. The question DAG
// and the rule collection are not part of it: they travel separately
// (QuestionIndexDAG, and jobservice.RuleCollection).
type Survey struct {
	ID                   string              `json:"id"`
	Questions            []Question          `json:"questions"`
	MemoryPlan           map[string][]string `json:"memory_plan"`
	QuestionsToRandomize []string            `json:"questions_to_randomize,omitempty"`
}

// QuestionIndexDAG maps a question index to the set of prerequisite
// question indices, as produced by the survey capability.
type QuestionIndexDAG map[int][]int

// QuestionNameDAG maps a question name to the set of prerequisite
// question names. This is the form persisted on the Job.
type QuestionNameDAG map[string][]string

// QuestionIndex returns the position of name in the survey's ordered
// question list, or -1 if absent.
func (s *Survey) QuestionIndex(name string) int {
	for _, q := range s.Questions {
		if q.Name == name {
			return q.Index
		}
	}
	return -1
}

// QuestionByName looks up a question by name.
func (s *Survey) QuestionByName(name string) (Question, bool) {
	for _, q := range s.Questions {
		if q.Name == name {
			return q, true
		}
	}
	return Question{}, false
}
