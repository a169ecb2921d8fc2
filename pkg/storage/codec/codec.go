// Package codec serializes the opaque `any` values the Storage
// Protocol passes around into bytes a real backend (Postgres, Redis)
// can persist, and back again into the same concrete Go type the
// caller wrote, which JSON can't do on its own once the static
// type information is gone. gob's interface encoding does, provided
// every concrete type that ever crosses the wire is registered once.
package codec

import (
	"bytes"
	"encoding/gob"
	"sync"

	"github.com/codeready-toolchain/jobrunner/pkg/model"
)

var registerOnce sync.Once

// init registers every concrete type the jobservice/render/coordinator
// layers write through the Storage Protocol. A type stored but never
// registered here fails to decode at read time, so new persisted
// shapes must be added alongside their first caller.
func init() {
	registerOnce.Do(func() {
		gob.Register(model.Job{})
		gob.Register(model.Interview{})
		gob.Register(model.Task{})
		gob.Register(model.TaskState{})
		gob.Register(model.TaskLastError{})
		gob.Register(model.TaskLocation{})
		gob.Register(model.Answer{})
		gob.Register(model.Survey{})
		gob.Register(model.TaskStatus(""))
		gob.Register(model.ErrorKind(""))
		gob.Register(model.InterviewState(""))
		gob.Register(model.JobState(""))
		gob.Register(model.ExecutionType(""))
		gob.Register(model.Scenario{})
		gob.Register(model.Agent{})
		gob.Register(model.ModelSpec{})
		gob.Register(model.Question{})
		gob.Register(model.BlobRef{})
		gob.Register(map[string]int{})
		gob.Register(map[string]any{})
		gob.Register(map[model.ErrorKind]int{})
		gob.Register([]any{})
		gob.Register(0)
		gob.Register(0.0)
		gob.Register(false)
		gob.Register("")
	})
}

// Encode gob-encodes v (wrapped as an interface{} so the concrete type
// tag rides along) into bytes suitable for a blob/bytea/string column.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode is Encode's inverse: it returns the original value with its
// original concrete type, ready for the caller's type assertion.
func Decode(data []byte) (any, error) {
	var v any
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
