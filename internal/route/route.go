// Package route builds and parses navigation paths from "{param}" templates.
package route

import (
	"fmt"

	"github.com/yosida95/uritemplate/v3"
)

// Param names understood by review paths.
const (
	ParamProjectID    = "projectId"
	ParamBatchID      = "batchId"
	ParamSubmissionID = "submissionId"
)

// DefaultSubmissionPath is the review page template used when none is configured.
const DefaultSubmissionPath = "/projects/{projectId}/batches/{batchId}/submissions/{submissionId}"

// Params maps template variable names to values.
type Params map[string]string

// Build substitutes params into template. Variables without a value expand to
// nothing.
func Build(template string, params Params) (string, error) {
	tmpl, err := uritemplate.New(template)
	if err != nil {
		return "", fmt.Errorf("parse path template %q: %w", template, err)
	}

	vals := uritemplate.Values{}
	for k, v := range params {
		if v == "" {
			continue
		}
		vals.Set(k, uritemplate.String(v))
	}

	path, err := tmpl.Expand(vals)
	if err != nil {
		return "", fmt.Errorf("expand path template %q: %w", template, err)
	}
	return path, nil
}

// Match extracts params from path. ok is false when path does not fit the template.
func Match(template, path string) (Params, bool) {
	tmpl, err := uritemplate.New(template)
	if err != nil {
		return nil, false
	}

	vals := tmpl.Match(path)
	if vals == nil {
		return nil, false
	}

	out := Params{}
	for _, name := range tmpl.Varnames() {
		if v := vals.Get(name); len(v.V) > 0 {
			out[name] = v.V[0]
		}
	}
	return out, true
}
