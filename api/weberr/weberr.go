// Package weberr attaches HTTP responses and log fields to errors so handlers
// can return plain errors and leave rendering to the errors middleware.
package weberr

import "errors"

type Opt func(error) error

func Wrap(err error, opts ...Opt) error {
	for _, opt := range opts {
		err = opt(err)
	}
	return err
}

func WithResponse(body any, status int) Opt {
	return func(err error) error {
		return &responseError{error: err, body: body, status: status}
	}
}

func WithFields(fields map[string]any) Opt {
	return func(err error) error {
		return &fieldsError{error: err, fields: fields}
	}
}

// Response returns the outermost response attached to err.
func Response(err error) (body any, status int, ok bool) {
	var re *responseError
	if errors.As(err, &re) {
		return re.body, re.status, true
	}
	return nil, 0, false
}

// Fields merges every set of fields attached along err's chain; outer values win.
func Fields(err error) (map[string]any, bool) {
	var merged map[string]any
	for err != nil {
		if fe, ok := err.(*fieldsError); ok {
			if merged == nil {
				merged = make(map[string]any)
			}
			for k, v := range fe.fields {
				if _, set := merged[k]; !set {
					merged[k] = v
				}
			}
		}
		err = errors.Unwrap(err)
	}
	return merged, merged != nil
}

type responseError struct {
	error
	body   any
	status int
}

func (e *responseError) Unwrap() error { return e.error }

type fieldsError struct {
	error
	fields map[string]any
}

func (e *fieldsError) Unwrap() error { return e.error }
