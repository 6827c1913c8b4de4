package graphql

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"strconv"
)

// MultipartBody is an operation encoded as a GraphQL multipart upload: an
// "operations" part, a "map" part, then one part per file.
type MultipartBody struct {
	// ContentType includes the boundary chosen by the multipart writer.
	ContentType string
	Body        *bytes.Buffer
	// Map is the index -> variable path mapping sent in the "map" part.
	Map map[string][]string
}

type upload struct {
	index string
	path  string
	file  File
}

// EncodeMultipart encodes op for upload. Top-level File variables are nulled
// in the "operations" part and sent as numbered parts in sorted variable
// order.
func EncodeMultipart(op Operation) (*MultipartBody, error) {
	vars := op.Variables()
	var uploads []upload
	for _, key := range vars.Keys() {
		switch value := vars[key].(type) {
		case File:
			uploads = append(uploads, upload{
				index: strconv.Itoa(len(uploads)),
				path:  "variables." + key,
				file:  value,
			})
			vars[key] = Null()
		case List, Object:
			if containsFile(value) {
				return nil, fmt.Errorf("%w: variables.%s", ErrNestedFile, key)
			}
		case Scalar:
		}
	}
	if len(uploads) == 0 {
		return nil, ErrNoFiles
	}

	operations, err := json.Marshal(wireOperation{Query: op.Query(), Variables: vars})
	if err != nil {
		return nil, fmt.Errorf("failed to encode operations: %w", err)
	}
	mapping := make(map[string][]string, len(uploads))
	for _, u := range uploads {
		mapping[u.index] = []string{u.path}
	}
	mapJSON, err := json.Marshal(mapping)
	if err != nil {
		return nil, fmt.Errorf("failed to encode map: %w", err)
	}

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	if err := w.WriteField("operations", string(operations)); err != nil {
		return nil, fmt.Errorf("failed to write operations part: %w", err)
	}
	if err := w.WriteField("map", string(mapJSON)); err != nil {
		return nil, fmt.Errorf("failed to write map part: %w", err)
	}
	for _, u := range uploads {
		part, err := w.CreateFormFile(u.index, u.file.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to create part for %s: %w", u.path, err)
		}
		if u.file.Reader != nil {
			if _, err := io.Copy(part, u.file.Reader); err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", u.file.Name, err)
			}
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish multipart body: %w", err)
	}
	return &MultipartBody{ContentType: w.FormDataContentType(), Body: body, Map: mapping}, nil
}

func containsFile(v Value) bool {
	switch v := v.(type) {
	case File:
		return true
	case List:
		for _, item := range v {
			if containsFile(item) {
				return true
			}
		}
	case Object:
		for _, item := range v {
			if containsFile(item) {
				return true
			}
		}
	case Scalar:
	}
	return false
}
