package graphql

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"

	"github.com/alecthomas/assert/v2"

	"github.com/block/storefront/internal/log"
)

type part struct {
	filename string
	content  string
}

func readParts(t *testing.T, contentType string, body io.Reader) ([]string, map[string]part) {
	t.Helper()
	mediaType, params, err := mime.ParseMediaType(contentType)
	assert.NoError(t, err)
	assert.Equal(t, "multipart/form-data", mediaType)
	reader := multipart.NewReader(body, params["boundary"])
	var order []string
	parts := map[string]part{}
	for {
		p, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		assert.NoError(t, err)
		content, err := io.ReadAll(p)
		assert.NoError(t, err)
		order = append(order, p.FormName())
		parts[p.FormName()] = part{filename: p.FileName(), content: string(content)}
	}
	return order, parts
}

func TestEncodeMultipart(t *testing.T) {
	op := NewOperation(`mutation($title: String!, $image: Upload) { createProduct(title: $title, image: $image) { success } }`, Variables{
		"title": String("x"),
		"image": NewFile("a.png", strings.NewReader("\x89PNG bytes")),
	})
	encoded, err := EncodeMultipart(op)
	assert.NoError(t, err)
	assert.Equal(t, map[string][]string{"0": {"variables.image"}}, encoded.Map)

	order, parts := readParts(t, encoded.ContentType, encoded.Body)
	assert.Equal(t, []string{"operations", "map", "0"}, order)

	var operations struct {
		Query     string         `json:"query"`
		Variables map[string]any `json:"variables"`
	}
	assert.NoError(t, json.Unmarshal([]byte(parts["operations"].content), &operations))
	assert.Equal(t, op.Query(), operations.Query)
	assert.Equal(t, map[string]any{"title": "x", "image": nil}, operations.Variables)
	assert.Equal(t, `{"0":["variables.image"]}`, parts["map"].content)
	assert.Equal(t, part{filename: "a.png", content: "\x89PNG bytes"}, parts["0"])

	// The caller's operation is untouched.
	_, stillFile := op.Variables()["image"].(File)
	assert.True(t, stillFile)
}

func TestEncodeMultipartIndexesFilesInKeyOrder(t *testing.T) {
	encoded, err := EncodeMultipart(NewOperation(`mutation { upload }`, Variables{
		"thumbnail": NewFile("t.jpg", strings.NewReader("t")),
		"image":     NewFile("i.jpg", strings.NewReader("i")),
	}))
	assert.NoError(t, err)
	assert.Equal(t, map[string][]string{"0": {"variables.image"}, "1": {"variables.thumbnail"}}, encoded.Map)
	_, parts := readParts(t, encoded.ContentType, encoded.Body)
	assert.Equal(t, "i.jpg", parts["0"].filename)
	assert.Equal(t, "t.jpg", parts["1"].filename)
}

func TestEncodeMultipartErrors(t *testing.T) {
	_, err := EncodeMultipart(NewOperation(`mutation { x }`, Variables{"title": String("x")}))
	assert.IsError(t, err, ErrNoFiles)

	_, err = EncodeMultipart(NewOperation(`mutation { x }`, Variables{
		"input": Object{"image": NewFile("a.png", strings.NewReader(""))},
	}))
	assert.IsError(t, err, ErrNestedFile)
}

func TestMutateMultipartRequest(t *testing.T) {
	ctx := log.ContextWithNewDefaultLogger(context.Background())
	var contentType string
	var parts map[string]part
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		_, parts = readParts(t, contentType, r.Body)
		_, _ = io.WriteString(w, `{"data":{"createProduct":{"success":true}}}`)
	})
	data, err := client.MutateMultipart(ctx, `mutation($image: Upload) { createProduct(image: $image) { success } }`, Variables{
		"image": NewFile("a.png", strings.NewReader("png")),
	})
	assert.NoError(t, err)
	assert.Equal(t, `{"createProduct":{"success":true}}`, string(data))
	assert.True(t, strings.HasPrefix(contentType, "multipart/form-data; boundary="), contentType)
	assert.Equal(t, "png", parts["0"].content)
}
