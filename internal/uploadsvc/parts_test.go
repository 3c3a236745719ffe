package uploadsvc

import (
	"bytes"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
)

func formRequest(t *testing.T, build func(mw *multipart.Writer)) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	build(mw)
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/upload/", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestReadPartsSkipsPlainFields(t *testing.T) {
	req := formRequest(t, func(mw *multipart.Writer) {
		_ = mw.WriteField("note", "ignored")
		fw, _ := mw.CreateFormFile("files[]", "bundles%2Fa.bundle")
		_, _ = io.WriteString(fw, "abc")
	})
	parts, cleanup, err := readParts(req, 1<<10)
	defer cleanup()
	if err != nil {
		t.Fatal(err)
	}
	if len(parts) != 1 || parts[0].name != "bundles/a.bundle" || parts[0].size != 3 {
		t.Fatalf("parts = %+v", parts)
	}
	rc, err := parts[0].open()
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	if data, _ := io.ReadAll(rc); string(data) != "abc" {
		t.Fatalf("content = %q", data)
	}
}

func TestReadPartsRejectsDuplicatesAndEmptyForms(t *testing.T) {
	dup := formRequest(t, func(mw *multipart.Writer) {
		for i := 0; i < 2; i++ {
			fw, _ := mw.CreateFormFile("files[]", "a.bin")
			_, _ = io.WriteString(fw, "x")
		}
	})
	_, cleanup, err := readParts(dup, 1<<10)
	cleanup()
	if !errors.Is(err, ErrMalformedBody) {
		t.Fatalf("duplicate: err = %v", err)
	}

	empty := formRequest(t, func(mw *multipart.Writer) {
		_ = mw.WriteField("note", "only")
	})
	_, cleanup, err = readParts(empty, 1<<10)
	cleanup()
	if !errors.Is(err, ErrMalformedBody) {
		t.Fatalf("empty: err = %v", err)
	}
}
