package integration

import (
	"net/http"
	"testing"
)

func TestIntegration_ValidationErrors(t *testing.T) {
	u := waitReady(t)

	t.Run("missing_file", func(t *testing.T) {
		resp := postUpload(t, u, nil, map[string]string{"model": "sonar"})
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", resp.StatusCode)
		}
	})

	t.Run("not_multipart", func(t *testing.T) {
		resp, err := http.Post(u+"/batches", "application/json", nil)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", resp.StatusCode)
		}
	})

	t.Run("unreadable_workbook", func(t *testing.T) {
		resp := postUpload(t, u, []byte("plain text"), nil)
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusAccepted {
			t.Fatalf("expected 202, got %d", resp.StatusCode)
		}
	})
}

func TestIntegration_UnknownBatch(t *testing.T) {
	u := waitReady(t)
	for _, path := range []string{"/batches/does-not-exist", "/batches/does-not-exist/result", "/batches/does-not-exist/events"} {
		resp, err := http.Get(u + path)
		if err != nil {
			t.Fatal(err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", path, resp.StatusCode)
		}
	}
}
