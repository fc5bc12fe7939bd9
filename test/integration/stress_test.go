package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"sync"
	"testing"
	"time"
)

// Submits batches concurrently; each must finish with its own result.
func TestIntegration_ConcurrentSubmissions(t *testing.T) {
	u := waitReady(t)
	const n = 8
	client := &http.Client{Timeout: 5 * time.Second}
	files := make([][]byte, n)
	for i := range files {
		files[i] = workbook(t, fmt.Sprintf("stress-%d", i))
	}

	acks := make([]ack, n)
	errCh := make(chan error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			var body bytes.Buffer
			mw := multipart.NewWriter(&body)
			fw, _ := mw.CreateFormFile("excel_file", "products.xlsx")
			_, _ = fw.Write(files[i])
			_ = mw.Close()
			resp, err := client.Post(u+"/batches", mw.FormDataContentType(), &body)
			if err != nil {
				errCh <- err
				return
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusAccepted {
				errCh <- fmt.Errorf("expected 202, got %d", resp.StatusCode)
				return
			}
			if err := json.NewDecoder(resp.Body).Decode(&acks[i]); err != nil {
				errCh <- err
			}
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatal(err)
	}

	seen := map[string]bool{}
	for _, a := range acks {
		if seen[a.Batch.ID] {
			t.Fatalf("duplicate batch id %s", a.Batch.ID)
		}
		seen[a.Batch.ID] = true
		if st := waitDone(t, u, a); st != "completed" {
			t.Fatalf("batch %s ended %q", a.Batch.ID, st)
		}
	}
}
