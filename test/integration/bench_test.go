package integration

import (
	"net/http"
	"testing"
)

// Benchmark for POST /batches; to run: go test -bench=. ./test/integration -run ^$
func BenchmarkSubmit(b *testing.B) {
	u := baseURL(b)
	file := workbook(b, "bench")
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		resp := postUpload(b, u, file, nil)
		if resp.StatusCode != http.StatusAccepted {
			b.Fatalf("expected 202, got %d", resp.StatusCode)
		}
		_ = resp.Body.Close()
	}
}
