package coursemind

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// --- Mocks ---

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, _ string) (EmbeddingResult, error) {
	return EmbeddingResult{Embedding: []float32{1, 0, 0}, TotalTokens: 3}, nil
}

type fakeCompleter struct {
	lastPrompt string
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	f.lastPrompt = prompt
	return "Gradient descent minimizes loss iteratively.\nFollow-up questions: [\"What is a learning rate?\"]", nil
}

func lectureText() string {
	words := make([]string, 40)
	for i := range words {
		words[i] = "gradient"
	}
	return "Chapter 1: Optimization\n" + strings.Join(words, " ")
}

func newTestClient(t *testing.T, opts ...Option) *Client {
	t.Helper()
	base := []Option{
		WithChunking(50, 10),
		WithWorkers(1),
	}
	client, err := New(context.Background(), append(base, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func ingestLecture(t *testing.T, client *Client) IngestionJob {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	job, err := client.UploadDocument(ctx, 1, "lecture.txt", []byte(lectureText()))
	if err != nil {
		t.Fatalf("UploadDocument: %v", err)
	}
	job, err = client.WaitForIngestion(ctx, job.ID, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("WaitForIngestion: %v", err)
	}
	return job
}

func TestClientRoundTrip(t *testing.T) {
	completer := &fakeCompleter{}
	client := newTestClient(t, WithEmbedder(fakeEmbedder{}), WithCompleter(completer))
	ctx := context.Background()

	if err := client.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	job := ingestLecture(t, client)
	if job.Status != StatusSuccess {
		t.Fatalf("job = %+v, want SUCCESS", job)
	}
	if job.Result == nil || job.Result.ChunksCreated == 0 {
		t.Fatalf("result = %+v", job.Result)
	}

	answer, err := client.Query(ctx, QueryRequest{Query: "what is gradient descent", WithCitations: true})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if !strings.Contains(answer.Text, "Gradient descent minimizes") {
		t.Errorf("answer = %q", answer.Text)
	}
	if len(answer.Sources) == 0 {
		t.Fatal("no sources returned")
	}
	if len(answer.Citations) == 0 {
		t.Error("citations requested but missing")
	}
	if len(answer.FollowUps) != 1 || answer.FollowUps[0] != "What is a learning rate?" {
		t.Errorf("follow-ups = %v", answer.FollowUps)
	}
	if !strings.Contains(completer.lastPrompt, "gradient") {
		t.Error("prompt does not carry retrieved content")
	}

	stats, err := client.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Documents != 1 || stats.Entries != job.Result.ChunksCreated {
		t.Errorf("stats = %+v", stats)
	}
}

func TestClientUnsupportedFormat(t *testing.T) {
	client := newTestClient(t, WithEmbedder(fakeEmbedder{}))

	_, err := client.UploadDocument(context.Background(), 1, "book.epub", []byte("x"))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestClientWithoutEmbedderFailsIngestion(t *testing.T) {
	client := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	job, err := client.UploadDocument(ctx, 1, "lecture.txt", []byte(lectureText()))
	if err != nil {
		t.Fatalf("UploadDocument: %v", err)
	}
	job, err = client.WaitForIngestion(ctx, job.ID, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("WaitForIngestion: %v", err)
	}
	if job.Status != StatusFailure {
		t.Fatalf("status = %s, want FAILURE without an embedder", job.Status)
	}
	if !strings.Contains(job.Error, "embedder not configured") {
		t.Errorf("error = %q", job.Error)
	}
}

func TestClientWithoutCompleterDegrades(t *testing.T) {
	client := newTestClient(t, WithEmbedder(fakeEmbedder{}))

	if job := ingestLecture(t, client); job.Status != StatusSuccess {
		t.Fatalf("job = %+v", job)
	}

	answer, err := client.Query(context.Background(), QueryRequest{Query: "gradient"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if !answer.Degraded {
		t.Error("answer not marked degraded without a completer")
	}
	if len(answer.Sources) == 0 {
		t.Error("degraded answer missing sources")
	}
}

func TestClientDeleteDocument(t *testing.T) {
	client := newTestClient(t, WithEmbedder(fakeEmbedder{}))
	ctx := context.Background()

	job := ingestLecture(t, client)
	if job.Status != StatusSuccess {
		t.Fatalf("job = %+v", job)
	}

	if err := client.DeleteDocument(ctx, job.DocumentID); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	stats, err := client.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Entries != 0 {
		t.Errorf("entries after delete = %d, want 0", stats.Entries)
	}
}

func TestClientIngestionNotFound(t *testing.T) {
	client := newTestClient(t, WithEmbedder(fakeEmbedder{}))

	_, err := client.Ingestion(context.Background(), "no-such-job")
	if !errors.Is(err, ErrJobNotFound) {
		t.Errorf("error = %v, want ErrJobNotFound", err)
	}
}
