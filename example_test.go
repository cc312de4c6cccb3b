package lazyrag_test

import (
	"context"
	"fmt"

	lazyrag "github.com/n-kats/lazy-rag"
	"github.com/n-kats/lazy-rag/pkg/backend/lexical"
)

// A two-stage pipeline: a broad lexical pass, then a second pass
// restricted to the documents the first one surfaced.
func Example() {
	docs := map[string]string{
		"go":    "go is a compiled language with goroutines",
		"py":    "python is an interpreted language",
		"redis": "redis is an in-memory data store",
	}
	source := lazyrag.SourceFunc(func(_ context.Context, docID string) (string, error) {
		body, ok := docs[docID]
		if !ok {
			return "", fmt.Errorf("unknown document %q", docID)
		}
		return body, nil
	})

	ctx := context.Background()

	broad, err := lexical.New("broad", lexical.WithSource(source))
	if err != nil {
		fmt.Println("new:", err)
		return
	}
	if err := broad.Ensure(ctx, []string{"go", "py", "redis"}, nil); err != nil {
		fmt.Println("ensure:", err)
		return
	}

	w := lazyrag.NewWorkflow()
	if err := w.Add(broad, "language"); err != nil {
		fmt.Println("add:", err)
		return
	}
	narrow, err := lexical.New("narrow", lexical.WithSource(source))
	if err != nil {
		fmt.Println("new:", err)
		return
	}
	if err := w.Add(narrow, "goroutines", lazyrag.WithFromNodes("broad"), lazyrag.WithTopK(1)); err != nil {
		fmt.Println("add:", err)
		return
	}

	outputs, err := w.Run(ctx)
	if err != nil {
		fmt.Println("run:", err)
		return
	}

	for _, hit := range outputs["narrow"].Hits {
		fmt.Println(hit.DocID)
	}
	// Output:
	// go
}
