// Package coursemind provides an embeddable Go client for the coursemind
// ingestion and retrieval core: upload course documents, track their
// ingestion jobs, and ask grounded questions over the indexed content,
// all in-process and without running the HTTP server.
//
//	client, _ := coursemind.New(ctx,
//	    coursemind.WithEmbedder(myEmbedder),
//	    coursemind.WithCompleter(myCompleter),
//	)
//	defer client.Close()
//
//	job, _ := client.UploadDocument(ctx, courseID, "lecture-03.pdf", data)
//	job, _ = client.WaitForIngestion(ctx, job.ID, 0)
//
//	answer, _ := client.Query(ctx, coursemind.QueryRequest{
//	    Query:  "what is gradient descent",
//	    Hybrid: true,
//	})
//
// The client keeps jobs and the embedding cache in memory by default; pass
// WithRedis to share them across processes.
package coursemind
