// Package rag defines the document ingestion and question answering
// pipelines run by the orchestrator.
//
// Ingestion ("rag/ingest_pdf") has two steps:
//
//  1. load-and-chunk: reads the document, splits it into chunks and records
//     a content fingerprint. A missing or unreadable file fails the run.
//  2. embed-and-upsert: embeds every chunk and upserts the resulting points.
//     Point IDs derive from the source ID and chunk index, so ingesting the
//     same document twice overwrites rather than duplicates.
//
// Querying ("rag/query_pdf_ai") also has two steps:
//
//  1. embed-and-search: embeds the question and retrieves the closest chunks,
//     optionally restricted to one source.
//  2. answer: sends the retrieved context and the question to the answerer.
//     The answer is memoized, so retrying a run never pays for it twice.
//
// Ingestion is gated per source ID; queries are never deferred.
package rag
