// Package crawler implements the category crawl pipeline for the registry
// crawler: pagination discovery, bounded listing fan-out, per-record
// dispatch, and the shared types, errors, and interfaces the fetcher,
// extractor, downloader, and sink packages plug into.
package crawler
