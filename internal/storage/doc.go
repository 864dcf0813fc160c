package storage

// Package storage provides a minimal persistence layer for run archives.
//
// It currently supports:
//   - Digest run records (one per generation)
//   - Daily ingestion counter summaries (one per closed day)
