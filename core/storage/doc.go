// Package storage provides an abstraction layer for object storage services.
//
// It wraps the MinIO Go client behind the Client interface and builds the
// reconciler's archive on top of it: merge batch manifests are written under
// batches/<id>.json and audit run reports under runs/<id>.json. Archiving is
// best-effort; a failed upload is logged and never fails a commit or a run.
//
// # Client Interface
//
// The Client interface abstracts the underlying storage provider, making it easier
// to mock storage interactions for unit testing (as seen in core/storage/mocks).
//
// # Usage
//
//	client, err := storage.NewClient(config)
//	archive := storage.NewArchive(client, config.Bucket, logger)
//	archive.Store(ctx, storage.BatchKey(batch.ID), manifest)
package storage
