// Package ingest provides frame sources for the measurement pipeline:
// local video files and live cameras via OpenCV capture, plus a
// synthetic generator for tests and tooling. All sources implement
// wire.FrameSource and return wire.ErrEndOfStream when exhausted.
package ingest
