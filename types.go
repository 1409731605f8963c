package clamd

import "time"

// Status is the per-item outcome reported by the daemon.
type Status string

// Scan statuses as reported on the wire.
const (
	StatusOK    Status = "OK"
	StatusFound Status = "FOUND"
	StatusError Status = "ERROR"
)

// StreamPath is the path the daemon reports for data scanned via INSTREAM.
const StreamPath = "stream"

// ScanResult represents the result of scanning one file or stream.
type ScanResult struct {
	// Path is the scanned file path, or "stream" for INSTREAM scans.
	Path string
	// Status is StatusOK (clean), StatusFound (infected), or StatusError
	// (the daemon could not scan this item).
	Status Status
	// Message contains the signature name if infected, the daemon's error
	// description if the item errored, or is empty if clean.
	Message string
}

// IsInfected returns true if the scan found a virus.
func (r *ScanResult) IsInfected() bool {
	return r.Status == StatusFound
}

// IsClean returns true if the item is clean.
func (r *ScanResult) IsClean() bool {
	return r.Status == StatusOK
}

// IsError returns true if the daemon reported an error for this item.
func (r *ScanResult) IsError() bool {
	return r.Status == StatusError
}

// VersionInfo contains the daemon's version and signature database info.
type VersionInfo struct {
	// Version is the daemon version string, e.g. "0.103.9".
	Version string
	// Signatures is the number of loaded virus signatures.
	Signatures int
	// SignatureDate is the build date of the signature database.
	SignatureDate time.Time
}

// StatsResult holds the daemon's scan queue and memory statistics. The
// exact format is daemon-defined and subject to change between releases,
// so it is exposed verbatim.
type StatsResult struct {
	// Raw is the statistics text exactly as the daemon sent it.
	Raw string
}
