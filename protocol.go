package clamd

import (
	"strconv"
	"strings"
	"time"
)

// Command-level daemon replies.
const (
	respPong           = "PONG"
	respReloading      = "RELOADING"
	respUnknownCommand = "UNKNOWN COMMAND"
	respReadTimedOut   = "COMMAND READ TIMED OUT"
	respStreamLimit    = "INSTREAM size limit exceeded"
)

const (
	suffixFound = " FOUND"
	suffixError = " ERROR"
)

// checkCommandReply inspects a response for replies the daemon can send
// to any command: UNKNOWN COMMAND and COMMAND READ TIMED OUT.
func checkCommandReply(cmd, resp string) error {
	switch resp {
	case respUnknownCommand:
		return NewDaemonError("daemon does not know command "+cmd, resp)
	case respReadTimedOut:
		return NewDaemonError("daemon timed out reading command "+cmd, resp)
	}
	return nil
}

// checkErrorReply turns a trailing-ERROR reply into a daemon error. Scan
// commands skip this check: their per-item ERROR lines are result
// values, not failures.
func checkErrorReply(cmd, resp string) error {
	if resp == string(StatusError) || strings.HasSuffix(resp, suffixError) {
		reason := strings.TrimSpace(strings.TrimSuffix(resp, string(StatusError)))
		return NewDaemonError(cmd+" failed: "+reason, resp)
	}
	return nil
}

// parseScanLine parses one "<path>: <result>" response line. The path
// portion ends at the first ": " separator, matching the daemon's own
// ambiguity for paths containing ": ".
func parseScanLine(line string) (ScanResult, error) {
	idx := strings.Index(line, ": ")
	if idx < 0 {
		return ScanResult{}, NewProtocolError("malformed scan result line", line)
	}
	path, rest := line[:idx], line[idx+2:]

	switch {
	case rest == string(StatusOK):
		return ScanResult{Path: path, Status: StatusOK}, nil
	case rest == string(StatusFound):
		return ScanResult{Path: path, Status: StatusFound}, nil
	case rest == string(StatusError):
		return ScanResult{Path: path, Status: StatusError}, nil
	case strings.HasSuffix(rest, suffixFound):
		return ScanResult{
			Path:    path,
			Status:  StatusFound,
			Message: strings.TrimSuffix(rest, suffixFound),
		}, nil
	case strings.HasSuffix(rest, suffixError):
		return ScanResult{
			Path:    path,
			Status:  StatusError,
			Message: strings.TrimSuffix(rest, suffixError),
		}, nil
	}
	return ScanResult{}, NewProtocolError("unrecognized scan status", line)
}

// parseScanResponse splits a scan response into lines on the terminator
// and parses each one. Scan commands against a directory return one line
// per file.
func parseScanResponse(resp string, t LineTerminator) ([]ScanResult, error) {
	lines := strings.Split(resp, t.cutset())
	results := make([]ScanResult, 0, len(lines))
	for _, line := range lines {
		r, err := parseScanLine(line)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, nil
}

// versionDateLayout matches clamd's signature database date, e.g.
// "Wed Oct 18 09:49:14 2023".
const versionDateLayout = time.ANSIC

// parseVersion parses "ClamAV <ver>/<sigs>/<date>". A daemon without a
// loaded signature database answers with the bare version string, which
// is reported as a protocol error rather than a partial result.
func parseVersion(resp string) (*VersionInfo, error) {
	parts := strings.Split(resp, "/")
	if len(parts) != 3 {
		return nil, NewProtocolError("malformed VERSION response", resp)
	}

	sigs, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, NewProtocolError("malformed signature count in VERSION response", resp)
	}

	date, err := time.Parse(versionDateLayout, parts[2])
	if err != nil {
		return nil, NewProtocolError("malformed signature date in VERSION response", resp)
	}

	return &VersionInfo{
		Version:       strings.TrimPrefix(parts[0], "ClamAV "),
		Signatures:    sigs,
		SignatureDate: date,
	}, nil
}
