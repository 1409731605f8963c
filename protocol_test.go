package clamd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScanLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		want ScanResult
	}{
		{
			name: "clean",
			line: "/tmp/file: OK",
			want: ScanResult{Path: "/tmp/file", Status: StatusOK},
		},
		{
			name: "infected",
			line: "/tmp/file: Eicar-Test-Signature FOUND",
			want: ScanResult{Path: "/tmp/file", Status: StatusFound, Message: "Eicar-Test-Signature"},
		},
		{
			name: "infected multi word signature",
			line: "/path/to/file2: Virus desc FOUND",
			want: ScanResult{Path: "/path/to/file2", Status: StatusFound, Message: "Virus desc"},
		},
		{
			name: "item error",
			line: "/path/to/file3: File path check failure: No such file or directory. ERROR",
			want: ScanResult{
				Path:    "/path/to/file3",
				Status:  StatusError,
				Message: "File path check failure: No such file or directory.",
			},
		},
		{
			name: "bare statuses without reason",
			line: "/tmp/file: FOUND",
			want: ScanResult{Path: "/tmp/file", Status: StatusFound},
		},
		{
			name: "bare error without reason",
			line: "/tmp/file: ERROR",
			want: ScanResult{Path: "/tmp/file", Status: StatusError},
		},
		{
			name: "stream result",
			line: "stream: OK",
			want: ScanResult{Path: StreamPath, Status: StatusOK},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseScanLine(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// The path portion ends at the first ": ", so a path containing the
// separator cannot be parsed unambiguously and fails as a protocol
// error rather than producing a wrong result. Known limitation.
func TestParseScanLineColonInPath(t *testing.T) {
	_, err := parseScanLine("/path/with: colon/file: OK")
	require.Error(t, err)
	assert.True(t, IsProtocolError(err), "expected protocol error, got %v", err)
}

func TestParseScanLineMalformed(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"no separator", "garbage without separator"},
		{"unknown status", "/tmp/file: MAYBE"},
		{"empty line", ""},
		{"status in wrong position", "OK: /tmp/file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseScanLine(tt.line)
			require.Error(t, err)
			assert.True(t, IsProtocolError(err), "expected protocol error, got %v", err)

			var e *Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, tt.line, e.Raw, "protocol error must carry the offending line")
		})
	}
}

func TestParseScanResponse(t *testing.T) {
	resp := "/path/to/file: OK\n" +
		"/path/to/file2: Virus desc FOUND\n" +
		"/path/to/file3: File path check failure: No such file or directory. ERROR"

	results, err := parseScanResponse(resp, TerminateNewline)
	require.NoError(t, err)

	require.Len(t, results, 3)
	assert.Equal(t, ScanResult{Path: "/path/to/file", Status: StatusOK}, results[0])
	assert.Equal(t, ScanResult{Path: "/path/to/file2", Status: StatusFound, Message: "Virus desc"}, results[1])
	assert.Equal(t, ScanResult{
		Path:    "/path/to/file3",
		Status:  StatusError,
		Message: "File path check failure: No such file or directory.",
	}, results[2])

	assert.True(t, results[1].IsInfected())
	assert.True(t, results[0].IsClean())
	assert.True(t, results[2].IsError())
}

func TestParseScanResponseNullTerminated(t *testing.T) {
	resp := "/a: OK\x00/b: Eicar-Test-Signature FOUND"

	results, err := parseScanResponse(resp, TerminateNull)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "/b", results[1].Path)
	assert.Equal(t, "Eicar-Test-Signature", results[1].Message)
}

func TestParseScanResponseBadLine(t *testing.T) {
	_, err := parseScanResponse("/a: OK\nnot a scan line", TerminateNewline)
	require.Error(t, err)
	assert.True(t, IsProtocolError(err))
}

func TestParseVersion(t *testing.T) {
	info, err := parseVersion("ClamAV 0.103.9/27065/Wed Oct 18 09:49:14 2023")
	require.NoError(t, err)

	assert.Equal(t, "0.103.9", info.Version)
	assert.Equal(t, 27065, info.Signatures)
	want := time.Date(2023, time.October, 18, 9, 49, 14, 0, time.UTC)
	assert.True(t, info.SignatureDate.Equal(want), "SignatureDate = %v, want %v", info.SignatureDate, want)
}

func TestParseVersionMalformed(t *testing.T) {
	tests := []struct {
		name string
		resp string
	}{
		{"no signature database", "ClamAV 0.103.9"},
		{"bad signature count", "ClamAV 0.103.9/lots/Wed Oct 18 09:49:14 2023"},
		{"bad date", "ClamAV 0.103.9/27065/yesterday"},
		{"too many fields", "ClamAV 0.103.9/27065/Wed Oct 18 09:49:14 2023/extra"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseVersion(tt.resp)
			require.Error(t, err)
			assert.True(t, IsProtocolError(err), "expected protocol error, got %v", err)

			var e *Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, tt.resp, e.Raw)
		})
	}
}

func TestCheckCommandReply(t *testing.T) {
	require.NoError(t, checkCommandReply("PING", "PONG"))

	err := checkCommandReply("FOO", "UNKNOWN COMMAND")
	require.Error(t, err)
	assert.True(t, IsDaemonError(err))

	err = checkCommandReply("PING", "COMMAND READ TIMED OUT")
	require.Error(t, err)
	assert.True(t, IsDaemonError(err))
}

func TestCheckErrorReply(t *testing.T) {
	require.NoError(t, checkErrorReply("PING", "PONG"))

	err := checkErrorReply("RELOAD", "Reason ERROR")
	require.Error(t, err)
	assert.True(t, IsDaemonError(err))
	assert.Contains(t, err.Error(), "Reason")

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "Reason ERROR", e.Raw)

	err = checkErrorReply("RELOAD", "ERROR")
	require.Error(t, err)
	assert.True(t, IsDaemonError(err))
}
