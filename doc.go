// Package clamd provides a Go client for the clamd antivirus daemon's
// native socket protocol.
//
// The client speaks clamd's plaintext command protocol directly over a
// TCP or UNIX domain socket. Each command opens its own connection,
// sends a single request, reads the framed response, and closes the
// socket; there is no pooling and no session state, so a Client is safe
// for concurrent use from multiple goroutines.
//
// # Quick Start
//
//	client, err := clamd.NewClient("unix:///var/run/clamav/clamd.ctl")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	results, err := client.Scan(ctx, "/path/to/file.pdf")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, r := range results {
//	    fmt.Printf("%s: %s %s\n", r.Path, r.Status, r.Message)
//	}
//
// To scan data the daemon cannot read from disk, stream it with
// InStream:
//
//	result, err := client.InStream(ctx, file)
package clamd
