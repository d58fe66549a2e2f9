// Package transfer implements single-file resumable FTP downloads and
// uploads with reconnect and retry support.
//
// Each call is a blocking, synchronous job intended to run either on the
// caller's goroutine or inside a background worker. An interrupted
// transfer resumes from the bytes already present on the receiving side,
// including partial files left behind by a previous process.
//
// The remote side is abstracted behind RemoteConn so tests can drive the
// retry and resume logic against an in-memory server; production code
// connects through github.com/jlaffaye/ftp.
package transfer
