// Package secstore implements an encrypted secure store with a stdio-shaped
// file API.
//
// A secure store keeps files and directories encrypted at rest in a backend
// (a local directory, an S3 bucket, or memory for tests). All file content
// and all metadata (names, sizes, modes, timestamps) are encrypted and
// authenticated with AES-256-CTR and Poly1305-AES before they reach the
// backend. The master key is stored on the backend itself, wrapped by one or
// more password-derived keys (scrypt), so a store can be opened with any of
// its passwords.
//
// Access follows the open/use/close discipline of C stdio: Store.OpenFile
// returns an opaque *File handle with fopen-style modes ("r", "w", "a" and
// their "+" variants), Store.OpenDir returns an opaque *Dir iteration cursor.
// Both handle types are invalid after Close. File implements io.Reader and
// io.Writer, so fmt.Fprintf, fmt.Fscanf and the bufio helpers compose with
// it directly.
package secstore
