// Package process spawns extension processes and carries the extension
// protocol over two inherited pipes: fd 3 host to extension, fd 4
// extension to host. Each extension runs in its own process group so a
// kill also reaches any children it started.
package process
