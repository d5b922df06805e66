// Package engine implements the per-request proxy algorithm: IP
// resolution, the reputation gate, route lookup, rate-limit admission,
// the plugin pipeline, upstream connect-and-forward, and protocol-upgrade
// splicing.
package engine

import (
	"io"
	"net"

	"github.com/rs/zerolog"
)

// Splice bidirectionally copies bytes between client and upstream until
// either direction reports EOF or an error, then closes both. preface
// carries any bytes the server already buffered from the client before
// hijacking the connection; they belong to the post-handshake stream and
// must reach upstream before anything else. No buffering beyond small
// transport reads is performed; both directions run concurrently.
func Splice(client, upstream net.Conn, preface []byte, logger zerolog.Logger) {
	defer client.Close()
	defer upstream.Close()

	if len(preface) > 0 {
		if _, err := upstream.Write(preface); err != nil {
			logger.Warn().Err(err).Msg("failed writing buffered client preface to upstream")
			return
		}
	}

	done := make(chan struct{}, 2)

	go func() {
		io.Copy(upstream, client)
		done <- struct{}{}
	}()
	go func() {
		io.Copy(client, upstream)
		done <- struct{}{}
	}()

	<-done
}
