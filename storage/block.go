// Package storage implements the chunked upload/download endpoints that
// plug into chunkio.Manager: a block-list-backed Destination for staging
// and committing PUT-based uploads, and a ranged-GET Source for downloads,
// both addressed through short-lived signed URLs.
package storage

import (
	"encoding/base64"
	"fmt"
)

// Block identifies one staged block by its byte offset within the
// transfer. ID formats the offset as a zero-padded 32-digit decimal string
// and base64-encodes it, matching the block-id scheme storage providers
// expect for a PUT block-list commit.
type Block struct {
	ByteOffset int64
}

// ID returns the block's base64-encoded block id.
func (b Block) ID() string {
	index := fmt.Sprintf("%032d", b.ByteOffset)
	return base64.StdEncoding.EncodeToString([]byte(index))
}

// xmlElement renders the block as the <Latest> element a block-list commit
// body expects.
func (b Block) xmlElement() string {
	return fmt.Sprintf("<Latest>%s</Latest>", b.ID())
}
