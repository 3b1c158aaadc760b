package storage

import (
	"sort"
	"strings"
	"sync"
)

// BlockList accumulates the blocks staged during a chunked upload and
// serializes them, in ascending offset order, as the XML body a block-list
// commit request expects. AddBlock is safe to call from multiple workers;
// a retried write at the same offset replaces the earlier entry rather
// than duplicating it. Prepare seals the list — AddBlock after Prepare is
// a programming error, not a runtime condition callers should recover
// from.
type BlockList struct {
	mu     sync.Mutex
	sealed bool
	blocks map[int64]Block
}

// NewBlockList returns an empty BlockList.
func NewBlockList() *BlockList {
	return &BlockList{blocks: make(map[int64]Block)}
}

// AddBlock records a block at byteOffset, replacing any block already
// staged at that offset, and returns its id. It panics if the list has
// already been sealed by Prepare.
func (l *BlockList) AddBlock(byteOffset int64) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sealed {
		panic("storage: cannot add block to a sealed block list")
	}

	block := Block{ByteOffset: byteOffset}
	l.blocks[byteOffset] = block

	return block.ID()
}

// Prepare seals the list and returns the XML commit body, blocks ordered
// by ascending byte offset.
func (l *BlockList) Prepare() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sealed = true

	offsets := make([]int64, 0, len(l.blocks))
	for offset := range l.blocks {
		offsets = append(offsets, offset)
	}

	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })

	lines := []string{`<?xml version="1.0" encoding="utf-8"?>`, "<BlockList>"}
	for _, offset := range offsets {
		lines = append(lines, "  "+l.blocks[offset].xmlElement())
	}

	lines = append(lines, "</BlockList>")

	return []byte(strings.Join(lines, "\n"))
}
