// Package distribution implements the stripe policies that map a logical
// byte range of a distributed object onto per-server (index, local_length,
// local_offset, block_id) tuples: round-robin, single-server and weighted.
package distribution

import (
	"fmt"
	"math"
)

// Stripe is one emitted tuple: the server to contact, the slice of the
// logical range that lands on it, and the block number it belongs to.
type Stripe struct {
	ServerIndex int
	LocalLength uint64
	LocalOffset uint64
	BlockID     uint64
}

// Distribution maps a (length, offset) byte range onto a sequence of
// Stripes. Reset must be called before the first Next. Next returns
// ok=false once the range is exhausted.
type Distribution interface {
	Reset(length, offset uint64) error
	Next() (Stripe, bool)

	// Type identifies the concrete policy for serialization.
	Type() string
}

// DefaultBlockSize is used by policies that don't override it, matching the
// commonly configured 4 MiB stripe size.
const DefaultBlockSize = 4 * 1024 * 1024

// RoundRobin cycles through server_count servers, block_size bytes at a
// time, starting on start_index.
type RoundRobin struct {
	ServerCount int
	StartIndex  int
	BlockSize   uint64

	offset    uint64
	remaining uint64
}

// NewRoundRobin returns a RoundRobin policy. blockSize<=0 falls back to
// DefaultBlockSize.
func NewRoundRobin(serverCount, startIndex int, blockSize uint64) (*RoundRobin, error) {
	if serverCount <= 0 {
		return nil, fmt.Errorf("distribution: server_count must be positive")
	}
	if blockSize == 0 {
		blockSize = DefaultBlockSize
	}
	return &RoundRobin{ServerCount: serverCount, StartIndex: startIndex, BlockSize: blockSize}, nil
}

func (r *RoundRobin) Type() string { return "round-robin" }

func (r *RoundRobin) Reset(length, offset uint64) error {
	if r.BlockSize == 0 {
		return fmt.Errorf("distribution: block_size must be >= 1")
	}
	if offset > math.MaxUint64-length {
		return fmt.Errorf("distribution: offset+length overflows")
	}
	r.offset = offset
	r.remaining = length
	return nil
}

func (r *RoundRobin) Next() (Stripe, bool) {
	if r.remaining == 0 {
		return Stripe{}, false
	}
	block := r.offset / r.BlockSize
	server := (r.StartIndex + int(block%uint64(r.ServerCount))) % r.ServerCount
	interior := r.offset % r.BlockSize
	avail := r.BlockSize - interior
	if avail > r.remaining {
		avail = r.remaining
	}
	s := Stripe{ServerIndex: server, LocalLength: avail, LocalOffset: r.offset, BlockID: block}
	r.offset += avail
	r.remaining -= avail
	return s, true
}

// SingleServer routes the entire range to one fixed server index.
type SingleServer struct {
	Index int

	length, offset uint64
	done           bool
}

// NewSingleServer returns a SingleServer policy.
func NewSingleServer(index int) *SingleServer {
	return &SingleServer{Index: index}
}

func (s *SingleServer) Type() string { return "single-server" }

func (s *SingleServer) Reset(length, offset uint64) error {
	if offset > math.MaxUint64-length {
		return fmt.Errorf("distribution: offset+length overflows")
	}
	s.length = length
	s.offset = offset
	s.done = false
	return nil
}

func (s *SingleServer) Next() (Stripe, bool) {
	if s.done || s.length == 0 {
		return Stripe{}, false
	}
	s.done = true
	return Stripe{ServerIndex: s.Index, LocalLength: s.length, LocalOffset: s.offset, BlockID: 0}, true
}

// Weighted distributes a cycle of W = sum(weights) blocks across servers,
// with server i occupying w_i consecutive blocks in the cycle, using the
// same block arithmetic as RoundRobin before mapping through the weights.
type Weighted struct {
	Weights   []uint64
	BlockSize uint64

	total     uint64
	prefix    []uint64
	offset    uint64
	remaining uint64
}

// NewWeighted returns a Weighted policy. blockSize<=0 falls back to
// DefaultBlockSize. Weights must be non-negative and sum to > 0.
func NewWeighted(weights []uint64, blockSize uint64) (*Weighted, error) {
	if len(weights) == 0 {
		return nil, fmt.Errorf("distribution: weighted requires at least one server")
	}
	if blockSize == 0 {
		blockSize = DefaultBlockSize
	}
	var total uint64
	prefix := make([]uint64, len(weights))
	for i, w := range weights {
		total += w
		prefix[i] = total
	}
	if total == 0 {
		return nil, fmt.Errorf("distribution: weighted total weight must be > 0")
	}
	return &Weighted{Weights: weights, BlockSize: blockSize, total: total, prefix: prefix}, nil
}

func (w *Weighted) Type() string { return "weighted" }

func (w *Weighted) Reset(length, offset uint64) error {
	if w.BlockSize == 0 {
		return fmt.Errorf("distribution: block_size must be >= 1")
	}
	if offset > math.MaxUint64-length {
		return fmt.Errorf("distribution: offset+length overflows")
	}
	w.offset = offset
	w.remaining = length
	return nil
}

func (w *Weighted) serverForCycleBlock(cycleBlock uint64) int {
	for i, p := range w.prefix {
		if p > cycleBlock {
			return i
		}
	}
	return len(w.prefix) - 1
}

func (w *Weighted) Next() (Stripe, bool) {
	if w.remaining == 0 {
		return Stripe{}, false
	}
	block := w.offset / w.BlockSize
	cycleBlock := block % w.total
	server := w.serverForCycleBlock(cycleBlock)
	interior := w.offset % w.BlockSize
	avail := w.BlockSize - interior
	if avail > w.remaining {
		avail = w.remaining
	}
	s := Stripe{ServerIndex: server, LocalLength: avail, LocalOffset: w.offset, BlockID: block}
	w.offset += avail
	w.remaining -= avail
	return s, true
}

// Record is the self-describing serialization of a Distribution, carried in
// a distributed object's metadata so it can be reconstructed without
// out-of-band knowledge of the policy that created it.
type Record struct {
	Type        string   `yaml:"type"`
	BlockSize   uint64   `yaml:"block_size,omitempty"`
	ServerCount int      `yaml:"server_count,omitempty"`
	StartIndex  int      `yaml:"start_index,omitempty"`
	Index       int      `yaml:"index,omitempty"`
	Weights     []uint64 `yaml:"weights,omitempty"`
}

// ToRecord serializes d into a Record. Returns an error for unrecognized
// implementations.
func ToRecord(d Distribution) (Record, error) {
	switch v := d.(type) {
	case *RoundRobin:
		return Record{Type: v.Type(), BlockSize: v.BlockSize, ServerCount: v.ServerCount, StartIndex: v.StartIndex}, nil
	case *SingleServer:
		return Record{Type: v.Type(), Index: v.Index}, nil
	case *Weighted:
		return Record{Type: v.Type(), BlockSize: v.BlockSize, Weights: v.Weights}, nil
	default:
		return Record{}, fmt.Errorf("distribution: cannot serialize %T", d)
	}
}

// FromRecord reconstructs a Distribution from a Record.
func FromRecord(r Record) (Distribution, error) {
	switch r.Type {
	case "round-robin":
		return NewRoundRobin(r.ServerCount, r.StartIndex, r.BlockSize)
	case "single-server":
		return NewSingleServer(r.Index), nil
	case "weighted":
		return NewWeighted(r.Weights, r.BlockSize)
	default:
		return nil, fmt.Errorf("distribution: unknown type %q", r.Type)
	}
}
