package simulation

import (
	"bytes"
	"encoding/gob"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"lukechampine.com/blake3"
)

const HashLength = 32

// c_ledgerBlocks bounds how many recent blocks the ledger keeps for Chain.
const c_ledgerBlocks = 10000

type Hash [HashLength]byte

// SetBytes sets the hash to the value of b.
// If b is larger than len(h), b will be cropped from the left.
func (h *Hash) SetBytes(b []byte) {
	if len(b) > len(h) {
		b = b[len(b)-HashLength:]
	}

	copy(h[HashLength-len(b):], b)
}

func (h Hash) String() string {
	enc := make([]byte, len(h[:])*2+2)
	copy(enc, "0x")
	hex.Encode(enc[2:], h[:])
	return string(enc)
}

func (h Hash) Bytes() []byte {
	return h[:]
}

// Block records one lottery outcome: which agent won the round and the
// network capacity it won against.
type Block struct {
	parentHash    Hash
	number        uint64
	winner        int
	reward        float64
	totalCapacity float64
}

func GenesisBlock() *Block {
	return &Block{
		parentHash: Hash{},
		number:     0,
		winner:     -1,
	}
}

func (b *Block) Hash() (hash Hash) {
	sealData := struct {
		ParentHash    Hash
		Number        uint64
		Winner        int
		Reward        float64
		TotalCapacity float64
	}{
		ParentHash:    b.parentHash,
		Number:        b.number,
		Winner:        b.winner,
		Reward:        b.reward,
		TotalCapacity: b.totalCapacity,
	}
	buf := bytes.Buffer{}
	if err := gob.NewEncoder(&buf).Encode(sealData); err != nil {
		// gob cannot fail on a struct of plain fixed size fields
		panic(fmt.Sprintf("block encode: %v", err))
	}
	sum := blake3.Sum256(buf.Bytes())
	hash.SetBytes(sum[:])
	return hash
}

func (b *Block) ParentHash() Hash { return b.parentHash }
func (b *Block) Number() uint64 { return b.number }
func (b *Block) Winner() int { return b.winner }
func (b *Block) Reward() float64 { return b.reward }
func (b *Block) TotalCapacity() float64 { return b.totalCapacity }

func (b *Block) String() string {
	return fmt.Sprintf("{ ParentHash: %v, Number: %v, Winner: %v, Reward: %v, TotalCapacity: %v}", b.ParentHash(), b.Number(), b.Winner(), b.Reward(), b.TotalCapacity())
}

// Ledger chains the blocks awarded by the lottery. Its head hash commits to
// the whole winner sequence, which makes it a compact reproducibility digest.
type Ledger struct {
	blocks  *lru.Cache[Hash, Block]
	genesis Hash
	head    *Block
	length  uint64
}

func NewLedger() *Ledger {
	blocks, err := lru.New[Hash, Block](c_ledgerBlocks)
	if err != nil {
		panic(err)
	}
	genesis := GenesisBlock()
	return &Ledger{
		blocks:  blocks,
		genesis: genesis.Hash(),
		head:    genesis,
	}
}

// Append records the winner of round step on top of the current head.
func (l *Ledger) Append(step uint64, winner int, reward, totalCapacity float64) *Block {
	block := &Block{
		parentHash:    l.head.Hash(),
		number:        step,
		winner:        winner,
		reward:        reward,
		totalCapacity: totalCapacity,
	}
	l.blocks.Add(block.Hash(), *block)
	l.head = block
	l.length++
	return block
}

func (l *Ledger) Head() *Block {
	cpy := *l.head
	return &cpy
}

// Len is the number of blocks appended since genesis.
func (l *Ledger) Len() uint64 { return l.length }

// Digest is the head hash.
func (l *Ledger) Digest() Hash { return l.head.Hash() }

// Chain walks back from the head and returns the retained blocks oldest
// first. Blocks evicted from the cache end the walk early.
func (l *Ledger) Chain() []Block {
	var chain []Block
	current := *l.head
	for current.Hash() != l.genesis {
		chain = append(chain, current)
		if current.ParentHash() == l.genesis {
			break
		}
		parent, exists := l.blocks.Get(current.ParentHash())
		if !exists {
			break
		}
		current = parent
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}
