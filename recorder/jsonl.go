package recorder

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/shreekarashastry/miningsim/simulation"
)

// Line is one JSONL entry. Exactly one of Agent and Model is set.
type Line struct {
	Kind  string                  `json:"kind"`
	Agent *simulation.AgentRecord `json:"agent,omitempty"`
	Model *simulation.ModelRecord `json:"model,omitempty"`
}

const (
	KindAgent = "agent"
	KindModel = "model"
)

// JSONL writes the round records as zstd-compressed JSON lines.
type JSONL struct {
	path string

	mu  sync.Mutex
	f   *os.File
	enc *zstd.Encoder
	w   *bufio.Writer
}

func CreateJSONL(path string) (*JSONL, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &JSONL{
		path: path,
		f:    f,
		enc:  enc,
		w:    bufio.NewWriterSize(enc, 128*1024),
	}, nil
}

func (j *JSONL) Path() string { return j.path }

func (j *JSONL) RecordAgent(r simulation.AgentRecord) error {
	return j.write(Line{Kind: KindAgent, Agent: &r})
}

func (j *JSONL) RecordModel(r simulation.ModelRecord) error {
	return j.write(Line{Kind: KindModel, Model: &r})
}

func (j *JSONL) write(l Line) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.w == nil {
		return fmt.Errorf("jsonl %s: closed", j.path)
	}
	b, err := json.Marshal(l)
	if err != nil {
		return err
	}
	if _, err := j.w.Write(b); err != nil {
		return err
	}
	return j.w.WriteByte('\n')
}

func (j *JSONL) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	var err1, err2 error
	if j.w != nil {
		err1 = j.w.Flush()
		j.w = nil
	}
	if j.enc != nil {
		err2 = j.enc.Close()
		j.enc = nil
	}
	if j.f != nil {
		if err := j.f.Close(); err != nil && err1 == nil && err2 == nil {
			return err
		}
		j.f = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

// ReadJSONL decodes every line of a file written by JSONL.
func ReadJSONL(path string) ([]Line, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out []Line
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var l Line
		if err := json.Unmarshal(sc.Bytes(), &l); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, len(out)+1, err)
		}
		out = append(out, l)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
