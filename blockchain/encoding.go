package blockchain

import (
	"go.dedis.ch/protobuf"
	"golang.org/x/xerrors"
)

// ChainFileVersion is the current export format version.
const ChainFileVersion = 1

// ChainFile is the portable export of a chain along with the parameters it
// was mined under.
type ChainFile struct {
	Version    int32
	Difficulty int32
	Sentinel   string
	Records    []Record
}

// NewChainFile packs blocks into an export.
func NewChainFile(blocks []*Block, difficulty int, sentinel string) ChainFile {
	f := ChainFile{
		Version:    ChainFileVersion,
		Difficulty: int32(difficulty),
		Sentinel:   sentinel,
		Records:    make([]Record, 0, len(blocks)),
	}
	for _, b := range blocks {
		f.Records = append(f.Records, b.Record())
	}
	return f
}

// Blocks unpacks the records. The result is untrusted until verified.
func (f ChainFile) Blocks() []*Block {
	blocks := make([]*Block, 0, len(f.Records))
	for _, r := range f.Records {
		blocks = append(blocks, FromRecord(r))
	}
	return blocks
}

// EncodeChain serializes a chain file.
func EncodeChain(f ChainFile) ([]byte, error) {
	buf, err := protobuf.Encode(&f)
	if err != nil {
		return nil, xerrors.Errorf("encoding chain: %v", err)
	}
	return buf, nil
}

// DecodeChain parses a chain file produced by EncodeChain.
func DecodeChain(buf []byte) (ChainFile, error) {
	var f ChainFile
	if err := protobuf.Decode(buf, &f); err != nil {
		return ChainFile{}, xerrors.Errorf("decoding chain: %v", err)
	}
	if f.Version != ChainFileVersion {
		return ChainFile{}, xerrors.Errorf("unsupported chain file version %d", f.Version)
	}
	return f, nil
}
