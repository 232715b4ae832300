package snapshot

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"github.com/yndnr/ledgersnap/internal/core/domain"
	"github.com/yndnr/ledgersnap/internal/core/service"
	"github.com/yndnr/ledgersnap/internal/telemetry/logger"
	"github.com/yndnr/ledgersnap/internal/telemetry/metric"
)

// Magic bytes identify snapshot files.
var magicBytes = []byte("LEDGSNAP")

const (
	fileExtension = ".snap"
	checksumSize  = 32
	headerVersion = 1

	DefaultRetentionCount = 5
)

// <group>-<yyyymmddhhmmss>-<seq>.snap
var fileName = regexp.MustCompile(`^([a-z_]+)-(\d{14})-(\d{4,})\.snap$`)

// Header is the JSON header of a snapshot file.
type Header struct {
	Version      int               `json:"version"`
	CreatedAt    int64             `json:"created_at"`
	RunID        string            `json:"run_id,omitempty"`
	Group        domain.KeyGroup   `json:"group"`
	BlockHash    string            `json:"block_hash,omitempty"`
	EntryCount   uint64            `json:"entry_count"`
	MissingCount uint64            `json:"missing_count"`
	DataCID      string            `json:"data_cid"`
	Encryption   *EncryptionHeader `json:"encryption,omitempty"`
}

var (
	ErrInvalidMagic     = errors.New("snapshot: invalid magic bytes")
	ErrChecksumMismatch = errors.New("snapshot: checksum mismatch")
	ErrCIDMismatch      = errors.New("snapshot: data does not match its CID")
	ErrNoSnapshots      = errors.New("snapshot: no snapshots available")
	ErrBlockTooLarge    = errors.New("snapshot: block exceeds the u32 length prefix")
)

// maxBlockSize bounds the header and data blocks, whose lengths are
// stored as u32.
var maxBlockSize uint64 = math.MaxUint32

// Config configures the snapshot manager.
type Config struct {
	Dir string

	// RetentionCount is how many snapshots Prune keeps per group.
	RetentionCount int

	Encryption EncryptionConfig

	Logger  logger.Logger
	Metrics *metric.Registry
}

func DefaultConfig(dir string) Config {
	return Config{
		Dir:            dir,
		RetentionCount: DefaultRetentionCount,
	}
}

// Manager writes and reads snapshot files in one directory.
type Manager struct {
	cfg    Config
	logger logger.Logger
}

func NewManager(cfg Config) (*Manager, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("snapshot: dir is required")
	}
	if err := cfg.Encryption.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Dir, 0750); err != nil {
		return nil, fmt.Errorf("snapshot: create dir: %w", err)
	}
	if cfg.RetentionCount == 0 {
		cfg.RetentionCount = DefaultRetentionCount
	}
	l := cfg.Logger
	if l == nil {
		l = logger.Discard()
	}

	return &Manager{cfg: cfg, logger: l}, nil
}

// Dir returns the snapshot directory.
func (m *Manager) Dir() string {
	return m.cfg.Dir
}

// Meta identifies the extraction a snapshot belongs to.
type Meta struct {
	Group     domain.KeyGroup
	RunID     string
	BlockHash string
}

// Info contains metadata about a snapshot.
type Info struct {
	ID           string          `json:"id" yaml:"id"`
	Group        domain.KeyGroup `json:"group" yaml:"group"`
	RunID        string          `json:"run_id,omitempty" yaml:"run_id,omitempty" table:"wide"`
	BlockHash    string          `json:"block_hash,omitempty" yaml:"block_hash,omitempty"`
	CreatedAt    int64           `json:"created_at,omitempty" yaml:"created_at,omitempty" table:"wide"`
	EntryCount   uint64          `json:"entry_count" yaml:"entry_count"`
	MissingCount uint64          `json:"missing_count" yaml:"missing_count"`
	Encrypted    bool            `json:"encrypted" yaml:"encrypted"`
	Size         int64           `json:"size" yaml:"size"`
	Path         string          `json:"path" yaml:"path" table:"wide"`
	Checksum     string          `json:"checksum,omitempty" yaml:"checksum,omitempty" table:"-"`
	CID          string          `json:"cid,omitempty" yaml:"cid,omitempty"`
}

// DataCID returns the CIDv1 (raw codec, sha2-256) of a data block.
func DataCID(data []byte) (cid.Cid, error) {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, fmt.Errorf("snapshot: hash data: %w", err)
	}
	return cid.NewCidV1(cid.Raw, mh), nil
}

// Create writes entries as a new snapshot of meta.Group. The file is
// written to a temporary name and renamed into place once synced.
func (m *Manager) Create(meta Meta, entries []Entry) (*Info, error) {
	if meta.Group.StorageItem() == "" {
		return nil, domain.ErrUnknownKeyGroup.WithDetails(string(meta.Group))
	}

	start := time.Now()
	id := m.generateID(meta.Group, start)

	plain := encodeEntries(entries)
	dataCID, err := DataCID(plain)
	if err != nil {
		return nil, err
	}

	hdr := Header{
		Version:    headerVersion,
		CreatedAt:  start.UnixMilli(),
		RunID:      meta.RunID,
		Group:      meta.Group,
		BlockHash:  meta.BlockHash,
		EntryCount: uint64(len(entries)),
		DataCID:    dataCID.String(),
	}
	for _, e := range entries {
		if e.Missing() {
			hdr.MissingCount++
		}
	}

	data := plain
	if m.cfg.Encryption.Enabled() {
		data, hdr.Encryption, err = seal(m.cfg.Encryption, plain, []byte(meta.Group))
		if err != nil {
			return nil, err
		}
	}

	hdrJSON, err := json.Marshal(hdr)
	if err != nil {
		return nil, fmt.Errorf("snapshot: marshal header: %w", err)
	}

	if err := checkBlockSize("header", len(hdrJSON)); err != nil {
		return nil, err
	}
	if err := checkBlockSize("data", len(data)); err != nil {
		return nil, err
	}

	tempPath := filepath.Join(m.cfg.Dir, id+".tmp")
	sum, err := writeFile(tempPath, hdrJSON, data)
	defer os.Remove(tempPath)
	if err != nil {
		return nil, err
	}

	stat, err := os.Stat(tempPath)
	if err != nil {
		return nil, err
	}

	finalPath := filepath.Join(m.cfg.Dir, id+fileExtension)
	if err := os.Rename(tempPath, finalPath); err != nil {
		return nil, fmt.Errorf("snapshot: rename: %w", err)
	}

	elapsed := time.Since(start)
	m.cfg.Metrics.ObserveSnapshot(string(meta.Group), len(entries), elapsed)
	m.logger.Info("snapshot written",
		"group", meta.Group,
		"path", finalPath,
		"entries", len(entries),
		"missing", hdr.MissingCount,
		"cid", hdr.DataCID,
		"elapsed", elapsed)

	return infoFromHeader(id, finalPath, stat.Size(), hex.EncodeToString(sum), hdr), nil
}

func checkBlockSize(block string, n int) error {
	if uint64(n) > maxBlockSize {
		return fmt.Errorf("%w: %s block is %d bytes, limit %d", ErrBlockTooLarge, block, n, maxBlockSize)
	}
	return nil
}

func writeFile(path string, hdrJSON, data []byte) ([]byte, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: create temp file: %w", err)
	}

	hash := sha256.New()
	w := bufio.NewWriter(io.MultiWriter(file, hash))

	var lenBuf [4]byte
	w.Write(magicBytes)
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(hdrJSON)))
	w.Write(lenBuf[:])
	w.Write(hdrJSON)
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	w.Write(lenBuf[:])
	w.Write(data)
	if err := w.Flush(); err != nil {
		file.Close()
		return nil, fmt.Errorf("snapshot: write: %w", err)
	}

	// Checksum trailer, not itself hashed.
	sum := hash.Sum(nil)
	if _, err := file.Write(sum); err != nil {
		file.Close()
		return nil, fmt.Errorf("snapshot: write checksum: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return nil, fmt.Errorf("snapshot: sync: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("snapshot: close: %w", err)
	}
	return sum, nil
}

func infoFromHeader(id, path string, size int64, checksum string, hdr Header) *Info {
	return &Info{
		ID:           id,
		Group:        hdr.Group,
		RunID:        hdr.RunID,
		BlockHash:    hdr.BlockHash,
		CreatedAt:    hdr.CreatedAt,
		EntryCount:   hdr.EntryCount,
		MissingCount: hdr.MissingCount,
		Encrypted:    hdr.Encryption != nil,
		Size:         size,
		Path:         path,
		Checksum:     checksum,
		CID:          hdr.DataCID,
	}
}

// Sink returns a group sink that snapshots each extracted group under
// runID at block at. onCreate, if not nil, receives the info of every
// written snapshot; it may be called concurrently.
func (m *Manager) Sink(runID, at string, onCreate func(*Info)) service.GroupSink {
	return func(_ context.Context, r *service.GroupResult) error {
		info, err := m.Create(Meta{Group: r.Group, RunID: runID, BlockHash: at}, Entries(r.Keys, r.Values))
		if err != nil {
			return err
		}
		if onCreate != nil {
			onCreate(info)
		}
		return nil
	}
}

// Load reads and verifies the snapshot at path.
func (m *Manager) Load(path string) ([]Entry, *Info, error) {
	return m.loadFile(path, true)
}

// Inspect verifies the checksum of the snapshot at path and returns its
// metadata without decoding the data block.
func (m *Manager) Inspect(path string) (*Info, error) {
	_, info, err := m.loadFile(path, false)
	return info, err
}

// Latest loads the newest valid snapshot of group. Corrupted files are
// skipped in favour of older ones.
func (m *Manager) Latest(group domain.KeyGroup) ([]Entry, *Info, error) {
	snapshots, err := m.List(group)
	if err != nil {
		return nil, nil, err
	}

	for i := len(snapshots) - 1; i >= 0; i-- {
		entries, info, err := m.loadFile(snapshots[i].Path, true)
		if err == nil {
			return entries, info, nil
		}
		if errors.Is(err, ErrChecksumMismatch) || errors.Is(err, ErrInvalidMagic) {
			m.logger.Warn("skipping corrupted snapshot", "path", snapshots[i].Path, "error", err)
			continue
		}
		return nil, nil, err
	}

	return nil, nil, ErrNoSnapshots
}

func (m *Manager) loadFile(path string, decode bool) ([]Entry, *Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, nil, err
	}
	if stat.Size() < int64(len(magicBytes))+8+checksumSize {
		return nil, nil, ErrChecksumMismatch
	}

	// Verify checksum.
	dataLen := stat.Size() - checksumSize
	expected := make([]byte, checksumSize)
	if _, err := io.ReadFull(io.NewSectionReader(f, dataLen, checksumSize), expected); err != nil {
		return nil, nil, err
	}
	h := sha256.New()
	if _, err := io.CopyN(h, io.NewSectionReader(f, 0, dataLen), dataLen); err != nil {
		return nil, nil, err
	}
	if !bytes.Equal(h.Sum(nil), expected) {
		return nil, nil, ErrChecksumMismatch
	}

	br := bufio.NewReader(io.NewSectionReader(f, 0, dataLen))

	magic := make([]byte, len(magicBytes))
	if _, err := io.ReadFull(br, magic); err != nil {
		return nil, nil, err
	}
	if !bytes.Equal(magic, magicBytes) {
		return nil, nil, ErrInvalidMagic
	}

	hdrJSON, err := readBlock(br, dataLen)
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot: header: %w", err)
	}
	var hdr Header
	if err := json.Unmarshal(hdrJSON, &hdr); err != nil {
		return nil, nil, fmt.Errorf("snapshot: unmarshal header: %w", err)
	}
	if hdr.Version != headerVersion {
		return nil, nil, fmt.Errorf("snapshot: unsupported version %d", hdr.Version)
	}

	id := strings.TrimSuffix(filepath.Base(path), fileExtension)
	info := infoFromHeader(id, path, stat.Size(), hex.EncodeToString(expected), hdr)
	if !decode {
		return nil, info, nil
	}

	data, err := readBlock(br, dataLen)
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot: data: %w", err)
	}
	if hdr.Encryption != nil {
		data, err = open(m.cfg.Encryption.Passphrase, hdr.Encryption, data, []byte(hdr.Group))
		if err != nil {
			return nil, nil, err
		}
	}

	got, err := DataCID(data)
	if err != nil {
		return nil, nil, err
	}
	if got.String() != hdr.DataCID {
		return nil, nil, fmt.Errorf("%w: header %s, data %s", ErrCIDMismatch, hdr.DataCID, got)
	}

	entries, err := decodeEntries(data)
	if err != nil {
		return nil, nil, domain.ErrDecodeFailed.WithDetails(path).WithCause(err)
	}
	if uint64(len(entries)) != hdr.EntryCount {
		return nil, nil, fmt.Errorf("snapshot: header declares %d entries, data holds %d", hdr.EntryCount, len(entries))
	}

	return entries, info, nil
}

// readBlock reads a u32 BE length-prefixed block no longer than limit.
func readBlock(r io.Reader, limit int64) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if int64(n) > limit {
		return nil, fmt.Errorf("block length %d exceeds file size", n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// List lists snapshot files of group, oldest first (metadata from the
// file name only). An empty group lists every group.
func (m *Manager) List(group domain.KeyGroup) ([]*Info, error) {
	entries, err := os.ReadDir(m.cfg.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var infos []*Info
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		match := fileName.FindStringSubmatch(e.Name())
		if match == nil {
			continue
		}
		g := domain.KeyGroup(match[1])
		if group != "" && g != group {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		infos = append(infos, &Info{
			ID:    strings.TrimSuffix(e.Name(), fileExtension),
			Group: g,
			Path:  filepath.Join(m.cfg.Dir, e.Name()),
			Size:  fi.Size(),
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Group != infos[j].Group {
			return infos[i].Group < infos[j].Group
		}
		return idLess(infos[i].ID, infos[j].ID)
	})
	return infos, nil
}

// idLess orders ids by timestamp, then by numeric sequence.
func idLess(a, b string) bool {
	ia, ib := strings.LastIndexByte(a, '-'), strings.LastIndexByte(b, '-')
	if a[:ia] != b[:ib] {
		return a[:ia] < b[:ib]
	}
	sa, _ := strconv.Atoi(a[ia+1:])
	sb, _ := strconv.Atoi(b[ib+1:])
	return sa < sb
}

// Prune keeps the newest RetentionCount snapshots of every group and
// deletes the rest. It returns the number of deleted files.
func (m *Manager) Prune() (int, error) {
	infos, err := m.List("")
	if err != nil {
		return 0, err
	}

	byGroup := make(map[domain.KeyGroup][]*Info)
	for _, info := range infos {
		byGroup[info.Group] = append(byGroup[info.Group], info)
	}

	removed := 0
	for group, list := range byGroup {
		keep := m.cfg.RetentionCount
		if keep < 1 {
			keep = 1
		}
		if len(list) <= keep {
			continue
		}
		for _, info := range list[:len(list)-keep] {
			if err := os.Remove(info.Path); err != nil && !os.IsNotExist(err) {
				return removed, fmt.Errorf("snapshot: prune %s: %w", info.Path, err)
			}
			removed++
		}
		m.logger.Debug("snapshots pruned", "group", group, "kept", keep)
	}
	return removed, nil
}

func (m *Manager) generateID(group domain.KeyGroup, t time.Time) string {
	prefix := fmt.Sprintf("%s-%s-", group, t.UTC().Format("20060102150405"))
	seq := 1

	entries, _ := os.ReadDir(m.cfg.Dir)
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, fileExtension) {
			seq++
		}
	}

	return fmt.Sprintf("%s%04d", prefix, seq)
}
