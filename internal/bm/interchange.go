package bm

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"
)

// MetadataVersion is stamped into every export header.
const MetadataVersion = "2.1"

const (
	exportHeader     = "bm Version " + MetadataVersion + " metadata dump"
	backy2Header     = "backy2 Version " + MetadataVersion + " metadata dump"
	exportTimeFormat = "2006-01-02 15:04:05"
	versionFields    = 6 // uid,date,name,size,size_bytes,valid
	blockFields      = 7 // uid,version_uid,id,date,checksum,size,valid
)

// Interchange exports a Version with its Blocks to a comma-separated text
// dump and imports such dumps back.
type Interchange struct {
	store  Store
	logger Logger
}

func NewInterchange(store Store, logger Logger) *Interchange {
	return &Interchange{store: store, logger: logger}
}

// Export writes the header line, the version record and one record per
// block in sequence order.
func (x *Interchange) Export(ctx context.Context, versionUID string, w io.Writer) error {
	var (
		v      *Version
		blocks []*Block
	)
	err := WithTx(ctx, x.store, func(tx Tx) error {
		var err error
		if v, err = tx.GetVersion(ctx, versionUID); err != nil {
			return err
		}
		blocks, err = tx.ListBlocks(ctx, versionUID)
		return err
	})
	if err != nil {
		return fmt.Errorf("exporting version %s: %w", versionUID, err)
	}

	cw := csv.NewWriter(w)
	records := make([][]string, 0, len(blocks)+2)
	records = append(records,
		[]string{exportHeader},
		[]string{
			v.UID,
			formatExportTime(v.CreatedAt),
			v.Name,
			strconv.FormatInt(v.Size, 10),
			strconv.FormatInt(v.SizeBytes, 10),
			strconv.Itoa(int(v.Validity)),
		})
	for _, b := range blocks {
		records = append(records, []string{
			b.ContentUID,
			b.VersionUID,
			strconv.FormatInt(b.SeqID, 10),
			formatExportTime(b.WrittenAt),
			b.Checksum,
			strconv.FormatInt(b.Size, 10),
			strconv.Itoa(int(b.Validity)),
		})
	}
	if err := cw.WriteAll(records); err != nil {
		return fmt.Errorf("writing export of %s: %w", versionUID, err)
	}
	x.logger.Info("version exported", "uid", versionUID, "blocks", len(blocks))
	return nil
}

// Import reads one dump and recreates its Version and Blocks in a single
// transaction. It fails with ErrImportFormat on malformed input or a header
// from another metadata version, and with ErrAlreadyExists if the version is
// already present.
func (x *Interchange) Import(ctx context.Context, r io.Reader) (string, error) {
	v, blocks, err := parseDump(r)
	if err != nil {
		return "", fmt.Errorf("importing: %w", err)
	}

	err = WithTx(ctx, x.store, func(tx Tx) error {
		_, err := tx.GetVersion(ctx, v.UID)
		switch {
		case err == nil:
			return fmt.Errorf("version %s: %w", v.UID, ErrAlreadyExists)
		case !errors.Is(err, ErrNotFound):
			return err
		}
		if err := tx.InsertVersion(ctx, v); err != nil {
			return err
		}
		for _, b := range blocks {
			if err := tx.UpsertBlock(ctx, b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("importing version %s: %w", v.UID, err)
	}
	x.logger.Info("version imported", "uid", v.UID, "blocks", len(blocks))
	return v.UID, nil
}

func parseDump(r io.Reader) (*Version, []*Block, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, nil, formatError("reading header: %v", err)
	}
	// backy2 wrote the same layout under its own tag.
	if len(header) != 1 || (header[0] != exportHeader && header[0] != backy2Header) {
		return nil, nil, formatError("unsupported header %q, want %q", header, exportHeader)
	}

	rec, err := cr.Read()
	if err != nil {
		return nil, nil, formatError("reading version record: %v", err)
	}
	v, err := parseVersionRecord(rec)
	if err != nil {
		return nil, nil, err
	}

	var blocks []*Block
	seen := make(map[int64]bool)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, formatError("reading block record: %v", err)
		}
		b, err := parseBlockRecord(rec)
		if err != nil {
			return nil, nil, err
		}
		if b.VersionUID != v.UID {
			return nil, nil, formatError("block %d belongs to version %s, not %s", b.SeqID, b.VersionUID, v.UID)
		}
		if seen[b.SeqID] {
			return nil, nil, formatError("duplicate block %d", b.SeqID)
		}
		seen[b.SeqID] = true
		blocks = append(blocks, b)
	}
	return v, blocks, nil
}

func parseVersionRecord(rec []string) (*Version, error) {
	if len(rec) != versionFields {
		return nil, formatError("version record has %d fields, want %d", len(rec), versionFields)
	}
	created, err := parseExportTime(rec[1])
	if err != nil {
		return nil, err
	}
	size, err := parseInt(rec[3], "version size")
	if err != nil {
		return nil, err
	}
	sizeBytes, err := parseInt(rec[4], "version size_bytes")
	if err != nil {
		return nil, err
	}
	validity, err := parseValidity(rec[5])
	if err != nil {
		return nil, err
	}
	if rec[0] == "" {
		return nil, formatError("version record has empty uid")
	}
	return &Version{
		UID:       rec[0],
		CreatedAt: created,
		Name:      rec[2],
		Size:      size,
		SizeBytes: sizeBytes,
		Validity:  validity,
	}, nil
}

func parseBlockRecord(rec []string) (*Block, error) {
	if len(rec) != blockFields {
		return nil, formatError("block record has %d fields, want %d", len(rec), blockFields)
	}
	seq, err := parseInt(rec[2], "block id")
	if err != nil {
		return nil, err
	}
	written, err := parseExportTime(rec[3])
	if err != nil {
		return nil, err
	}
	size, err := parseInt(rec[5], "block size")
	if err != nil {
		return nil, err
	}
	validity, err := parseValidity(rec[6])
	if err != nil {
		return nil, err
	}
	switch {
	case seq < 0:
		return nil, formatError("negative block id %d", seq)
	case size < 0 || size > MaxBlockSize:
		return nil, formatError("block %d has size %d outside [0, %d]", seq, size, MaxBlockSize)
	case rec[0] != "" && !IsValidContentUID(rec[0]):
		return nil, formatError("block %d has invalid content uid %q", seq, rec[0])
	}
	return &Block{
		ContentUID: rec[0],
		VersionUID: rec[1],
		SeqID:      seq,
		WrittenAt:  written,
		Checksum:   rec[4],
		Size:       size,
		Validity:   validity,
	}, nil
}

func formatExportTime(t time.Time) string {
	return t.UTC().Format(exportTimeFormat)
}

func parseExportTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(exportTimeFormat, s, time.UTC)
	if err != nil {
		return time.Time{}, formatError("bad timestamp %q", s)
	}
	return t, nil
}

func parseInt(s, field string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, formatError("bad %s %q", field, s)
	}
	return n, nil
}

func parseValidity(s string) (Validity, error) {
	switch s {
	case "1":
		return Valid, nil
	case "0":
		return Invalid, nil
	default:
		return Invalid, formatError("bad validity %q", s)
	}
}

func formatError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrImportFormat, fmt.Sprintf(format, args...))
}
