package model

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/YuminosukeSato/cropyield/pkg/errors"
)

// FormatVersion is the envelope version written by this build. Readers
// reject any other value.
const FormatVersion = 1

// Envelope kinds.
const (
	KindBundle       = "cropyield.bundle"
	KindModel        = "cropyield.model"
	KindEncoder      = "cropyield.encoder"
	KindFrequencyMap = "cropyield.frequency_map"
)

// Envelope wraps every persisted artifact so that a reader can detect an
// incompatible file before decoding the payload.
type Envelope struct {
	FormatVersion int             `json:"format_version"`
	Kind          string          `json:"kind"`
	Payload       json.RawMessage `json:"payload"`
}

// WriteEnvelope はpayloadをエンベロープに包んでwに書き込む
func WriteEnvelope(w io.Writer, kind string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrapf(err, "encode %s payload", kind)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(Envelope{FormatVersion: FormatVersion, Kind: kind, Payload: raw}); err != nil {
		return errors.Wrapf(err, "write %s envelope", kind)
	}
	return nil
}

// ReadEnvelope はrからエンベロープを読み込み、payloadをdstにデコードする
//
// An envelope with another kind or format version yields
// errors.ErrUnsupportedFormat.
func ReadEnvelope(r io.Reader, kind string, dst interface{}) error {
	var env Envelope
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return errors.Wrapf(err, "decode %s envelope", kind)
	}
	if env.FormatVersion != FormatVersion {
		return errors.Wrapf(errors.ErrUnsupportedFormat, "format_version %d (want %d)", env.FormatVersion, FormatVersion)
	}
	if env.Kind != kind {
		return errors.Wrapf(errors.ErrUnsupportedFormat, "kind %q (want %q)", env.Kind, kind)
	}
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		return errors.Wrapf(err, "decode %s payload", kind)
	}
	return nil
}

// SaveEnvelope writes payload to path, creating parent directories. The file
// is written to a temporary sibling and renamed so readers never observe a
// partial artifact.
func SaveEnvelope(path, kind string, payload interface{}) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create directory for %s", path)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if err := WriteEnvelope(tmp, kind, payload); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "close %s", path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrapf(err, "rename into %s", path)
	}
	return nil
}

// LoadEnvelope reads an envelope of the given kind from path into dst.
func LoadEnvelope(path, kind string, dst interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	return ReadEnvelope(f, kind, dst)
}
