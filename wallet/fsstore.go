package wallet

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// FSStore persists identities as one <label>.id JSON record per file under
// the organization's wallet directory. Writes are whole-file; the last writer
// for a label wins.
type FSStore struct {
	dir string
}

// NewFSStore creates a filesystem wallet rooted at dir
func NewFSStore(dir string) *FSStore {
	return &FSStore{dir: dir}
}

type record struct {
	Version     int         `json:"version"`
	MSPID       string      `json:"mspId"`
	Type        string      `json:"type"`
	Credentials credentials `json:"credentials"`
}

type credentials struct {
	Certificate string `json:"certificate"`
	PrivateKey  string `json:"privateKey"`
}

func (s *FSStore) path(label string) string {
	return filepath.Join(s.dir, label+".id")
}

// Get loads an identity record, (nil, nil) when absent
func (s *FSStore) Get(label string) (*Identity, error) {
	raw, err := os.ReadFile(s.path(label))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read identity %s", label)
	}

	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, errors.Wrapf(err, "failed to parse identity record %s", label)
	}

	return &Identity{
		Label:       label,
		MSPID:       rec.MSPID,
		Type:        rec.Type,
		Certificate: rec.Credentials.Certificate,
		PrivateKey:  rec.Credentials.PrivateKey,
	}, nil
}

// Put writes an identity record, overwriting any prior record for the label
func (s *FSStore) Put(label string, id *Identity) error {
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return errors.Wrapf(err, "failed to create wallet directory %s", s.dir)
	}

	rec := record{
		Version: 1,
		MSPID:   id.MSPID,
		Type:    id.Type,
		Credentials: credentials{
			Certificate: id.Certificate,
			PrivateKey:  id.PrivateKey,
		},
	}
	if rec.Type == "" {
		rec.Type = TypeX509
	}

	raw, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "failed to encode identity record %s", label)
	}
	if err := os.WriteFile(s.path(label), raw, 0o600); err != nil {
		return errors.Wrapf(err, "failed to write identity %s", label)
	}
	return nil
}

// Remove deletes an identity record; removing an absent label is not an error
func (s *FSStore) Remove(label string) error {
	err := os.Remove(s.path(label))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to remove identity %s", label)
	}
	return nil
}

// Exists reports whether a record is stored under the label
func (s *FSStore) Exists(label string) (bool, error) {
	_, err := os.Stat(s.path(label))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "failed to stat identity %s", label)
	}
	return true, nil
}

// List enumerates the stored identities
func (s *FSStore) List() ([]Descriptor, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return []Descriptor{}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read wallet directory %s", s.dir)
	}

	ids := make([]Descriptor, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".id") {
			continue
		}
		label := strings.TrimSuffix(entry.Name(), ".id")
		id, err := s.Get(label)
		if err != nil || id == nil {
			continue
		}
		ids = append(ids, Descriptor{Label: label, Type: id.Type})
	}
	return ids, nil
}
