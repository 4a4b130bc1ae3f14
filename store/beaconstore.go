package store

import (
	"bytes"
	"encoding/gob"
	"sync"

	bolt "go.etcd.io/bbolt"

	"github.com/drand/ledger-beacon/common/address"
	"github.com/drand/ledger-beacon/common/chaintypes"
	"github.com/drand/ledger-beacon/common/log"
	"github.com/drand/ledger-beacon/internal/beaconsetup"
)

var aeonBucket = []byte("aeon")
var aeonHeadKey = []byte("head")

// HeadRecord is what BeaconStateStore persists for the active aeon: enough
// to identify it and to re-verify/re-sign once the polynomial commitments
// are back in memory, per spec.md §4.4's optional HEAD persistence.
type HeadRecord struct {
	Aeon           chaintypes.Aeon
	Skeleton       chaintypes.BlockEntropy
	Threshold      int
	Qual           []address.Address
	SecretShare    []byte // DkgManager.SecretShare(), MarshalBinary'd
	GroupPublicKey []byte // DkgManager.GroupPublicKey(), MarshalBinary'd
}

// BeaconStateStore persists BeaconService's active AeonExecutionUnit under
// a single "HEAD" key, so a crash-restart can identify the aeon it was
// mid-production on without re-running DKG. Grounded on the teacher's
// db.db HEAD-key pattern (chain/beacon/store.go's per-chain "latest"
// bookkeeping), adapted to this module's one-slot-per-node model.
type BeaconStateStore struct {
	sync.Mutex
	db  *bolt.DB
	log log.Logger
}

// NewBeaconStateStore wraps an already-open bolt.DB (see Open).
func NewBeaconStateStore(db *bolt.DB, l log.Logger) (*BeaconStateStore, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(aeonBucket)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &BeaconStateStore{db: db, log: l.Named("beaconstore")}, nil
}

// SaveHead implements beaconsvc.Persister.
func (s *BeaconStateStore) SaveHead(unit beaconsetup.AeonExecutionUnit) error {
	var groupKeyBytes, secretShareBytes []byte
	if gpk := unit.Manager.GroupPublicKey(); gpk != nil {
		if b, err := gpk.MarshalBinary(); err == nil {
			groupKeyBytes = b
		}
	}
	if ss := unit.Manager.SecretShare(); ss != nil {
		if b, err := ss.MarshalBinary(); err == nil {
			secretShareBytes = b
		}
	}
	rec := HeadRecord{
		Aeon:           unit.Aeon,
		Skeleton:       unit.Skeleton,
		Threshold:      unit.Manager.Threshold(),
		Qual:           unit.Manager.Qual(),
		SecretShare:    secretShareBytes,
		GroupPublicKey: groupKeyBytes,
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return err
	}
	s.Lock()
	defer s.Unlock()
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(aeonBucket).Put(aeonHeadKey, buf.Bytes())
	})
}

// LoadHead returns the persisted HeadRecord, if any, for startup recovery.
func (s *BeaconStateStore) LoadHead() (HeadRecord, bool, error) {
	s.Lock()
	defer s.Unlock()
	var rec HeadRecord
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(aeonBucket).Get(aeonHeadKey)
		if v == nil {
			return nil
		}
		found = true
		return gob.NewDecoder(bytes.NewReader(v)).Decode(&rec)
	})
	return rec, found, err
}

var _ interface {
	SaveHead(unit beaconsetup.AeonExecutionUnit) error
} = (*BeaconStateStore)(nil)
