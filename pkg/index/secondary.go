package index

import (
	"github.com/relcore/reldb/internal/logger"
	"github.com/relcore/reldb/internal/metrics"
	"github.com/relcore/reldb/pkg/btree"
	"github.com/relcore/reldb/pkg/bufferpool"
	"github.com/relcore/reldb/pkg/dberrors"
	"github.com/relcore/reldb/pkg/page"
)

// SecondaryIndex is a BPlusTree whose leaves carry an int32 primary-key
// back-pointer, keyed by a reduction of the indexed column's value.
type SecondaryIndex struct {
	tree     *btree.BPlusTree
	name     string
	unique   bool
	clustered *ClusteredIndex
}

// OpenSecondaryIndex attaches a SecondaryIndex to the given index id,
// allocating a blank root if one does not already exist. clustered is the
// back-table used by SelectRow's two-step lookup.
func OpenSecondaryIndex(indexId int32, name string, unique bool, clustered *ClusteredIndex, pool *bufferpool.Pool, pm *page.PageManager, log *logger.Logger, m *metrics.Metrics) (*SecondaryIndex, error) {
	tree, err := btree.Open(indexId, false, pool, pm, log, m)
	if err != nil {
		return nil, err
	}
	return &SecondaryIndex{tree: tree, name: name, unique: unique, clustered: clustered}, nil
}

// Name returns the index's declared name.
func (s *SecondaryIndex) Name() string { return s.name }

// Unique reports whether duplicate index values are rejected.
func (s *SecondaryIndex) Unique() bool { return s.unique }

// InsertEntry inserts (hashedIndexValue, pk). A nil indexValue is silently
// skipped, since NULLs are not indexed. If the index is unique and the
// reduced key already exists, the insert fails with duplicate-key.
func (s *SecondaryIndex) InsertEntry(indexValue any, pk any) error {
	if indexValue == nil {
		return nil
	}
	key, err := ReduceKey(indexValue)
	if err != nil {
		return err
	}
	pkInt, err := ReduceKey(pk)
	if err != nil {
		return err
	}

	if s.unique {
		if _, ok, err := s.tree.Search(key); err != nil {
			return err
		} else if ok {
			return dberrors.New(dberrors.AlreadyExists, "duplicate-key: index %q already has an entry for this value", s.name)
		}
	}

	return s.tree.Insert(key, btree.IntValue(pkInt))
}

// DeleteEntry removes one entry stored under the reduced key of
// indexValue. A nil indexValue is a no-op. Because duplicate keys are
// possible even on unique indexes' hashed domain collisions, this removes
// only the first matching entry, whichever primary key it points at.
func (s *SecondaryIndex) DeleteEntry(indexValue any) (bool, error) {
	if indexValue == nil {
		return false, nil
	}
	key, err := ReduceKey(indexValue)
	if err != nil {
		return false, err
	}
	return s.tree.Delete(key)
}

// FindPrimaryKey returns the primary-key back-pointer stored for
// indexValue, if any. A nil indexValue is never found, since NULLs are not
// indexed.
func (s *SecondaryIndex) FindPrimaryKey(indexValue any) (int32, bool, error) {
	if indexValue == nil {
		return 0, false, nil
	}
	key, err := ReduceKey(indexValue)
	if err != nil {
		return 0, false, err
	}
	val, ok, err := s.tree.Search(key)
	if err != nil || !ok {
		return 0, ok, err
	}
	return val.Int, true, nil
}

// SelectRow performs the two-step lookup: secondary tree for the primary
// key, then a clustered-tree back-table read for the full row.
func (s *SecondaryIndex) SelectRow(indexValue any) (any, bool, error) {
	pk, ok, err := s.FindPrimaryKey(indexValue)
	if err != nil || !ok {
		return nil, ok, err
	}
	row, found, err := s.clustered.SelectByPrimaryKey(pk)
	if err != nil || !found {
		return nil, found, err
	}
	return row, true, nil
}
