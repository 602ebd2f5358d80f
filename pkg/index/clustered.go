package index

import (
	"github.com/relcore/reldb/internal/logger"
	"github.com/relcore/reldb/internal/metrics"
	"github.com/relcore/reldb/pkg/btree"
	"github.com/relcore/reldb/pkg/bufferpool"
	"github.com/relcore/reldb/pkg/dberrors"
	"github.com/relcore/reldb/pkg/page"
	"github.com/relcore/reldb/pkg/record"
)

// SchemaSource supplies the column list a ClusteredIndex needs to
// deserialize the byte records its leaves carry. Table implements this;
// the interface exists so index does not import table.
type SchemaSource interface {
	Columns() []record.Column
}

// ClusteredIndex is a BPlusTree whose leaves carry full serialized rows,
// keyed by a reduction of the table's primary-key column. It holds a
// back-reference to its owning table so it can look up the column schema
// needed to deserialize leaf values.
type ClusteredIndex struct {
	tree       *btree.BPlusTree
	schema     SchemaSource
	serializer *record.RecordSerializer
}

// OpenClusteredIndex attaches a ClusteredIndex to the given index id,
// allocating a blank root if one does not already exist.
func OpenClusteredIndex(indexId int32, schema SchemaSource, pool *bufferpool.Pool, pm *page.PageManager, log *logger.Logger, m *metrics.Metrics) (*ClusteredIndex, error) {
	tree, err := btree.Open(indexId, true, pool, pm, log, m)
	if err != nil {
		return nil, err
	}
	return &ClusteredIndex{tree: tree, schema: schema, serializer: record.NewRecordSerializer()}, nil
}

// InsertRow extracts the primary-key value (column 0, must be non-null),
// serializes row against the current schema, and inserts the pair keyed by
// the reduced primary key.
func (c *ClusteredIndex) InsertRow(row record.Row) error {
	if len(row) == 0 || row[0] == nil {
		return dberrors.New(dberrors.InvalidArgument, "primary key value must not be null")
	}
	key, err := ReduceKey(row[0])
	if err != nil {
		return err
	}
	data, err := c.serializer.Serialize(row, c.schema.Columns())
	if err != nil {
		return err
	}
	return c.tree.Insert(key, btree.BytesValue(data))
}

// SelectByPrimaryKey searches for pk and deserializes the matching record,
// if any.
func (c *ClusteredIndex) SelectByPrimaryKey(pk any) (record.Row, bool, error) {
	key, err := ReduceKey(pk)
	if err != nil {
		return nil, false, err
	}
	val, ok, err := c.tree.Search(key)
	if err != nil || !ok {
		return nil, ok, err
	}
	row, err := c.serializer.Deserialize(val.Bytes, c.schema.Columns())
	return row, true, err
}

// DeleteByPrimaryKey removes the record stored under pk, if any.
func (c *ClusteredIndex) DeleteByPrimaryKey(pk any) (bool, error) {
	key, err := ReduceKey(pk)
	if err != nil {
		return false, err
	}
	return c.tree.Delete(key)
}

// RangeSelect walks the leaf chain from startKey through endKey,
// deserializing every hit. Per the key-domain limitation, this is only
// semantically meaningful when the primary key is itself an int32 (no
// hashing applied).
func (c *ClusteredIndex) RangeSelect(startKey, endKey int32) ([]record.Row, error) {
	vals, err := c.tree.RangeSearch(startKey, endKey)
	if err != nil {
		return nil, err
	}
	return c.decodeAll(vals)
}

// GetAllRows deserializes every leaf value in ascending key order.
func (c *ClusteredIndex) GetAllRows() ([]record.Row, error) {
	vals, err := c.tree.GetAll()
	if err != nil {
		return nil, err
	}
	return c.decodeAll(vals)
}

func (c *ClusteredIndex) decodeAll(vals []btree.Value) ([]record.Row, error) {
	rows := make([]record.Row, 0, len(vals))
	cols := c.schema.Columns()
	for _, v := range vals {
		row, err := c.serializer.Deserialize(v.Bytes, cols)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}
