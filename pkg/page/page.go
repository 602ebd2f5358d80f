// Package page implements the fixed-size disk page format shared by every
// index and table: a 16 KiB buffer with a typed 12-byte header, used as the
// unit of I/O for both the page manager and the buffer pool.
package page

import (
	"github.com/relcore/reldb/pkg/dberrors"
)

// Size is the fixed on-disk and in-memory size of every page.
const Size = 16384

// HeaderSize is the length of the typed page header preceding the payload.
const HeaderSize = 12

// PayloadSize is the number of usable bytes following the header.
const PayloadSize = Size - HeaderSize

// Type tags what a page's payload holds.
type Type uint8

const (
	// TypeData marks a slot-directory payload reserved for future row
	// overflow storage. The current engine never writes rows through it.
	TypeData Type = iota
	// TypeIndex marks a payload holding exactly one serialized B+ tree node.
	TypeIndex
)

// Page is a 16 KiB buffer plus a typed header: {pageType:1}{pageId:4}{reserved:7}.
type Page struct {
	buf []byte
}

// New allocates a zeroed page stamped with the given type and id.
func New(pageType Type, pageId uint32) *Page {
	p := &Page{buf: make([]byte, Size)}
	p.SetType(pageType)
	p.SetPageId(pageId)
	return p
}

// FromBytes wraps an existing Size-length buffer as a Page without copying.
// It is the caller's responsibility to pass a slice of exactly Size bytes.
func FromBytes(buf []byte) (*Page, error) {
	if len(buf) != Size {
		return nil, dberrors.New(dberrors.InvalidArgument, "page buffer must be %d bytes, got %d", Size, len(buf))
	}
	return &Page{buf: buf}, nil
}

// Type returns the page's type byte.
func (p *Page) Type() Type { return Type(p.buf[0]) }

// SetType overwrites the page's type byte.
func (p *Page) SetType(t Type) { p.buf[0] = byte(t) }

// PageId returns the page's stamped id.
func (p *Page) PageId() uint32 {
	return beUint32(p.buf[1:5])
}

// SetPageId overwrites the page's stamped id.
func (p *Page) SetPageId(id uint32) {
	putBeUint32(p.buf[1:5], id)
}

// Payload returns the mutable payload slice (bytes 12..Size).
func (p *Page) Payload() []byte {
	return p.buf[HeaderSize:]
}

// Bytes returns the full underlying Size-length buffer, header included.
func (p *Page) Bytes() []byte {
	return p.buf
}

// DataPage is a Page typed for the (unused) slot-directory payload.
type DataPage struct {
	*Page
}

// NewDataPage constructs a blank DataPage for pageId.
func NewDataPage(pageId uint32) *DataPage {
	return &DataPage{Page: New(TypeData, pageId)}
}

// IndexPage is a Page typed to carry exactly one serialized B+ tree node.
type IndexPage struct {
	*Page
}

// NewIndexPage constructs a blank IndexPage for pageId.
func NewIndexPage(pageId uint32) *IndexPage {
	return &IndexPage{Page: New(TypeIndex, pageId)}
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func putBeUint32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}
