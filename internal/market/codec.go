package market

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/alanyoungcy/binarymarket/internal/domain"
)

// RecordSpace is the encoded size of a MarketRecord in bytes.
//
//	offset size field
//	0      8    account discriminator
//	8      1    bump
//	9      32   creator
//	41     8    value (f64)
//	49     1    range
//	50     1    result
//	51     2    status (variant, reserved)
//	53     8    resolution_date (i64)
//	61     32   token_a
//	93     32   token_b
//	125    56   token_a_amount, token_b_amount, token_price_a, token_price_b,
//	            yes_amount, no_amount, total_reserve (u64 each)
//	181    32   feed
const RecordSpace = 213

// Rent schedule used to derive the default escrow floor.
const (
	accountOverhead     = 128
	lamportsPerByteYear = 3480
	exemptionYears      = 2
	discriminatorLen    = 8
	pubkeyLen           = 32
)

var discriminator = func() [discriminatorLen]byte {
	sum := sha256.Sum256([]byte("account:Market"))
	var d [discriminatorLen]byte
	copy(d[:], sum[:discriminatorLen])
	return d
}()

// RentExemptMinimum returns the floor balance for an account of size bytes.
func RentExemptMinimum(size int) uint64 {
	return uint64(size+accountOverhead) * lamportsPerByteYear * exemptionYears
}

type writer struct {
	buf []byte
	off int
}

func (w *writer) bytes(b []byte) {
	w.off += copy(w.buf[w.off:], b)
}

func (w *writer) u8(v uint8) {
	w.buf[w.off] = v
	w.off++
}

func (w *writer) u64(v uint64) {
	binary.LittleEndian.PutUint64(w.buf[w.off:], v)
	w.off += 8
}

// Encode serializes the on-ledger fields of m. ID, Address, metadata and
// timestamps are not part of the layout.
func Encode(m domain.MarketRecord) []byte {
	w := &writer{buf: make([]byte, RecordSpace)}
	w.bytes(discriminator[:])
	w.u8(m.Bump)
	w.bytes(m.Creator.Bytes())
	w.u64(math.Float64bits(m.Value))
	w.u8(m.Range)
	if m.Result {
		w.u8(1)
	} else {
		w.u8(0)
	}
	w.u8(uint8(m.Status))
	w.u8(0)
	w.u64(uint64(m.ResolutionDate))
	w.bytes(m.TokenA.Bytes())
	w.bytes(m.TokenB.Bytes())
	for _, v := range []uint64{
		m.TokenAAmount, m.TokenBAmount, m.TokenPriceA, m.TokenPriceB,
		m.YesAmount, m.NoAmount, m.TotalReserve,
	} {
		w.u64(v)
	}
	w.bytes(m.Feed.Bytes())
	return w.buf
}

type reader struct {
	buf []byte
	off int
}

func (r *reader) pubkey() domain.Pubkey {
	var p domain.Pubkey
	r.off += copy(p[:], r.buf[r.off:r.off+pubkeyLen])
	return p
}

func (r *reader) u8() uint8 {
	v := r.buf[r.off]
	r.off++
	return v
}

func (r *reader) u64() uint64 {
	v := binary.LittleEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v
}

// Decode parses a record produced by Encode.
func Decode(data []byte) (domain.MarketRecord, error) {
	if len(data) != RecordSpace {
		return domain.MarketRecord{}, fmt.Errorf("market: decode: want %d bytes, got %d", RecordSpace, len(data))
	}
	if [discriminatorLen]byte(data[:discriminatorLen]) != discriminator {
		return domain.MarketRecord{}, fmt.Errorf("market: decode: bad discriminator %x", data[:discriminatorLen])
	}
	r := &reader{buf: data, off: discriminatorLen}

	var m domain.MarketRecord
	m.Bump = r.u8()
	m.Creator = r.pubkey()
	m.Value = math.Float64frombits(r.u64())
	m.Range = r.u8()
	switch b := r.u8(); b {
	case 0:
	case 1:
		m.Result = true
	default:
		return domain.MarketRecord{}, fmt.Errorf("market: decode: bad result byte %d", b)
	}
	m.Status = domain.MarketStatus(r.u8())
	if !m.Status.Valid() {
		return domain.MarketRecord{}, fmt.Errorf("market: decode: bad status %d", m.Status)
	}
	r.u8()
	m.ResolutionDate = int64(r.u64())
	m.TokenA = r.pubkey()
	m.TokenB = r.pubkey()
	m.TokenAAmount = r.u64()
	m.TokenBAmount = r.u64()
	m.TokenPriceA = r.u64()
	m.TokenPriceB = r.u64()
	m.YesAmount = r.u64()
	m.NoAmount = r.u64()
	m.TotalReserve = r.u64()
	m.Feed = r.pubkey()
	return m, nil
}
