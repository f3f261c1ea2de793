package core

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"sort"

	"LendLedger/internal/event"
	"LendLedger/internal/ledger"

	"github.com/google/uuid"
)

// digest accumulates canonical little-endian bytes for the state hash.
type digest struct {
	buf []byte
}

func (d *digest) u64(v uint64) {
	d.buf = binary.LittleEndian.AppendUint64(d.buf, v)
}

func (d *digest) i64(v int64) {
	d.u64(uint64(v))
}

func (d *digest) id(id uuid.UUID) {
	d.buf = append(d.buf, id[:]...)
}

func (d *digest) str(s string) {
	d.u64(uint64(len(s)))
	d.buf = append(d.buf, s...)
}

func (d *digest) raw(b []byte) {
	d.u64(uint64(len(b)))
	d.buf = append(d.buf, b...)
}

// computeStateDigest creates canonical bytes for the state hash: the
// command identity plus every record and balance the command wrote.
func (c *DeterministicCore) computeStateDigest(cmd event.Command, out *CoreOutput) []byte {
	var d digest
	head := cmd.Head()
	d.u64(uint64(cmd.CommandType()))
	d.id(head.CommandID)
	d.u64(head.Slot)

	m := out.Market
	d.id(m.ID)
	d.id(m.Owner)
	d.id(m.QuoteMint)
	d.u64(uint64(m.Flags))
	d.u64(uint64(len(m.Reserves)))

	for _, r := range out.Reserves {
		d.u64(uint64(r.Index))
		d.id(r.ID)
		d.u64(r.State.AccruedUntil)
		debt := r.State.OutstandingDebt.Bytes32()
		fees := r.State.UncollectedFees.Bytes32()
		d.buf = append(d.buf, debt[:]...)
		d.buf = append(d.buf, fees[:]...)
		d.u64(r.State.TotalDeposits)
		d.u64(r.State.TotalDepositNotes)
		d.u64(r.State.TotalLoanNotes)
		price := r.Price.Value.Bytes32()
		d.buf = append(d.buf, price[:]...)
		d.u64(r.Price.Slot)
		cfg, _ := json.Marshal(r.Config)
		d.raw(cfg)
	}

	for _, ob := range out.Obligations {
		d.id(ob.ID)
		d.u64(uint64(len(ob.Collateral)))
		for _, p := range ob.Collateral {
			d.id(p.Custody)
			d.u64(uint64(p.ReserveIndex))
			d.u64(p.DepositNotes)
		}
		d.u64(uint64(len(ob.Loans)))
		for _, p := range ob.Loans {
			d.id(p.Custody)
			d.u64(uint64(p.ReserveIndex))
			d.u64(p.LoanNotes)
		}
	}
	for _, id := range out.ClosedObligations {
		d.id(id)
	}
	for _, acct := range out.DepositAccounts {
		d.id(acct.ID)
	}
	for _, id := range out.ClosedAccounts {
		d.id(id)
	}

	keys := make([]ledger.AccountKey, 0, len(out.Balances))
	for k := range out.Balances {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].AccountPath() < keys[j].AccountPath() })
	for _, k := range keys {
		d.str(k.AccountPath())
		d.i64(out.Balances[k])
	}
	return d.buf
}

func sortedIDs[V any](m map[uuid.UUID]V) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return bytes.Compare(ids[i][:], ids[j][:]) < 0 })
	return ids
}

