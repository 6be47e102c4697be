package xl710

import (
	"encoding/binary"
	"testing"

	"github.com/ethermark/i40e/dma"
	"github.com/ethermark/i40e/internal/regio"
)

func newTestRxData(t *testing.T, cfg Config) (*RxData, *regio.File) {
	t.Helper()
	cfg = cfg.WithDefaults()
	region := dma.NewRegion(0x10000, 32*1024*1024)
	regs := regio.NewFile()
	state := newInstanceState(nil, nil)
	state.set(StateStarted)
	rx, err := newRxData(cfg, region, regs, nil, state, nil)
	if err != nil {
		t.Fatalf("newRxData: %v", err)
	}
	return rx, regs
}

func setRxStatus(rx *RxData, i int, status uint64) {
	d := rxDescriptorAt(rx.descBuf.Host, i)
	binary.LittleEndian.PutUint64(d.raw[8:16], status)
}

// writeRxCompletion fills ring position i's armed buffer with payload and
// marks its descriptor Done/EOP with the given packet type and checksum
// status bits, simulating what hardware would write back.
func writeRxCompletion(rx *RxData, i int, payload []byte, ptype int, l3l4pValid bool, extraStatus uint64) {
	slot := rx.slots[i]
	copy(slot.buf.Host[ipAlignPad:], payload)

	status := uint64(rxDD) | uint64(rxEOP) | uint64(len(payload))<<rxLengthShift | uint64(ptype)<<rxPtypeShift | extraStatus
	if l3l4pValid {
		status |= rxL3L4P
	}

	setRxStatus(rx, i, status)
}

func TestRxCopyPath(t *testing.T) {
	cfg := Config{RingSize: 8, MTU: 1500}
	rx, regs := newTestRxData(t, cfg)

	payload := make([]byte, 64)
	for i := range payload {
		payload[i] = byte(i)
	}
	writeRxCompletion(rx, 0, payload, ptypeIPv4TCP, true, rxIPv4HdrOK|rxL4CksumOK)

	frames := rx.poll(QuotaUnlimited)
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	f := frames[0]
	if f.Len() != len(payload) {
		t.Fatalf("got frame len %d, want %d", f.Len(), len(payload))
	}
	got, err := f.bytesAt(0, len(payload))
	if err != nil {
		t.Fatalf("bytesAt: %v", err)
	}
	for i := range payload {
		if got[i] != payload[i] {
			t.Fatalf("byte %d: got %d want %d", i, got[i], payload[i])
		}
	}

	if rx.head != 1 {
		t.Fatalf("got head %d, want 1", rx.head)
	}
	if got := regs.Read32(RxTailOffset); got != 0 {
		t.Fatalf("got tail register %d, want 0 ((head-1) mod ring)", got)
	}
	if rx.delivered != 1 {
		t.Fatalf("got delivered counter %d, want 1", rx.delivered)
	}
}

func TestRxBindThenRecycle(t *testing.T) {
	cfg := Config{RingSize: 8, MTU: 1500}
	rx, _ := newTestRxData(t, cfg)
	// WithDefaults treats a zero threshold as "unset"; force it back to
	// zero post-construction so every frame takes the bind path, per
	// the "copy threshold reduced to 0" scenario this test covers.
	rx.cfg.RxCopyThreshold = 0

	freeBefore := rx.free.len()

	payload := make([]byte, 1500)
	writeRxCompletion(rx, 0, payload, ptypeIPv4, false, 0)

	frames := rx.poll(QuotaUnlimited)
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	f := frames[0]
	if f.Loan == nil {
		t.Fatal("zero-copy threshold of 0 did not produce a loan")
	}
	if got := rx.free.len(); got != freeBefore-1 {
		t.Fatalf("got free list len %d, want %d after binding one slot", got, freeBefore-1)
	}

	loan := f.Loan
	if got := loan.refCount(); got != 1 {
		t.Fatalf("got loan refcount %d, want 1", got)
	}

	loan.Free()

	if got := loan.refCount(); got != 0 {
		t.Fatalf("got loan refcount %d after Free, want 0", got)
	}
	if got := rx.free.len(); got != freeBefore {
		t.Fatalf("got free list len %d after recycle, want %d", got, freeBefore)
	}

	// Re-delivering must be able to allocate the recycled slot again.
	writeRxCompletion(rx, 1, payload, ptypeIPv4, false, 0)
	frames2 := rx.poll(QuotaUnlimited)
	if len(frames2) != 1 || frames2[0].Loan == nil {
		t.Fatal("recycled slot was not allocatable on a second delivery")
	}
}

func TestRxOutstandingLoansAndDrainSignal(t *testing.T) {
	cfg := Config{RingSize: 8, MTU: 1500}
	rx, _ := newTestRxData(t, cfg)
	rx.cfg.RxCopyThreshold = 0

	payload := make([]byte, 100)
	writeRxCompletion(rx, 0, payload, ptypeIPv4, false, 0)
	frames := rx.poll(QuotaUnlimited)
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}

	if got := rx.outstandingLoans(); got != 1 {
		t.Fatalf("got outstandingLoans %d, want 1", got)
	}

	frames[0].Loan.Free()

	select {
	case <-rx.drained:
	default:
		t.Fatal("recycleSlot did not signal the drained channel")
	}

	if got := rx.outstandingLoans(); got != 0 {
		t.Fatalf("got outstandingLoans %d after release, want 0", got)
	}
}

func TestRxFatalErrorDiscardsAndRearms(t *testing.T) {
	cfg := Config{RingSize: 8, MTU: 1500}
	rx, _ := newTestRxData(t, cfg)

	payload := make([]byte, 64)
	writeRxCompletion(rx, 0, payload, ptypeIPv4, true, 1<<2) // any rxErrorMask bit

	frames := rx.poll(QuotaUnlimited)
	if len(frames) != 0 {
		t.Fatalf("got %d frames, want 0 (fatal error discarded)", len(frames))
	}
	if rx.errors != 1 {
		t.Fatalf("got errors counter %d, want 1", rx.errors)
	}
	if rx.head != 1 {
		t.Fatalf("got head %d, want 1 (still advances past a discarded descriptor)", rx.head)
	}
}

func TestRxMissingEOPPanics(t *testing.T) {
	cfg := Config{RingSize: 8, MTU: 1500}
	rx, _ := newTestRxData(t, cfg)

	payload := make([]byte, 64)
	copy(rx.slots[0].buf.Host[ipAlignPad:], payload)
	setRxStatus(rx, 0, uint64(rxDD)|uint64(len(payload))<<rxLengthShift) // no rxEOP

	defer func() {
		if recover() == nil {
			t.Fatal("poll did not panic on a descriptor missing EOP")
		}
	}()
	rx.poll(QuotaUnlimited)
}
