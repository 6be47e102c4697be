package xl710

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/ethermark/i40e/dma"
	"github.com/ethermark/i40e/internal/regio"
)

type fakeFaultManager struct {
	calls []struct {
		severity Severity
		msg      string
	}
}

func (f *fakeFaultManager) ServiceImpact(severity Severity, msg string) {
	f.calls = append(f.calls, struct {
		severity Severity
		msg      string
	}{severity, msg})
}

func newTestTrqpair(t *testing.T, cfg Config) (*Trqpair, *regio.File, *regio.File) {
	t.Helper()
	region := dma.NewRegion(0x30000, 64*1024*1024)
	rxRegs := regio.NewFile()
	txRegs := regio.NewFile()
	p, err := NewTrqpair(cfg, region, rxRegs, txRegs, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewTrqpair: %v", err)
	}
	p.Start()
	return p, rxRegs, txRegs
}

func TestTrqpairShutdownDrainsOutstandingLoanAndTransmit(t *testing.T) {
	cfg := Config{RingSize: 8, MTU: 1500, BlockThreshold: 1}
	p, _, _ := newTestTrqpair(t, cfg)
	// force the receive to take the bind path, so there is a loan to drain
	p.Rx.cfg.RxCopyThreshold = 0

	payload := make([]byte, 256)
	writeRxCompletion(p.Rx, 0, payload, ptypeIPv4, false, 0)
	frames := p.Poll(QuotaUnlimited)
	if len(frames) != 1 || frames[0].Loan == nil {
		t.Fatalf("expected one loaned frame, got %d", len(frames))
	}

	sent := newFrameChain(buildIPv4TCPFrame(64))
	if rejected, err := p.Send(sent); err != nil || rejected != nil {
		t.Fatalf("Send: rejected=%v err=%v", rejected, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- p.Shutdown(ctx) }()

	select {
	case err := <-done:
		t.Fatalf("Shutdown returned early (err=%v) while a loan and a transmit were still outstanding", err)
	case <-time.After(20 * time.Millisecond):
	}

	// Release the loan and let the device report the transmit complete.
	frames[0].Loan.Free()
	binary.LittleEndian.PutUint32(p.Tx.descBuf.Host[p.Tx.writebackOff:p.Tx.writebackOff+4], uint32(p.Tx.tail))

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Shutdown: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown did not complete after both drains were satisfied")
	}
}

func TestTrqpairShutdownRespectsContextCancellation(t *testing.T) {
	cfg := Config{RingSize: 8, MTU: 1500, BlockThreshold: 1}
	p, _, _ := newTestTrqpair(t, cfg)
	p.Rx.cfg.RxCopyThreshold = 0

	payload := make([]byte, 256)
	writeRxCompletion(p.Rx, 0, payload, ptypeIPv4, false, 0)
	frames := p.Poll(QuotaUnlimited)
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	// Deliberately never release the loan.

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := p.Shutdown(ctx); err == nil {
		t.Fatal("Shutdown did not return an error when the context expired mid-drain")
	}
}

func TestTrqpairDegradeBlocksAdmissionAndReportsFault(t *testing.T) {
	fm := &fakeFaultManager{}
	cfg := Config{RingSize: 8, MTU: 1500, BlockThreshold: 1}
	region := dma.NewRegion(0x40000, 32*1024*1024)
	rxRegs := regio.NewFile()
	txRegs := regio.NewFile()
	p, err := NewTrqpair(cfg, region, rxRegs, txRegs, nil, fm, nil, nil)
	if err != nil {
		t.Fatalf("NewTrqpair: %v", err)
	}
	p.Start()

	p.Degrade(SeverityLost, "simulated bus fault")

	started, _, errored, _ := p.Fault()
	if !started || !errored {
		t.Fatalf("got started=%v errored=%v, want both true", started, errored)
	}
	if len(fm.calls) != 1 || fm.calls[0].severity != SeverityLost {
		t.Fatalf("got %d fault-manager calls, want exactly 1 at SeverityLost", len(fm.calls))
	}

	frame := newFrameChain(buildIPv4TCPFrame(64))
	rejected, err := p.Send(frame)
	if err != ErrNotAdmitted || rejected != frame {
		t.Fatalf("Send after degrade: rejected=%v err=%v, want ErrNotAdmitted", rejected, err)
	}
}

func TestTrqpairRegisterFaultDegradesInstance(t *testing.T) {
	cfg := Config{RingSize: 8, MTU: 1500, BlockThreshold: 1}
	region := dma.NewRegion(0x50000, 32*1024*1024)
	rxRegs := regio.NewFile()
	txRegs := regio.NewFile()
	p, err := NewTrqpair(cfg, region, rxRegs, txRegs, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewTrqpair: %v", err)
	}
	p.Start()

	txRegs.InjectFault(errors.New("simulated PCIe bus error"))

	frame := newFrameChain(buildIPv4TCPFrame(64))
	if _, err := p.Send(frame); err != ErrNotAdmitted {
		t.Fatalf("Send after register fault: got %v, want ErrNotAdmitted", err)
	}

	if _, _, errored, _ := p.Fault(); !errored {
		t.Fatal("instance did not degrade after a register fault")
	}
}
