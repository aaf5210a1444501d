package wire

import (
	"encoding/binary"
	"testing"
)

func packet(token, paise uint32, extra ...byte) []byte {
	buf := make([]byte, 8+len(extra))
	binary.BigEndian.PutUint32(buf[0:4], token)
	binary.BigEndian.PutUint32(buf[4:8], paise)
	copy(buf[8:], extra)
	return buf
}

func frame(packets ...[]byte) []byte {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, uint16(len(packets)))
	for _, p := range packets {
		lenPrefix := make([]byte, 2)
		binary.BigEndian.PutUint16(lenPrefix, uint16(len(p)))
		buf = append(buf, lenPrefix...)
		buf = append(buf, p...)
	}
	return buf
}

func TestDecodeSinglePacket(t *testing.T) {
	f := frame(packet(256265, 150075))
	ticks, err := Decode(f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ticks) != 1 {
		t.Fatalf("expected 1 tick, got %d", len(ticks))
	}
	if ticks[0].InstrumentToken != 256265 {
		t.Fatalf("unexpected token: %d", ticks[0].InstrumentToken)
	}
	if ticks[0].Price != 1500.75 {
		t.Fatalf("unexpected price: %v", ticks[0].Price)
	}
}

func TestDecodeSkipsShortPackets(t *testing.T) {
	short := []byte{0x01, 0x02, 0x03}
	f := frame(short, packet(1, 100))
	ticks, err := Decode(f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ticks) != 1 {
		t.Fatalf("expected short packet to be skipped, got %d ticks", len(ticks))
	}
}

func TestDecodeMultiplePackets(t *testing.T) {
	f := frame(packet(1, 100), packet(2, 200), packet(3, 300))
	ticks, err := Decode(f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ticks) != 3 {
		t.Fatalf("expected 3 ticks, got %d", len(ticks))
	}
	if ticks[2].InstrumentToken != 3 || ticks[2].Price != 3.0 {
		t.Fatalf("unexpected third tick: %+v", ticks[2])
	}
}

func TestDecodeTruncatedSinglePacketFrameReturnsNoTicksAndError(t *testing.T) {
	f := frame(packet(1, 100))
	truncated := f[:len(f)-3]
	ticks, err := Decode(truncated)
	if err == nil {
		t.Fatalf("expected error for truncated frame")
	}
	if len(ticks) != 0 {
		t.Fatalf("expected no complete ticks from truncated frame, got %d", len(ticks))
	}
}

func TestDecodeEmptyFrame(t *testing.T) {
	f := frame()
	ticks, err := Decode(f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ticks) != 0 {
		t.Fatalf("expected 0 ticks for empty frame, got %d", len(ticks))
	}
}

func TestDecodePacketWithTrailingBytes(t *testing.T) {
	f := frame(packet(9, 500, 0xAA, 0xBB))
	ticks, err := Decode(f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ticks) != 1 || ticks[0].Price != 5.0 {
		t.Fatalf("unexpected result: %+v", ticks)
	}
}
