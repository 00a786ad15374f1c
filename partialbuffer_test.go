package remotezip

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func newTestPartialBuffer(data string, stream bool) *PartialBuffer {
	if stream {
		return newStreamPartialBuffer(io.NopCloser(bytes.NewReader([]byte(data))), 10, int64(len(data)))
	}
	return newMemPartialBuffer([]byte(data), 10, nil)
}

func verifyPartialBuffer(t *testing.T, stream bool) {
	t.Helper()
	pb := newTestPartialBuffer("aaaabbcccdd", stream)
	if got := pb.Tell(); got != 10 {
		t.Fatalf("Tell() = %d, want 10", got)
	}
	if got := pb.Size(); got != 11 {
		t.Fatalf("Size() = %d, want 11", got)
	}

	for _, want := range []string{"aaaab", "bcc", "cdd"} {
		got, err := pb.Read(len(want))
		if err != nil {
			t.Fatalf("Read(%d): %v", len(want), err)
		}
		if string(got) != want {
			t.Fatalf("Read(%d) = %q, want %q", len(want), got, want)
		}
	}
	if err := pb.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestPartialBufferStatic(t *testing.T) {
	verifyPartialBuffer(t, false)
}

func TestPartialBufferStream(t *testing.T) {
	verifyPartialBuffer(t, true)
}

func TestPartialBufferStaticSeek(t *testing.T) {
	pb := newTestPartialBuffer("aaaabbcccdd", false)

	if pos, err := pb.Seek(10, 0); err != nil || pos != 10 {
		t.Fatalf("Seek(10,0) = %d, %v", pos, err)
	}
	if got, _ := pb.Read(5); string(got) != "aaaab" {
		t.Fatalf("Read(5) = %q", got)
	}
	if pos, err := pb.Seek(12, 0); err != nil || pos != 12 {
		t.Fatalf("Seek(12,0) = %d, %v", pos, err)
	}
	if got, _ := pb.Read(5); string(got) != "aabbc" {
		t.Fatalf("Read(5) = %q", got)
	}
	if pos, err := pb.Seek(20, 0); err != nil || pos != 20 {
		t.Fatalf("Seek(20,0) = %d, %v", pos, err)
	}
	if got, _ := pb.Read(1); string(got) != "d" {
		t.Fatalf("Read(1) = %q", got)
	}
	if pos, err := pb.Seek(10, 0); err != nil || pos != 10 {
		t.Fatalf("Seek(10,0) = %d, %v", pos, err)
	}
	if pos, err := pb.Seek(2, 1); err != nil || pos != 12 {
		t.Fatalf("Seek(2,1) = %d, %v", pos, err)
	}
}

func TestPartialBufferStaticReadNoSize(t *testing.T) {
	pb := newTestPartialBuffer("aaaabbcccdd", false)

	if got, _ := pb.Read(0); string(got) != "aaaabbcccdd" {
		t.Fatalf("Read(0) = %q", got)
	}
	if got := pb.Tell(); got != 21 {
		t.Fatalf("Tell() = %d, want 21", got)
	}
	if pos, err := pb.Seek(15, 0); err != nil || pos != 15 {
		t.Fatalf("Seek(15,0) = %d, %v", pos, err)
	}
	if got, _ := pb.Read(0); string(got) != "bcccdd" {
		t.Fatalf("Read(0) = %q", got)
	}
	if pos, err := pb.Seek(-5, 2); err != nil || pos != 16 {
		t.Fatalf("Seek(-5,2) = %d, %v", pos, err)
	}
	if got, _ := pb.Read(0); string(got) != "cccdd" {
		t.Fatalf("Read(0) = %q", got)
	}
	if got, _ := pb.Read(0); len(got) != 0 {
		t.Fatalf("Read(0) at EOF = %q, want empty", got)
	}
}

func TestPartialBufferStaticOutOfBound(t *testing.T) {
	pb := newTestPartialBuffer("aaaabbcccdd", false)

	_, err := pb.Seek(21, 0)
	var oob *OutOfBoundError
	if !errors.As(err, &oob) {
		t.Fatalf("Seek(21,0) err = %v, want *OutOfBoundError", err)
	}
}

func TestPartialBufferStreamForwardSeek(t *testing.T) {
	pb := newTestPartialBuffer("aaaabbcccdd", true)

	if pos, err := pb.Seek(12, 0); err != nil || pos != 12 {
		t.Fatalf("Seek(12,0) = %d, %v", pos, err)
	}
	if got, _ := pb.Read(3); string(got) != "aab" {
		t.Fatalf("Read(3) = %q", got)
	}
	if pos, err := pb.Seek(2, 1); err != nil || pos != 17 {
		t.Fatalf("Seek(2,1) = %d, %v", pos, err)
	}
	if got, _ := pb.Read(0); string(got) != "ccdd" {
		t.Fatalf("Read(0) = %q", got)
	}

	pos, err := pb.Seek(12, 0)
	var oob *OutOfBoundError
	if !errors.As(err, &oob) || oob.Reason != "negative seek not supported" {
		t.Fatalf("Seek(12,0) after forward read err = %v, want negative-seek OutOfBoundError", err)
	}
	if pos != 12 {
		t.Fatalf("Seek(12,0) position = %d, want 12", pos)
	}
}
