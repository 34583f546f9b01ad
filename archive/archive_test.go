package archive

import (
	"bytes"
	"testing"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	sizeID := w.RegisterStream("fields_1_size")
	dataID := w.RegisterStream("fields_1_data")

	parts := [][]byte{
		[]byte("part-zero"),
		[]byte("part-one-longer-payload"),
		[]byte(""),
	}
	for _, p := range parts {
		if _, err := w.AppendPart(sizeID, p); err != nil {
			t.Fatalf("AppendPart(size): %v", err)
		}
	}
	dataParts := [][]byte{[]byte("db-chrom-data-blob")}
	for _, p := range dataParts {
		if _, err := w.AppendPart(dataID, p); err != nil {
			t.Fatalf("AppendPart(data): %v", err)
		}
	}

	if err := w.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	backing := buf.Bytes()
	r, err := OpenReader(bytes.NewReader(backing), int64(len(backing)))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}

	gotSizeID, ok := r.StreamID("fields_1_size")
	if !ok || gotSizeID != sizeID {
		t.Fatalf("StreamID(fields_1_size) = (%d, %v), want (%d, true)", gotSizeID, ok, sizeID)
	}
	if r.NumParts(sizeID) != len(parts) {
		t.Fatalf("NumParts(size) = %d, want %d", r.NumParts(sizeID), len(parts))
	}
	for i, want := range parts {
		got, err := r.ReadPart(sizeID, i)
		if err != nil {
			t.Fatalf("ReadPart(size, %d): %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("ReadPart(size, %d) = %q, want %q", i, got, want)
		}
	}

	gotDataID, ok := r.StreamID("fields_1_data")
	if !ok || gotDataID != dataID {
		t.Fatalf("StreamID(fields_1_data) = (%d, %v), want (%d, true)", gotDataID, ok, dataID)
	}
	got, err := r.ReadPart(dataID, 0)
	if err != nil {
		t.Fatalf("ReadPart(data, 0): %v", err)
	}
	if !bytes.Equal(got, dataParts[0]) {
		t.Fatalf("ReadPart(data, 0) = %q, want %q", got, dataParts[0])
	}
}

func TestCopyPart(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	id := w.RegisterStream("gt_0_data")
	payload := bytes.Repeat([]byte("ACGT"), 1024)
	if _, err := w.AppendPart(id, payload); err != nil {
		t.Fatalf("AppendPart: %v", err)
	}
	if err := w.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	backing := buf.Bytes()
	r, err := OpenReader(bytes.NewReader(backing), int64(len(backing)))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}

	var out bytes.Buffer
	n, err := r.CopyPart(&out, id, 0)
	if err != nil {
		t.Fatalf("CopyPart: %v", err)
	}
	if n != int64(len(payload)) || !bytes.Equal(out.Bytes(), payload) {
		t.Fatalf("CopyPart copied %d bytes, want %d identical bytes", n, len(payload))
	}
}

func TestOpenReaderBadMagic(t *testing.T) {
	backing := append([]byte{0, 0, 0, 0, 0, 0, 0, 0}, "XXXX"...)
	_, err := OpenReader(bytes.NewReader(backing), int64(len(backing)))
	if err == nil {
		t.Fatal("expected an error for bad magic, got nil")
	}
}

func TestReadPartUnknownStream(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	id := w.RegisterStream("only_stream")
	if _, err := w.AppendPart(id, []byte("x")); err != nil {
		t.Fatalf("AppendPart: %v", err)
	}
	if err := w.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	backing := buf.Bytes()
	r, err := OpenReader(bytes.NewReader(backing), int64(len(backing)))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	if _, err := r.ReadPart(id+1, 0); err == nil {
		t.Fatal("expected error reading unknown stream id, got nil")
	}
}
