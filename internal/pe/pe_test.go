package pe

import (
	"encoding/binary"
	"testing"
)

// buildImage assembles a minimal synthetic PE image: MZ stub, e_lfanew
// pointing past it, a PE header whose optHeaderSize is peHeaderFixedSize (so
// the section headers, which start 0x18+optHeaderSize bytes past the
// signature, land 0x18 bytes after the fixed PE header), and the given
// sections appended with their raw data.
func buildImage(t *testing.T, sections []sectionSpec) []byte {
	t.Helper()

	const peOffset = 0x80
	buf := make([]byte, peOffset)
	copy(buf[:2], "MZ")
	binary.LittleEndian.PutUint32(buf[lfanewOffset:], uint32(peOffset))

	header := make([]byte, peHeaderFixedSize)
	copy(header[0:4], "PE\x00\x00")
	binary.LittleEndian.PutUint16(header[4:6], 0x8664)              // machine
	binary.LittleEndian.PutUint16(header[6:8], uint16(len(sections))) // number_of_sections
	binary.LittleEndian.PutUint16(header[20:22], peHeaderFixedSize)  // opt_header_size
	binary.LittleEndian.PutUint32(header[40:44], 0x1000)             // entry_point_rva
	binary.LittleEndian.PutUint64(header[48:56], 0x140000000)        // image_base
	buf = append(buf, header...)

	sectionStart := peOffset + peHeaderFixedSize + 0x18
	for len(buf) < sectionStart {
		buf = append(buf, 0)
	}

	dataStart := sectionStart + len(sections)*sectionHeaderSize
	cursor := dataStart
	for _, s := range sections {
		virtSize := s.virtSize
		if virtSize == 0 {
			virtSize = uint32(len(s.data))
		}
		sh := make([]byte, sectionHeaderSize)
		copy(sh[0:8], s.name)
		binary.LittleEndian.PutUint32(sh[8:12], virtSize)
		binary.LittleEndian.PutUint32(sh[12:16], s.virtAddr)
		binary.LittleEndian.PutUint32(sh[16:20], uint32(len(s.data)))
		binary.LittleEndian.PutUint32(sh[20:24], uint32(cursor))
		binary.LittleEndian.PutUint32(sh[36:40], s.characteristics)
		buf = append(buf, sh...)
		cursor += len(s.data)
	}
	for _, s := range sections {
		buf = append(buf, s.data...)
	}

	return buf
}

type sectionSpec struct {
	name            string
	virtAddr        uint32
	virtSize        uint32
	characteristics uint32
	data            []byte
}

func TestParseSectionsAndPermissions(t *testing.T) {
	img := buildImage(t, []sectionSpec{
		{name: ".text", virtAddr: 0x1000, characteristics: characteristicCode | characteristicMemRead, data: []byte{0x90, 0x90, 0xC3}},
		{name: ".data", virtAddr: 0x2000, characteristics: characteristicMemRead | characteristicMemWrite, data: []byte{1, 2, 3, 4}},
	})

	parsed, err := Parse(img)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if parsed.ImageBase != 0x140000000 {
		t.Fatalf("ImageBase = 0x%x", parsed.ImageBase)
	}
	if parsed.EntryPoint != 0x140000000+0x1000 {
		t.Fatalf("EntryPoint = 0x%x", parsed.EntryPoint)
	}

	text := parsed.Sections[0]
	if text == nil {
		t.Fatalf("expected section 0")
	}
	if !text.Permissions.Readable || !text.Permissions.Executable || text.Permissions.Writable {
		t.Fatalf("unexpected .text permissions: %+v", text.Permissions)
	}
	if string(text.Data) != "\x90\x90\xC3" {
		t.Fatalf("unexpected .text data: %x", text.Data)
	}

	data := parsed.Sections[1]
	if !data.Permissions.Readable || !data.Permissions.Writable || data.Permissions.Executable {
		t.Fatalf("unexpected .data permissions: %+v", data.Permissions)
	}

	for i := 2; i < MaxSections; i++ {
		if parsed.Sections[i] != nil {
			t.Fatalf("expected nil trailing section at %d", i)
		}
	}
}

func TestParseReportsVirtSizeLargerThanRawData(t *testing.T) {
	img := buildImage(t, []sectionSpec{
		{name: ".bss", virtAddr: 0x3000, virtSize: 0x4000, characteristics: characteristicMemRead | characteristicMemWrite, data: []byte{1, 2}},
	})
	parsed, err := Parse(img)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	bss := parsed.Sections[0]
	if bss.VirtSize != 0x4000 {
		t.Fatalf("VirtSize = 0x%x, want 0x4000", bss.VirtSize)
	}
	if len(bss.Data) != 2 {
		t.Fatalf("expected raw data len 2, got %d", len(bss.Data))
	}
}

func TestParseRejectsMissingMZ(t *testing.T) {
	if _, err := Parse([]byte("XX")); err != ErrInvalidMZHeader {
		t.Fatalf("expected ErrInvalidMZHeader, got %v", err)
	}
}

func TestParseRejectsTwoByteOnlyPEMatch(t *testing.T) {
	img := buildImage(t, nil)
	peOffset := 0x80
	img[peOffset+2] = 'X' // corrupt the 3rd signature byte (should be 0x00)
	img[peOffset+3] = 'X'
	if _, err := Parse(img); err != ErrInvalidPEHeader {
		t.Fatalf("expected ErrInvalidPEHeader for corrupted trailing signature bytes, got %v", err)
	}
}

func TestParseRejectsTooManySections(t *testing.T) {
	specs := make([]sectionSpec, MaxSections+1)
	for i := range specs {
		specs[i] = sectionSpec{name: ".s", virtAddr: uint32(i * 0x1000), characteristics: characteristicMemRead}
	}
	img := buildImage(t, specs)
	if _, err := Parse(img); err != ErrTooManySections {
		t.Fatalf("expected ErrTooManySections, got %v", err)
	}
}

func TestParseRejectsTruncatedSectionData(t *testing.T) {
	img := buildImage(t, []sectionSpec{
		{name: ".text", virtAddr: 0x1000, characteristics: characteristicCode, data: []byte{1, 2, 3}},
	})
	if _, err := Parse(img[:len(img)-3]); err != ErrTruncated {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
}
