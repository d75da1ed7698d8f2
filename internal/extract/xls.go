package extract

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf16"

	"github.com/extrame/xls"
)

const (
	oleSectorSize      = 512
	oleShortSectorSize = 64
	oleHeaderMSAT      = 109
	oleDirEntrySize    = 128
	oleEndOfChain      = 0xFFFFFFFE
	oleFreeSector      = 0xFFFFFFFF

	biffSST = 0x00FC

	// BIFF8 caps a sheet at 256 columns.
	maxLegacyColumns = 256
)

var oleSignature = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// xlsText reads a legacy BIFF workbook and renders it like xlsxText.
func xlsText(data []byte) (string, error) {
	if err := checkLegacyWorkbook(data); err != nil {
		return "", err
	}
	book, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return "", fmt.Errorf("open xls: %w", err)
	}
	if book == nil {
		return "", errors.New("xls has no Workbook stream")
	}

	sheets := make([]sheetRows, 0, book.NumSheets())
	for i := 0; i < book.NumSheets(); i++ {
		sheet := book.GetSheet(i)
		if sheet == nil {
			continue
		}
		rows := make([][]string, 0, int(sheet.MaxRow)+1)
		for r := 0; r <= int(sheet.MaxRow); r++ {
			rows = append(rows, legacyCells(legacyRow(sheet, r)))
		}
		sheets = append(sheets, sheetRows{name: sheet.Name, rows: rows})
	}
	return renderSheets(sheets)
}

// legacyRow returns nil for indexes the sheet has no row for; WorkSheet.Row
// panics on those.
func legacyRow(sheet *xls.WorkSheet, i int) (row *xls.Row) {
	defer func() {
		if recover() != nil {
			row = nil
		}
	}()
	return sheet.Row(i)
}

func legacyCells(row *xls.Row) []string {
	if row == nil {
		return nil
	}
	// Rows built from cells alone carry no ROW record and report 0.
	last := row.LastCol()
	if last <= 0 || last > maxLegacyColumns {
		last = maxLegacyColumns
	}
	cells := make([]string, last)
	for c := range cells {
		cells[c] = row.Col(c)
	}
	for len(cells) > 0 && cells[len(cells)-1] == "" {
		cells = cells[:len(cells)-1]
	}
	return cells
}

// checkLegacyWorkbook walks every OLE2 sector chain the BIFF reader follows
// and rejects files whose chains leave the allocation table or loop. The
// reader calls log.Fatal on a broken chain and never returns from a cycle.
func checkLegacyWorkbook(data []byte) error {
	if len(data) < oleSectorSize || !bytes.Equal(data[:len(oleSignature)], oleSignature) {
		return errors.New("not an OLE2 container")
	}
	le := binary.LittleEndian
	if le.Uint16(data[28:]) != 0xFFFE || le.Uint16(data[30:]) != 9 {
		return errors.New("unsupported OLE2 sector layout")
	}

	c := &oleFile{
		data:    data,
		sectors: uint32((len(data) - 1) / oleSectorSize),
	}
	if err := c.loadFAT(); err != nil {
		return err
	}
	dir, err := walkChain(c.fat, le.Uint32(data[48:]), c.sector)
	if err != nil {
		return fmt.Errorf("directory: %w", err)
	}

	var book, root []byte
	for off := 0; off+oleDirEntrySize <= len(dir); off += oleDirEntrySize {
		entry := dir[off : off+oleDirEntrySize]
		if entry[66] == 0 {
			break
		}
		switch dirEntryName(entry) {
		case "Workbook", "Book":
			book = entry
		case "Root Entry":
			root = entry
		}
	}
	if book == nil {
		return errors.New("xls has no Workbook stream")
	}

	start, size := le.Uint32(book[116:]), le.Uint32(book[120:])
	var stream []byte
	if size < le.Uint32(data[56:]) {
		if root == nil {
			return errors.New("xls short stream without root entry")
		}
		stream, err = c.shortStream(le.Uint32(root[116:]), start)
	} else {
		stream, err = walkChain(c.fat, start, c.sector)
	}
	if err != nil {
		return fmt.Errorf("workbook stream: %w", err)
	}
	return checkSharedStrings(stream)
}

// checkSharedStrings bounds the declared SST count by the stream length; the
// reader allocates that many strings before reading any.
func checkSharedStrings(stream []byte) error {
	le := binary.LittleEndian
	for off := 0; off+4 <= len(stream); {
		id, size := le.Uint16(stream[off:]), int(le.Uint16(stream[off+2:]))
		body := stream[off+4 : min(off+4+size, len(stream))]
		if id == biffSST && len(body) >= 8 && int(le.Uint32(body[4:])) > len(stream) {
			return errors.New("xls declares more shared strings than it holds")
		}
		off += 4 + size
	}
	return nil
}

type oleFile struct {
	data    []byte
	sectors uint32
	fat     []uint32
}

func (c *oleFile) sector(sid uint32) ([]byte, error) {
	if sid >= c.sectors {
		return nil, fmt.Errorf("sector %d outside file", sid)
	}
	start := oleSectorSize + int(sid)*oleSectorSize
	return c.data[start:min(start+oleSectorSize, len(c.data))], nil
}

func (c *oleFile) table(sid uint32, n int) ([]uint32, error) {
	s, err := c.sector(sid)
	if err != nil {
		return nil, err
	}
	if len(s) < 4*n {
		return nil, fmt.Errorf("allocation sector %d truncated", sid)
	}
	out := make([]uint32, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(s[4*i:])
	}
	return out, nil
}

// loadFAT assembles the allocation table from the header MSAT and the DIF
// chain in the order the reader does.
func (c *oleFile) loadFAT() error {
	le := binary.LittleEndian
	count := min(le.Uint32(c.data[44:]), oleHeaderMSAT)
	for i := uint32(0); i < count; i++ {
		values, err := c.table(le.Uint32(c.data[76+4*i:]), oleSectorSize/4)
		if err != nil {
			return fmt.Errorf("allocation table: %w", err)
		}
		c.fat = append(c.fat, values...)
	}

	steps := uint32(0)
	for sid := le.Uint32(c.data[68:]); sid != oleEndOfChain; steps++ {
		if steps > c.sectors {
			return errors.New("master allocation chain loops")
		}
		dif, err := c.table(sid, oleSectorSize/4)
		if err != nil {
			return fmt.Errorf("master allocation table: %w", err)
		}
		for _, fatSID := range dif[:len(dif)-1] {
			if fatSID == oleFreeSector {
				break
			}
			values, err := c.table(fatSID, oleSectorSize/4)
			if err != nil {
				return fmt.Errorf("allocation table: %w", err)
			}
			c.fat = append(c.fat, values...)
		}
		sid = dif[len(dif)-1]
	}
	return nil
}

// shortStream reads a stream stored in the root entry's short sectors. The
// reader repeats the first short allocation sector once per declared sector.
func (c *oleFile) shortStream(rootStart, start uint32) ([]byte, error) {
	le := binary.LittleEndian
	ministream, err := walkChain(c.fat, rootStart, c.sector)
	if err != nil {
		return nil, fmt.Errorf("root entry: %w", err)
	}
	var ssat []uint32
	count, sid := le.Uint32(c.data[64:]), le.Uint32(c.data[60:])
	if count > c.sectors {
		return nil, errors.New("short allocation table larger than file")
	}
	if count > 0 && sid != oleEndOfChain {
		values, err := c.table(sid, oleSectorSize/4-1)
		if err != nil {
			return nil, fmt.Errorf("short allocation table: %w", err)
		}
		for i := uint32(0); i < count; i++ {
			ssat = append(ssat, values...)
		}
	}
	return walkChain(ssat, start, func(sid uint32) ([]byte, error) {
		from := int(sid) * oleShortSectorSize
		if from >= len(ministream) {
			return nil, fmt.Errorf("short sector %d outside root entry", sid)
		}
		return ministream[from:min(from+oleShortSectorSize, len(ministream))], nil
	})
}

func walkChain(table []uint32, start uint32, read func(uint32) ([]byte, error)) ([]byte, error) {
	var out []byte
	steps := 0
	for sid := start; sid != oleEndOfChain; steps++ {
		if sid >= uint32(len(table)) || steps >= len(table) {
			return nil, fmt.Errorf("sector chain broken at %d", sid)
		}
		s, err := read(sid)
		if err != nil {
			return nil, err
		}
		out = append(out, s...)
		sid = table[sid]
	}
	return out, nil
}

func dirEntryName(entry []byte) string {
	size := int(binary.LittleEndian.Uint16(entry[64:]))
	if size < 2 || size > 64 {
		return ""
	}
	units := make([]uint16, size/2-1)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(entry[2*i:])
	}
	return string(utf16.Decode(units))
}
