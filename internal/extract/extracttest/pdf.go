// Package extracttest builds small PDF files for tests.
package extracttest

import (
	"bytes"
	"fmt"
	"strings"
)

// PDF returns a minimal PDF with one page per element of pages. Each page
// shows its text with a WinAnsiEncoding Helvetica font, one Tj per line, so
// page bytes are decoded as cp1252 by readers. A nil page has no content stream.
func PDF(pages ...[]byte) []byte {
	var buf bytes.Buffer
	var offsets []int
	obj := func(body string) int {
		offsets = append(offsets, buf.Len())
		n := len(offsets)
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", n, body)
		return n
	}

	buf.WriteString("%PDF-1.4\n")
	// objects 1 (catalog), 2 (pages) and 3 (font) come first so page ids are predictable
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)))
	obj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	for i, text := range pages {
		if text == nil {
			obj("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>")
			obj("<< /Length 0 >>\nstream\n\nendstream")
			continue
		}
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i))
		var content bytes.Buffer
		content.WriteString("BT /F1 12 Tf 72 720 Td 14 TL\n")
		for j, line := range bytes.Split(text, []byte("\n")) {
			if j > 0 {
				content.WriteString("T*\n")
			}
			content.WriteString("(")
			content.Write(escape(line))
			content.WriteString(") Tj\n")
		}
		content.WriteString("ET")
		obj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", content.Len(), content.String()))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

func escape(b []byte) []byte {
	var out bytes.Buffer
	for _, c := range b {
		if c == '(' || c == ')' || c == '\\' {
			out.WriteByte('\\')
		}
		out.WriteByte(c)
	}
	return out.Bytes()
}
