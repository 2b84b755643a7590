package receipt

import (
	"bytes"
	"strconv"
	"strings"

	"odelivery/terminal/internal/domain"
)

// Encode produces the ESC/POS byte stream for one copy of the document.
// The stream is a pure function of (doc, style): no clocks, no randomness.
func Encode(doc *domain.ReceiptDocument, style domain.StyleConfig) []byte {
	w := &escposWriter{width: paperWidth(style)}
	w.buf.Write([]byte{0x1b, 0x40}) // initialize
	compose(doc, style, w)
	w.buf.Write([]byte{0x1b, 0x64, 0x03})       // feed 3 lines
	w.buf.Write([]byte{0x1d, 0x56, 0x41, 0x10}) // partial cut
	return w.buf.Bytes()
}

// Preview renders the document as plain text for the UI job list.
func Preview(doc *domain.ReceiptDocument, style domain.StyleConfig) string {
	w := &textWriter{width: paperWidth(style)}
	compose(doc, style, w)
	return strings.Join(w.lines, "\n")
}

func paperWidth(style domain.StyleConfig) int {
	if style.PaperWidthChars > 0 {
		return style.PaperWidthChars
	}
	return domain.DefaultStyleConfig().PaperWidthChars
}

type sink interface {
	line(s string)
	centered(on bool)
	bold(on bool)
	wide(on bool)
	qr(url string)
}

func compose(doc *domain.ReceiptDocument, style domain.StyleConfig, w sink) {
	width := paperWidth(style)

	if doc.Header.ShopName != "" {
		w.centered(true)
		w.bold(true)
		w.line(doc.Header.ShopName)
		w.bold(false)
		if doc.Header.ShopPhone != "" {
			w.line(doc.Header.ShopPhone)
		}
		if doc.Header.ShopAddress != "" {
			w.line(doc.Header.ShopAddress)
		}
		w.centered(false)
	}

	w.line(strings.Repeat("=", width))
	w.bold(true)
	w.line("Pedido #" + doc.OrderNumber)
	w.bold(false)
	if !doc.IssuedAt.IsZero() {
		w.line(doc.IssuedAt.Format("02/01/2006 15:04"))
	}

	writeParty(doc.Delivery, w)

	w.line(strings.Repeat("-", width))
	for _, item := range doc.Items {
		w.line(row(itemLabel(item), item.LineTotal, width))
		for _, sub := range item.Complements {
			w.line(row("  + "+sublineLabel(sub), sub.Price, width))
		}
		if item.Notes != "" {
			w.line("  Obs: " + item.Notes)
		}
	}

	w.line(strings.Repeat("-", width))
	for _, total := range doc.Totals {
		if total.Emphasis {
			w.bold(true)
			w.wide(true)
		}
		w.line(row(total.Label, total.Value, width))
		if total.Emphasis {
			w.wide(false)
			w.bold(false)
		}
	}

	w.line(strings.Repeat("=", width))
	w.bold(true)
	w.line(doc.Payment.Title)
	w.bold(false)
	for _, line := range doc.Payment.Lines {
		w.line(line)
	}

	if len(doc.Loyalty) > 0 {
		w.line(strings.Repeat("-", width))
		for _, line := range doc.Loyalty {
			w.line(line)
		}
	}

	if doc.QR != nil {
		w.line(strings.Repeat("-", width))
		w.centered(true)
		w.line(doc.QR.Label)
		w.qr(doc.QR.URL)
		w.centered(false)
	}

	if len(doc.Footer) > 0 {
		w.line(strings.Repeat("=", width))
		w.centered(true)
		for _, line := range doc.Footer {
			w.line(line)
		}
		w.centered(false)
	}
}

func writeParty(party domain.ReceiptParty, w sink) {
	if party.CustomerName != "" {
		w.line(party.CustomerName)
	}
	if party.CustomerPhone != "" {
		w.line(party.CustomerPhone)
	}
	switch {
	case len(party.AddressLines) > 0:
		for _, line := range party.AddressLines {
			w.line(line)
		}
	case party.TableNumber != "":
		w.line("Mesa " + party.TableNumber)
	case party.PickupNotice != "":
		w.line(party.PickupNotice)
	}
}

func itemLabel(item domain.ReceiptItem) string {
	return strconv.Itoa(item.Quantity) + "x " + item.Name
}

func sublineLabel(sub domain.ReceiptSubline) string {
	if sub.Quantity > 1 {
		return strconv.Itoa(sub.Quantity) + "x " + sub.Name
	}
	return sub.Name
}

// row lays out a label on the left and a value flush right. Labels too long
// for the width are truncated so the value column never shifts.
func row(left, right string, width int) string {
	if right == "" {
		return left
	}
	space := width - len([]rune(right)) - 1
	leftRunes := []rune(left)
	if space < 1 {
		return left + " " + right
	}
	if len(leftRunes) > space {
		leftRunes = leftRunes[:space]
	}
	pad := width - len(leftRunes) - len([]rune(right))
	return string(leftRunes) + strings.Repeat(" ", pad) + right
}

type escposWriter struct {
	buf   bytes.Buffer
	width int
}

func (w *escposWriter) line(s string) {
	w.buf.WriteString(s)
	w.buf.WriteByte('\n')
}

func (w *escposWriter) centered(on bool) {
	mode := byte(0x00)
	if on {
		mode = 0x01
	}
	w.buf.Write([]byte{0x1b, 0x61, mode})
}

func (w *escposWriter) bold(on bool) {
	mode := byte(0x00)
	if on {
		mode = 0x01
	}
	w.buf.Write([]byte{0x1b, 0x45, mode})
}

func (w *escposWriter) wide(on bool) {
	mode := byte(0x00)
	if on {
		mode = 0x11 // double width and height
	}
	w.buf.Write([]byte{0x1d, 0x21, mode})
}

// qr emits the native GS ( k symbol commands: model 2, module size 6,
// error correction M, store, print.
func (w *escposWriter) qr(url string) {
	data := []byte(url)
	w.buf.Write([]byte{0x1d, 0x28, 0x6b, 0x04, 0x00, 0x31, 0x41, 0x32, 0x00})
	w.buf.Write([]byte{0x1d, 0x28, 0x6b, 0x03, 0x00, 0x31, 0x43, 0x06})
	w.buf.Write([]byte{0x1d, 0x28, 0x6b, 0x03, 0x00, 0x31, 0x45, 0x31})
	storeLen := len(data) + 3
	w.buf.Write([]byte{0x1d, 0x28, 0x6b, byte(storeLen & 0xff), byte(storeLen >> 8), 0x31, 0x50, 0x30})
	w.buf.Write(data)
	w.buf.Write([]byte{0x1d, 0x28, 0x6b, 0x03, 0x00, 0x31, 0x51, 0x30})
	w.buf.WriteByte('\n')
}

type textWriter struct {
	lines  []string
	width  int
	center bool
}

func (w *textWriter) line(s string) {
	if w.center {
		pad := (w.width - len([]rune(s))) / 2
		if pad > 0 {
			s = strings.Repeat(" ", pad) + s
		}
	}
	w.lines = append(w.lines, s)
}

func (w *textWriter) centered(on bool) { w.center = on }
func (w *textWriter) bold(bool)        {}
func (w *textWriter) wide(bool)        {}

func (w *textWriter) qr(url string) {
	w.line("[QR] " + url)
}
