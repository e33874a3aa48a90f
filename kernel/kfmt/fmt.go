package kfmt

import (
	"io"
	"strconv"
)

var (
	errMissingArg   = "(MISSING)"
	errWrongArgType = "%!(WRONGTYPE)"
	errNoVerb       = "%!(NOVERB)"
	errExtraArg     = "%!(EXTRA)"

	// out buffers formatted output before it is handed to the target
	// writer. Keeping it at package level means that formatting does
	// not allocate; the price is that Fprintf is not reentrant.
	out printer
)

// maxWidth caps the width accepted for a single verb.
const maxWidth = 64

// printer accumulates formatted bytes into a fixed buffer and hands them to
// w whenever the buffer fills up or the current Fprintf call completes.
type printer struct {
	w   io.Writer
	buf [128]byte
	n   int

	// num is scratch space for number conversions.
	num [maxWidth + 2]byte
}

func (p *printer) writeByte(b byte) {
	if p.n == len(p.buf) {
		p.flush()
	}
	p.buf[p.n] = b
	p.n++
}

func (p *printer) writeString(s string) {
	for i := 0; i < len(s); i++ {
		p.writeByte(s[i])
	}
}

func (p *printer) writeBytes(b []byte) {
	for _, ch := range b {
		p.writeByte(ch)
	}
}

func (p *printer) pad(ch byte, count int) {
	for ; count > 0; count-- {
		p.writeByte(ch)
	}
}

func (p *printer) flush() {
	if p.n == 0 {
		return
	}

	if p.w != nil {
		p.w.Write(p.buf[:p.n])
	}
	p.n = 0
}

// Printf provides a minimal Printf implementation that does not allocate
// memory and can therefore be used from interrupt and fault handlers.
//
// The supported verbs are:
//
//	%s the uninterpreted bytes of a string or byte slice
//	%c a single byte or rune (ASCII only)
//	%o base 8
//	%d base 10
//	%x base 16, with lower-case letters for a-f
//	%t "true" or "false"
//
// Width is specified by an optional decimal number immediately preceding the
// verb. Strings and base-10 integers are left-padded with spaces; base-8 and
// base-16 integers are left-padded with zeroes.
//
// Output goes to every attached sink (see SetOutputSink and AddOutputSink).
// Until a sink is attached it is captured by a ring buffer and replayed to the
// first sink that gets attached.
func Printf(format string, args ...interface{}) {
	Fprintf(GetOutputSink(), format, args...)
}

// Fprintf behaves exactly like Printf but it writes the formatted output to
// the specified io.Writer.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	var (
		nextArg int
		width   int
	)

	out.w = w
	for i := 0; i < len(format); i++ {
		if format[i] != '%' {
			out.writeByte(format[i])
			continue
		}

		width = 0
	parseVerb:
		for i++; ; i++ {
			if i == len(format) {
				out.writeString(errNoVerb)
				break
			}

			ch := format[i]
			switch {
			case ch == '%':
				out.writeByte('%')
				break parseVerb
			case ch >= '0' && ch <= '9':
				if width = width*10 + int(ch-'0'); width > maxWidth {
					width = maxWidth
				}
			case ch == 'd' || ch == 'x' || ch == 'o' || ch == 's' || ch == 't' || ch == 'c':
				if nextArg >= len(args) {
					out.writeString(errMissingArg)
					break parseVerb
				}

				formatArg(ch, args[nextArg], width)
				nextArg++
				break parseVerb
			default:
				out.writeString(errNoVerb)
				break parseVerb
			}
		}
	}

	for ; nextArg < len(args); nextArg++ {
		out.writeString(errExtraArg)
	}

	out.flush()
	out.w = nil
}

func formatArg(verb byte, arg interface{}, width int) {
	switch verb {
	case 'd':
		formatInt(arg, 10, width)
	case 'x':
		formatInt(arg, 16, width)
	case 'o':
		formatInt(arg, 8, width)
	case 's':
		switch v := arg.(type) {
		case string:
			out.pad(' ', width-len(v))
			out.writeString(v)
		case []byte:
			out.pad(' ', width-len(v))
			out.writeBytes(v)
		default:
			out.writeString(errWrongArgType)
		}
	case 'c':
		switch v := arg.(type) {
		case byte:
			out.writeByte(v)
		case rune:
			out.writeByte(byte(v))
		default:
			out.writeString(errWrongArgType)
		}
	case 't':
		if v, ok := arg.(bool); ok {
			out.writeString(strconv.FormatBool(v))
		} else {
			out.writeString(errWrongArgType)
		}
	}
}

// formatInt writes v in the requested base applying the padding specified by
// width. All built-in signed and unsigned integer types are supported.
func formatInt(arg interface{}, base, width int) {
	var (
		uval uint64
		neg  bool
	)

	switch v := arg.(type) {
	case uint8:
		uval = uint64(v)
	case uint16:
		uval = uint64(v)
	case uint32:
		uval = uint64(v)
	case uint64:
		uval = v
	case uint:
		uval = uint64(v)
	case uintptr:
		uval = uint64(v)
	case int8:
		uval, neg = abs(int64(v))
	case int16:
		uval, neg = abs(int64(v))
	case int32:
		uval, neg = abs(int64(v))
	case int64:
		uval, neg = abs(v)
	case int:
		uval, neg = abs(int64(v))
	default:
		out.writeString(errWrongArgType)
		return
	}

	digits := strconv.AppendUint(out.num[:0], uval, base)
	padCh := byte('0')
	if base == 10 {
		padCh = ' '
	}

	padLen := width - len(digits)
	if neg {
		padLen--
	}

	// Zero padding goes between the sign and the digits, space padding
	// goes before the sign.
	if padCh == ' ' {
		out.pad(' ', padLen)
	}
	if neg {
		out.writeByte('-')
	}
	if padCh == '0' {
		out.pad('0', padLen)
	}
	out.writeBytes(digits)
}

func abs(v int64) (uint64, bool) {
	if v < 0 {
		return uint64(-v), true
	}
	return uint64(v), false
}
