package kfmt

import "io"

// maxSinks is the number of output sinks that can be attached at once.
const maxSinks = 4

var (
	// earlyPrintBuffer stores Printf output before any sink is attached.
	earlyPrintBuffer ringBuffer

	sinks    sinkList
	drainBuf [128]byte
)

// sinkList fans out writes to every attached sink. Errors reported by one
// sink do not prevent the rest of the sinks from receiving the data.
type sinkList struct {
	writers [maxSinks]io.Writer
	count   int
}

// Write implements io.Writer.
func (l *sinkList) Write(p []byte) (int, error) {
	if l.count == 0 {
		return earlyPrintBuffer.Write(p)
	}

	for i := 0; i < l.count; i++ {
		l.writers[i].Write(p)
	}
	return len(p), nil
}

// SetOutputSink detaches all sinks and makes w the only target for Printf.
// Any output accumulated in the early print buffer is copied to w. Passing a
// nil writer detaches all sinks and routes Printf back to the early buffer.
func SetOutputSink(w io.Writer) {
	sinks = sinkList{}
	AddOutputSink(w)
}

// AddOutputSink attaches w as an additional Printf target. If w is the first
// sink to be attached it also receives the contents of the early print
// buffer. Attaching more than maxSinks sinks or a nil sink has no effect.
func AddOutputSink(w io.Writer) {
	if w == nil || sinks.count == maxSinks {
		return
	}

	sinks.writers[sinks.count] = w
	sinks.count++

	if sinks.count == 1 {
		for {
			n, err := earlyPrintBuffer.Read(drainBuf[:])
			if err != nil {
				break
			}
			w.Write(drainBuf[:n])
		}
	}
}

// GetOutputSink returns a writer that forwards its input to every attached
// sink (or to the early print buffer if no sink is attached).
func GetOutputSink() io.Writer {
	return &sinks
}
