package compute

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/s2"

	"github.com/meridianolap/meridian/pkg/util"
)

// Spilled partial results are fixed-size records: key bytes in the query's
// key layout followed by the raw aggregator state region. Both widths are
// fixed at plan time and stable for the query's lifetime, so records need
// no framing. Blocks are s2-compressed.

type SpillWriter struct {
	_f          *os.File
	_w          *s2.Writer
	_keyWidth   int
	_stateWidth int
}

func NewSpillWriter(path string, layout *KeyLayout, stateWidth int) (*SpillWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("open spill file: %w", err)
	}
	return &SpillWriter{
		_f:          f,
		_w:          s2.NewWriter(f),
		_keyWidth:   layout.Width(),
		_stateWidth: stateWidth,
	}, nil
}

func (sw *SpillWriter) Write(p PartialRow) error {
	util.AssertFunc(len(p.Key) == sw._keyWidth)
	util.AssertFunc(len(p.State) == sw._stateWidth)
	if _, err := sw._w.Write(p.Key); err != nil {
		return err
	}
	_, err := sw._w.Write(p.State)
	return err
}

func (sw *SpillWriter) Close() error {
	werr := sw._w.Close()
	ferr := sw._f.Close()
	return errors.Join(werr, ferr)
}

type SpillReader struct {
	_f          *os.File
	_r          *s2.Reader
	_keyWidth   int
	_stateWidth int
}

func NewSpillReader(path string, layout *KeyLayout, stateWidth int) (*SpillReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open spill file: %w", err)
	}
	return &SpillReader{
		_f:          f,
		_r:          s2.NewReader(f),
		_keyWidth:   layout.Width(),
		_stateWidth: stateWidth,
	}, nil
}

// Read returns the next partial row, io.EOF at end of file.
func (sr *SpillReader) Read() (PartialRow, error) {
	buf := make([]byte, sr._keyWidth+sr._stateWidth)
	if _, err := io.ReadFull(sr._r, buf); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return PartialRow{}, fmt.Errorf("truncated spill record: %w", err)
		}
		return PartialRow{}, err
	}
	return PartialRow{
		Key:   buf[:sr._keyWidth],
		State: buf[sr._keyWidth:],
	}, nil
}

func (sr *SpillReader) Close() error {
	return sr._f.Close()
}

// SpillPartials writes one unit's partial results to path.
func SpillPartials(path string, layout *KeyLayout, stateWidth int, parts []PartialRow) error {
	sw, err := NewSpillWriter(path, layout, stateWidth)
	if err != nil {
		return err
	}
	for _, p := range parts {
		if err = sw.Write(p); err != nil {
			sw.Close()
			return err
		}
	}
	return sw.Close()
}

// RestorePartials merges a spill file back into a grouper.
func RestorePartials(path string, layout *KeyLayout, g *Grouper) error {
	sr, err := NewSpillReader(path, layout, g.StateWidth())
	if err != nil {
		return err
	}
	defer sr.Close()
	for {
		p, err := sr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		g.AbsorbPartial(p.Key, p.State)
	}
}
