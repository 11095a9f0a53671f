// frame-decoder - decode barcodes from camera preview frames
//  Copyright (C) 2021, The Cacophony Project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package decoder

import (
	"time"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/datamatrix"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"

	"github.com/TheCacophonyProject/frame-decoder/luminance"
)

// Symbol is a decoded barcode.
type Symbol struct {
	Payload []byte
	Text    string
	Format  gozxing.BarcodeFormat
	Elapsed time.Duration
}

// Engine owns one set of gozxing readers and reuses them between
// frames. The readers keep state between calls so an Engine must only
// be used from one goroutine.
type Engine struct {
	hints    map[gozxing.DecodeHintType]interface{}
	readers  []gozxing.Reader
	attempts int
	resets   int
}

// New builds an Engine from conf. Configuration problems are returned
// as a *ConfigError.
func New(conf Config) (*Engine, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	formats, err := conf.formats()
	if err != nil {
		return nil, err
	}
	hints := conf.hints(formats)
	return newEngine(hints, buildReaders(formats, hints, conf.TryHarder)), nil
}

func newEngine(hints map[gozxing.DecodeHintType]interface{}, readers []gozxing.Reader) *Engine {
	return &Engine{
		hints:   hints,
		readers: readers,
	}
}

func buildReaders(formats []gozxing.BarcodeFormat, hints map[gozxing.DecodeHintType]interface{}, tryHarder bool) []gozxing.Reader {
	want := make(map[gozxing.BarcodeFormat]bool)
	for _, f := range formats {
		want[f] = true
	}

	var oneD []gozxing.Reader
	if want[gozxing.BarcodeFormat_EAN_13] || want[gozxing.BarcodeFormat_EAN_8] ||
		want[gozxing.BarcodeFormat_UPC_A] || want[gozxing.BarcodeFormat_UPC_E] {
		oneD = append(oneD, oned.NewMultiFormatUPCEANReader(hints))
	}
	if want[gozxing.BarcodeFormat_CODE_39] {
		oneD = append(oneD, oned.NewCode39Reader())
	}
	if want[gozxing.BarcodeFormat_CODE_128] {
		oneD = append(oneD, oned.NewCode128Reader())
	}

	var twoD []gozxing.Reader
	if want[gozxing.BarcodeFormat_QR_CODE] {
		twoD = append(twoD, qrcode.NewQRCodeReader())
	}
	if want[gozxing.BarcodeFormat_DATA_MATRIX] {
		twoD = append(twoD, datamatrix.NewDataMatrixReader())
	}

	// 1D scanning is cheap so it goes first, unless we're trying hard
	// in which case the slower row scans are left until last.
	if tryHarder {
		return append(twoD, oneD...)
	}
	return append(oneD, twoD...)
}

// Attempt tries to decode a symbol from view. It returns nil when
// nothing was found; decode errors are never returned. The readers are
// always reset before Attempt returns.
func (e *Engine) Attempt(view *luminance.View) (symbol *Symbol) {
	e.attempts++
	defer e.reset()
	defer func() {
		if r := recover(); r != nil {
			symbol = nil
		}
	}()

	start := time.Now()
	bmp, err := gozxing.NewBinaryBitmap(gozxing.NewHybridBinarizer(view.Source()))
	if err != nil {
		return nil
	}
	for _, reader := range e.readers {
		result, err := reader.Decode(bmp, e.hints)
		if err != nil || result == nil {
			continue
		}
		payload := result.GetRawBytes()
		if len(payload) == 0 {
			payload = []byte(result.GetText())
		}
		return &Symbol{
			Payload: payload,
			Text:    result.GetText(),
			Format:  result.GetBarcodeFormat(),
			Elapsed: time.Since(start),
		}
	}
	return nil
}

func (e *Engine) reset() {
	for _, reader := range e.readers {
		reader.Reset()
	}
	e.resets++
}

// Attempts returns the number of decode attempts made.
func (e *Engine) Attempts() int {
	return e.attempts
}

// Resets returns the number of times the readers have been reset.
func (e *Engine) Resets() int {
	return e.resets
}
