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
	"fmt"
	"strings"

	"github.com/makiuchi-d/gozxing"
)

// Config holds the decode hints. It is read once when the engine is
// built.
type Config struct {
	Formats      []string `yaml:"formats"`
	TryHarder    bool     `yaml:"try-harder"`
	CharacterSet string   `yaml:"character-set"`
	PureBarcode  bool     `yaml:"pure-barcode"`
}

// ConfigError is returned when the engine can't be built from a Config.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("decoder %s: %s", e.Field, e.Msg)
}

var formatNames = map[string]gozxing.BarcodeFormat{
	"QR_CODE":     gozxing.BarcodeFormat_QR_CODE,
	"DATA_MATRIX": gozxing.BarcodeFormat_DATA_MATRIX,
	"EAN_13":      gozxing.BarcodeFormat_EAN_13,
	"EAN_8":       gozxing.BarcodeFormat_EAN_8,
	"UPC_A":       gozxing.BarcodeFormat_UPC_A,
	"UPC_E":       gozxing.BarcodeFormat_UPC_E,
	"CODE_128":    gozxing.BarcodeFormat_CODE_128,
	"CODE_39":     gozxing.BarcodeFormat_CODE_39,
}

var characterSets = map[string]bool{
	"UTF-8":      true,
	"ISO-8859-1": true,
	"US-ASCII":   true,
	"SHIFT_JIS":  true,
	"GB18030":    true,
}

// DefaultConfig matches the product and QR formats a phone scanner
// looks for.
func DefaultConfig() Config {
	return Config{
		Formats: []string{
			"UPC_A", "UPC_E", "EAN_13", "EAN_8",
			"CODE_39", "CODE_128",
			"QR_CODE", "DATA_MATRIX",
		},
		TryHarder:    false,
		CharacterSet: "",
		PureBarcode:  false,
	}
}

func (conf *Config) Validate() error {
	_, err := conf.formats()
	if err != nil {
		return err
	}
	if conf.CharacterSet != "" && !characterSets[strings.ToUpper(conf.CharacterSet)] {
		return &ConfigError{"character-set", fmt.Sprintf("unsupported character set %q", conf.CharacterSet)}
	}
	return nil
}

func (conf *Config) formats() ([]gozxing.BarcodeFormat, error) {
	if len(conf.Formats) == 0 {
		return nil, &ConfigError{"formats", "at least one format is required"}
	}
	formats := make([]gozxing.BarcodeFormat, 0, len(conf.Formats))
	seen := make(map[gozxing.BarcodeFormat]bool)
	for _, name := range conf.Formats {
		format, ok := formatNames[strings.ToUpper(name)]
		if !ok {
			return nil, &ConfigError{"formats", fmt.Sprintf("unknown format %q", name)}
		}
		if !seen[format] {
			seen[format] = true
			formats = append(formats, format)
		}
	}
	return formats, nil
}

func (conf *Config) hints(formats []gozxing.BarcodeFormat) map[gozxing.DecodeHintType]interface{} {
	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_POSSIBLE_FORMATS: formats,
	}
	if conf.TryHarder {
		hints[gozxing.DecodeHintType_TRY_HARDER] = true
	}
	if conf.PureBarcode {
		hints[gozxing.DecodeHintType_PURE_BARCODE] = true
	}
	if conf.CharacterSet != "" {
		hints[gozxing.DecodeHintType_CHARACTER_SET] = conf.CharacterSet
	}
	return hints
}
