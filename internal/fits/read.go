// Copyright (C) 2020 Markus L. Noga
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
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package fits

import (
	"encoding/binary"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/noga-astro/frameqc/internal/errs"
)

const (
	blockSize = 2880 // bytes per FITS header/data unit
	cardSize  = 80   // bytes per header card
)

// Frame is a decoded primary-HDU 16-bit monochrome FITS image. Once
// returned by Read/Parse it is immutable; no method here mutates Pixels.
type Frame struct {
	Width  uint32
	Height uint32
	Pixels []uint16 // row-major, length Width*Height
	Header Header
}

// ReadFile reads and decodes the primary HDU of the FITS file at path.
func ReadFile(path string) (*Frame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.New(errs.ReasonFITSTruncated, "fits.ReadFile", err)
	}
	return Parse(data)
}

// Parse decodes the primary HDU of a FITS byte stream already in memory.
func Parse(data []byte) (*Frame, error) {
	hdr, consumed, err := parseHeader(data)
	if err != nil {
		return nil, err
	}

	simple, ok := hdr.Bool("SIMPLE")
	if !ok || !simple {
		return nil, errs.New(errs.ReasonFITSInvalidMagic, "fits.Parse",
			fmt.Errorf("first header card is not SIMPLE  = T"))
	}

	bitpix, ok := hdr.Int("BITPIX")
	if !ok {
		return nil, errs.NewAt(errs.ReasonFITSHeaderParse, "fits.Parse", 0,
			fmt.Errorf("missing mandatory BITPIX card"))
	}
	if bitpix != 16 {
		return nil, errs.New(errs.ReasonFITSUnsupportedBitpix, "fits.Parse",
			fmt.Errorf("BITPIX=%d is not supported, only 16-bit integer frames are", bitpix))
	}

	naxis, ok := hdr.Int("NAXIS")
	if !ok {
		return nil, errs.NewAt(errs.ReasonFITSHeaderParse, "fits.Parse", 0,
			fmt.Errorf("missing mandatory NAXIS card"))
	}
	if naxis != 2 {
		return nil, errs.New(errs.ReasonFITSUnsupportedBitpix, "fits.Parse",
			fmt.Errorf("NAXIS=%d is not supported, only 2-D images are", naxis))
	}

	naxis1, ok1 := hdr.Int("NAXIS1")
	naxis2, ok2 := hdr.Int("NAXIS2")
	if !ok1 || !ok2 || naxis1 <= 0 || naxis2 <= 0 {
		return nil, errs.NewAt(errs.ReasonFITSHeaderParse, "fits.Parse", 0,
			fmt.Errorf("missing or invalid NAXIS1/NAXIS2"))
	}
	width, height := uint32(naxis1), uint32(naxis2)

	bzero, bscale := 0.0, 1.0
	if v, ok := hdr.Float("BZERO"); ok {
		bzero = v
	}
	if v, ok := hdr.Float("BSCALE"); ok {
		bscale = v
	}

	need := int64(width) * int64(height) * 2
	body := data[consumed:]
	if int64(len(body)) < need {
		return nil, errs.New(errs.ReasonFITSTruncated, "fits.Parse",
			fmt.Errorf("data block needs %d bytes, file has %d", need, len(body)))
	}

	pixels := make([]uint16, int64(width)*int64(height))
	for i := range pixels {
		raw := int16(binary.BigEndian.Uint16(body[i*2 : i*2+2]))
		phys := bzero + bscale*float64(raw)
		if phys < 0 {
			phys = 0
		} else if phys > 65535 {
			phys = 65535
		}
		pixels[i] = uint16(phys + 0.5)
	}

	return &Frame{Width: width, Height: height, Pixels: pixels, Header: hdr}, nil
}

// parseHeader consumes whole blockSize blocks from data until the END card,
// returning the decoded Header and the number of bytes consumed (always a
// multiple of blockSize, so the data block that follows starts on a
// block boundary as the FITS standard requires).
func parseHeader(data []byte) (Header, int64, error) {
	h := newHeader()
	var offset int64

	for {
		if offset+blockSize > int64(len(data)) {
			return h, offset, errs.NewAt(errs.ReasonFITSTruncated, "fits.parseHeader", offset,
				fmt.Errorf("truncated header block at offset %d", offset))
		}
		block := data[offset : offset+blockSize]
		done, err := parseHeaderBlock(&h, block, offset)
		offset += blockSize
		if err != nil {
			return h, offset, err
		}
		if done {
			return h, offset, nil
		}
	}
}

// parseHeaderBlock parses the cardSize-byte cards of a single header block,
// stopping (and reporting done=true) once the END card is seen.
func parseHeaderBlock(h *Header, block []byte, blockOffset int64) (done bool, err error) {
	for i := 0; i+cardSize <= len(block); i += cardSize {
		card := block[i : i+cardSize]
		cardOffset := blockOffset + int64(i)
		key := strings.TrimRight(string(card[:8]), " ")

		switch key {
		case "":
			continue // blank card
		case "END":
			return true, nil
		case "COMMENT", "HISTORY":
			continue // discarded, not part of the typed header
		}

		if len(card) < 10 || card[8] != '=' {
			// Not a key=value card and not one of the recognized special
			// cards above; ignore it rather than fail the whole frame.
			continue
		}

		val, err := parseCardValue(card[10:])
		if err != nil {
			return false, errs.NewAt(errs.ReasonFITSHeaderParse, "fits.parseHeaderBlock", cardOffset, err)
		}
		h.set(key, val)
	}
	return false, nil
}

// parseCardValue parses the value (and discards any trailing comment) from
// the portion of a header card following "KEYWORD= ".
func parseCardValue(rest []byte) (Value, error) {
	s := strings.TrimLeft(string(rest), " ")
	if s == "" {
		return Value{}, fmt.Errorf("empty value field")
	}

	if s[0] == '\'' {
		// String value: quoted, embedded '' is an escaped quote.
		end := 1
		for end < len(s) {
			if s[end] == '\'' {
				if end+1 < len(s) && s[end+1] == '\'' {
					end += 2
					continue
				}
				break
			}
			end++
		}
		if end >= len(s) {
			return Value{}, fmt.Errorf("unterminated string value")
		}
		str := strings.ReplaceAll(s[1:end], "''", "'")
		return Value{Kind: KindString, Str: strings.TrimRight(str, " ")}, nil
	}

	// Strip trailing "/ comment" outside of a string.
	if idx := strings.Index(s, "/"); idx >= 0 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if s == "T" || s == "F" {
		return Value{Kind: KindBool, Bool: s == "T"}, nil
	}

	// FITS floats may use 'D' or 'E' for the exponent.
	numeric := strings.ReplaceAll(strings.ReplaceAll(s, "D", "E"), "d", "e")
	if iv, err := strconv.ParseInt(numeric, 10, 64); err == nil {
		return Value{Kind: KindInt, Int: iv}, nil
	}
	if fv, err := strconv.ParseFloat(numeric, 64); err == nil {
		return Value{Kind: KindFloat, Float: fv}, nil
	}
	return Value{}, fmt.Errorf("unrecognized value %q", s)
}
