package protodec

import "strings"

// decodeUART walks the level sequence through the classic state machine:
// idle, start bit, data bits, optional parity, stop bits. Bit centers come
// from the baud rate converted to samples per bit. A framing error (stop bit
// at the wrong level) flags the affected packet only; the scan resynchronizes
// on the next idle-to-start transition.
//
// The second return value is the index of the first sample that belongs to
// an unfinished trailing symbol, or len(levels) when everything was consumed.
func decodeUART(levels []bool, rate, t0 float64, cfg UARTConfig) ([]Packet, int) {
	spb := rate / float64(cfg.BaudRate)
	idle := cfg.IdleHigh
	parity := strings.ToLower(cfg.Parity)
	if parity == "" {
		parity = "none"
	}
	parityBits := 0
	if parity != "none" {
		parityBits = 1
	}
	totalBits := 1 + cfg.DataBits + parityBits + cfg.StopBits

	tAt := func(i float64) float64 { return t0 + i/rate }

	var packets []Packet
	pos := 0
	for {
		startIdx := -1
		if pos == 0 && len(levels) > 0 && levels[0] != idle {
			// A carried tail starts exactly at a start bit.
			startIdx = 0
		} else {
			startIdx = findEdge(levels, pos, !idle)
		}
		if startIdx < 0 {
			return packets, len(levels)
		}

		// Confirm the start bit at its center to reject glitches.
		if lvl, ok := sampleAt(levels, float64(startIdx)+spb*0.5); ok && lvl == idle {
			pos = startIdx + 1
			continue
		}

		var value uint64
		var onesCount int
		validity := ValidityOK
		incomplete := false

		bitCenter := func(k int) float64 { return float64(startIdx) + spb*(0.5+float64(k)) }

		for k := 0; k < cfg.DataBits; k++ {
			lvl, ok := sampleAt(levels, bitCenter(1+k))
			if !ok {
				incomplete = true
				break
			}
			bit := uint64(0)
			if lvl == idle {
				bit = 1
			}
			if cfg.LSBFirst {
				value |= bit << k
			} else {
				value = value<<1 | bit
			}
			onesCount += int(bit)
		}

		parityField := Field{Name: "parity", Validity: ValidityOK}
		if !incomplete && parityBits == 1 {
			lvl, ok := sampleAt(levels, bitCenter(1+cfg.DataBits))
			if !ok {
				incomplete = true
			} else {
				bit := uint64(0)
				if lvl == idle {
					bit = 1
				}
				parityField.Value = bit
				totalOnes := onesCount + int(bit)
				wantEven := parity == "even"
				if (totalOnes%2 == 0) != wantEven {
					parityField.Validity = ValidityParityError
					validity = ValidityParityError
				}
			}
		}

		stopField := Field{Name: "stop", Value: 1, Validity: ValidityOK}
		if !incomplete {
			for k := 0; k < cfg.StopBits; k++ {
				lvl, ok := sampleAt(levels, bitCenter(1+cfg.DataBits+parityBits+k))
				if !ok {
					incomplete = true
					break
				}
				if lvl != idle {
					stopField.Value = 0
					stopField.Validity = ValidityFramingError
					validity = ValidityFramingError
				}
			}
		}

		if incomplete {
			pkt := Packet{
				Protocol:  UART,
				StartTime: tAt(float64(startIdx)),
				EndTime:   tAt(float64(len(levels) - 1)),
				Validity:  ValidityIncomplete,
				Fields: []Field{
					{Name: "data", Value: value, Validity: ValidityIncomplete},
				},
			}
			packets = append(packets, pkt)
			return packets, startIdx
		}

		endIdx := startIdx + int(spb*float64(totalBits)+0.5)
		fields := []Field{{Name: "data", Value: value, Validity: validityForData(validity)}}
		if parityBits == 1 {
			fields = append(fields, parityField)
		}
		fields = append(fields, stopField)

		packets = append(packets, Packet{
			Protocol:  UART,
			StartTime: tAt(float64(startIdx)),
			EndTime:   tAt(float64(endIdx)),
			Validity:  validity,
			Fields:    fields,
		})
		pos = endIdx
		if pos >= len(levels) {
			return packets, len(levels)
		}
	}
}

// validityForData degrades the data field only for errors that make its
// value untrustworthy.
func validityForData(packetValidity Validity) Validity {
	if packetValidity == ValidityFramingError {
		return ValidityFramingError
	}
	return ValidityOK
}
