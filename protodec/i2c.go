package protodec

// decodeI2C recognizes transactions by condition, not timing: a start is SDA
// falling while SCL is high, a stop is SDA rising while SCL is high, and data
// bits are sampled on SCL rising edges. Each transaction becomes one packet:
// address, read/write flag, then data bytes, each qualified by its ack bit.
func decodeI2C(sda, scl []bool, rate, t0 float64) ([]Packet, int) {
	n := len(sda)
	if len(scl) < n {
		n = len(scl)
	}
	if n == 0 {
		return nil, 0
	}

	tAt := func(i int) float64 { return t0 + float64(i)/rate }

	var packets []Packet
	var bits []bool
	inTransaction := false
	startIdx := -1
	consumed := n

	closePacket := func(endIdx int, validity Validity) {
		if validity != ValidityIncomplete && len(bits)%9 == 1 {
			// The clock pulse that sets up a stop or repeated start reads
			// as one dangling bit; drop it.
			bits = bits[:len(bits)-1]
		}
		pkt := Packet{
			Protocol:  I2C,
			StartTime: tAt(startIdx),
			EndTime:   tAt(endIdx),
			Validity:  validity,
		}

		// Bits group into 9s: eight data bits plus the ack. The first group
		// carries the 7-bit address and the R/W flag.
		for g := 0; g+9 <= len(bits) || (g < len(bits) && validity == ValidityIncomplete); g += 9 {
			group := bits[g:]
			if len(group) > 9 {
				group = group[:9]
			}
			var value uint64
			for _, b := range group[:min(8, len(group))] {
				bit := uint64(0)
				if b {
					bit = 1
				}
				value = value<<1 | bit
			}

			fieldValidity := ValidityOK
			if len(group) < 9 {
				fieldValidity = ValidityIncomplete
			} else if group[8] {
				// Ack slot high: nobody pulled SDA down.
				fieldValidity = ValidityNack
			}

			if g == 0 {
				rw := value & 1
				pkt.Fields = append(pkt.Fields,
					Field{Name: "address", Value: value >> 1, Validity: fieldValidity},
					Field{Name: "rw", Value: rw, Validity: fieldValidity},
				)
			} else {
				pkt.Fields = append(pkt.Fields, Field{Name: "data", Value: value, Validity: fieldValidity})
			}
			if len(group) < 9 {
				break
			}
		}

		if validity != ValidityIncomplete && len(bits)%9 != 0 {
			// Stop landed mid-byte.
			pkt.Validity = ValidityFramingError
		}
		packets = append(packets, pkt)
		bits = nil
	}

	prevSda, prevScl := sda[0], scl[0]
	for i := 1; i < n; i++ {
		curSda, curScl := sda[i], scl[i]

		switch {
		case curScl && prevScl && prevSda && !curSda:
			// Start (or repeated start) condition.
			if inTransaction {
				closePacket(i-1, ValidityOK)
			}
			inTransaction = true
			startIdx = i
		case curScl && prevScl && !prevSda && curSda:
			// Stop condition.
			if inTransaction {
				closePacket(i, ValidityOK)
				inTransaction = false
			}
		case inTransaction && curScl && !prevScl:
			bits = append(bits, curSda)
		}

		prevSda, prevScl = curSda, curScl
	}

	if inTransaction {
		closePacket(n-1, ValidityIncomplete)
		consumed = startIdx
		// The carried tail must include the preceding SDA-high sample so the
		// start condition is re-detectable on resume.
		if consumed > 0 {
			consumed--
		}
	}
	return packets, consumed
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
