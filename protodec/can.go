package protodec

// CAN levels: recessive is high (logic 1), dominant low (0). The frame body
// from SOF through the CRC sequence is bit-stuffed: after five identical
// bits the transmitter inserts one opposite bit, which the reader strips
// before field extraction.

type canReader struct {
	levels   []bool
	spb      float64
	startIdx int

	raw      int // raw bit cursor, stuff bits included
	run      int
	last     int
	stuffing bool
	stuffErr bool
}

func newCANReader(levels []bool, spb float64, startIdx int) *canReader {
	return &canReader{levels: levels, spb: spb, startIdx: startIdx, last: -1, stuffing: true}
}

func (r *canReader) rawBit() (int, bool) {
	lvl, ok := sampleAt(r.levels, float64(r.startIdx)+r.spb*(0.5+float64(r.raw)))
	if !ok {
		return 0, false
	}
	r.raw++
	if lvl {
		return 1, true
	}
	return 0, true
}

// next returns the next destuffed bit. Stuff-rule violations set stuffErr
// and the offending bit is passed through so the caller can finish in a
// degraded state.
func (r *canReader) next() (int, bool) {
	for {
		bit, ok := r.rawBit()
		if !ok {
			return 0, false
		}
		if r.stuffing && r.run == 5 {
			if bit == r.last {
				r.stuffErr = true
				// Fall through; treat it as data so decoding can continue.
			} else {
				r.run = 1
				r.last = bit
				continue
			}
		}
		if bit == r.last {
			r.run++
		} else {
			r.run = 1
			r.last = bit
		}
		return bit, true
	}
}

func (r *canReader) bits(n int) (uint64, bool) {
	var v uint64
	for i := 0; i < n; i++ {
		bit, ok := r.next()
		if !ok {
			return v, false
		}
		v = v<<1 | uint64(bit)
	}
	return v, true
}

// decodeCAN parses classic CAN frames: SOF, arbitration, control, data, CRC,
// ACK and EOF, destuffing before field extraction. Both base and extended
// identifiers are handled.
func decodeCAN(levels []bool, rate, t0 float64, cfg CANConfig) ([]Packet, int) {
	spb := rate / float64(cfg.BitRate)
	tAt := func(i float64) float64 { return t0 + i/rate }

	var packets []Packet
	pos := 0
	for {
		startIdx := -1
		if pos == 0 && len(levels) > 0 && !levels[0] {
			// Carried tail begins at SOF.
			startIdx = 0
		} else {
			startIdx = findEdge(levels, pos, false)
		}
		if startIdx < 0 {
			return packets, len(levels)
		}

		pkt, endRaw, complete := decodeCANFrame(levels, spb, startIdx, tAt)
		if !complete {
			packets = append(packets, pkt)
			return packets, startIdx
		}
		packets = append(packets, pkt)
		pos = startIdx + int(spb*float64(endRaw)+0.5)
		if pos >= len(levels) {
			return packets, len(levels)
		}
	}
}

func decodeCANFrame(levels []bool, spb float64, startIdx int, tAt func(float64) float64) (Packet, int, bool) {
	r := newCANReader(levels, spb, startIdx)
	pkt := Packet{Protocol: CAN, StartTime: tAt(float64(startIdx)), Validity: ValidityOK}

	incomplete := func() (Packet, int, bool) {
		pkt.Validity = ValidityIncomplete
		pkt.EndTime = tAt(float64(len(levels) - 1))
		return pkt, r.raw, false
	}
	addField := func(name string, v uint64) {
		pkt.Fields = append(pkt.Fields, Field{Name: name, Value: v, Validity: ValidityOK})
	}

	// SOF: a single dominant bit.
	sof, ok := r.next()
	if !ok {
		return incomplete()
	}
	if sof != 0 {
		pkt.Validity = ValidityFramingError
	}

	id, ok := r.bits(11)
	if !ok {
		addField("id", id)
		return incomplete()
	}

	rtr, ok := r.next()
	if !ok {
		addField("id", id)
		return incomplete()
	}
	ide, ok := r.next()
	if !ok {
		addField("id", id)
		return incomplete()
	}

	if ide == 1 {
		// Extended frame: 18 more identifier bits, then the real RTR.
		ext, ok := r.bits(18)
		if !ok {
			addField("id", id)
			return incomplete()
		}
		id = id<<18 | ext
		rtr, ok = r.next()
		if !ok {
			addField("id", id)
			return incomplete()
		}
		if _, ok := r.bits(2); !ok { // r1, r0
			addField("id", id)
			return incomplete()
		}
	} else {
		if _, ok := r.next(); !ok { // r0
			addField("id", id)
			return incomplete()
		}
	}
	addField("id", id)
	addField("rtr", uint64(rtr))
	addField("ide", uint64(ide))

	dlcBits, ok := r.bits(4)
	if !ok {
		return incomplete()
	}
	addField("dlc", dlcBits)
	dlc := int(dlcBits)
	if dlc > 8 {
		dlc = 8
	}

	if rtr == 0 {
		for i := 0; i < dlc; i++ {
			b, ok := r.bits(8)
			if !ok {
				pkt.Fields = append(pkt.Fields, Field{Name: "data", Value: b, Validity: ValidityIncomplete})
				return incomplete()
			}
			addField("data", b)
		}
	}

	crc, ok := r.bits(15)
	if !ok {
		return incomplete()
	}
	addField("crc", crc)

	// Stuffing ends with the CRC sequence.
	r.stuffing = false
	if r.stuffErr {
		pkt.Validity = ValidityFramingError
	}

	crcDelim, ok := r.next()
	if !ok {
		return incomplete()
	}
	ackSlot, ok := r.next()
	if !ok {
		return incomplete()
	}
	ackDelim, ok := r.next()
	if !ok {
		return incomplete()
	}
	ackValidity := ValidityOK
	if ackSlot != 0 {
		// Recessive ack slot: no receiver acknowledged.
		ackValidity = ValidityNack
	}
	pkt.Fields = append(pkt.Fields, Field{Name: "ack", Value: uint64(ackSlot ^ 1), Validity: ackValidity})
	if crcDelim != 1 || ackDelim != 1 {
		pkt.Validity = ValidityFramingError
	}

	for i := 0; i < 7; i++ {
		b, ok := r.next()
		if !ok {
			return incomplete()
		}
		if b != 1 {
			pkt.Validity = ValidityFramingError
		}
	}

	pkt.EndTime = tAt(float64(startIdx) + spb*float64(r.raw))
	return pkt, r.raw, true
}
