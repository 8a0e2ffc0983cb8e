package protodec

// decodeSPI is clock-edge driven: no baud assumption, every word is sampled
// on the configured edge of the clock channel. CPOL/CPHA pick the sampling
// edge the usual way: mode 0 and mode 3 sample on rising, modes 1 and 2 on
// falling.
//
// resumed marks a sequence whose head is a carried tail; such a tail starts
// exactly on a sampling edge, so index 0 counts as one. The returned index
// is the consumed-up-to point shared by the data and clock sequences.
func decodeSPI(data, clk []bool, rate, t0 float64, cfg SPIConfig, resumed bool) ([]Packet, int) {
	n := len(data)
	if len(clk) < n {
		n = len(clk)
	}
	if n == 0 {
		return nil, 0
	}
	sampleRising := cfg.CPOL == cfg.CPHA

	tAt := func(i int) float64 { return t0 + float64(i)/rate }

	var packets []Packet
	var word uint64
	bitsGot := 0
	wordStart := -1

	prev := clk[0]
	for i := 0; i < n; i++ {
		cur := clk[i]
		var isEdge bool
		if i == 0 {
			isEdge = resumed && cur == sampleRising
		} else {
			isEdge = cur != prev && cur == sampleRising
		}
		prev = cur
		if !isEdge {
			continue
		}

		if bitsGot == 0 {
			wordStart = i
		}
		bit := uint64(0)
		if data[i] {
			bit = 1
		}
		if cfg.LSBFirst {
			word |= bit << bitsGot
		} else {
			word = word<<1 | bit
		}
		bitsGot++

		if bitsGot == cfg.WordSize {
			packets = append(packets, Packet{
				Protocol:  SPI,
				StartTime: tAt(wordStart),
				EndTime:   tAt(i),
				Validity:  ValidityOK,
				Fields: []Field{
					{Name: "data", Value: word, Validity: ValidityOK},
				},
			})
			word = 0
			bitsGot = 0
			wordStart = -1
		}
	}

	if bitsGot > 0 {
		// Word cut off by the end of the record: emit what we have and let
		// the carry resume it.
		packets = append(packets, Packet{
			Protocol:  SPI,
			StartTime: tAt(wordStart),
			EndTime:   tAt(n - 1),
			Validity:  ValidityIncomplete,
			Fields: []Field{
				{Name: "data", Value: word, Validity: ValidityIncomplete},
			},
		})
		return packets, wordStart
	}
	return packets, n
}
