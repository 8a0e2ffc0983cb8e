package instrument

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

var screenshotFormats = map[string]string{
	"PNG":  "PNG",
	"BMP":  "BMP",
	"JPEG": "JPEG",
	"JPG":  "JPEG",
}

// Screenshot grabs the instrument's display as image bytes. format is one of
// PNG, BMP, JPEG (JPG is accepted as an alias).
func (s *Scope) Screenshot(format string) ([]byte, error) {
	fmtName, ok := screenshotFormats[strings.ToUpper(format)]
	if !ok {
		return nil, fmt.Errorf("instrument: unsupported screenshot format %q", format)
	}

	if _, err := s.ch.Send("HCSU DEV,FORMAT," + fmtName); err != nil {
		return nil, err
	}
	// Some models need a beat between setting the hardcopy format and the dump.
	time.Sleep(100 * time.Millisecond)

	data, err := s.ch.QueryBinary("SCDP")
	if err != nil {
		return nil, err
	}
	log.Debugf("[scope] screenshot: %d bytes (%s)", len(data), fmtName)
	return data, nil
}
